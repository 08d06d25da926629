package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/af-corp/model-proxy/internal/audit"
	"github.com/af-corp/model-proxy/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	dbURL := flag.String("db-url", "", "database URL (overrides config and env)")
	configPath := flag.String("config", "configs/proxy.yaml", "path to the configuration file")
	migrationsPath := flag.String("path", "", "path to migrations directory (overrides config)")
	flag.Parse()

	cfg, err := loadAuditConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		dsn = cfg.Database.DSN()
	}
	dir := *migrationsPath
	if dir == "" {
		dir = cfg.MigrationsPath
	}

	m, err := audit.NewMigrator(dir, dsn)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		log.Fatalf("invalid direction: %s (use 'up' or 'down')", *direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	v, dirty, _ := m.Version()
	fmt.Printf("migration %s complete (version: %d, dirty: %v)\n", *direction, v, dirty)
}

// loadAuditConfig reads only what the migrator needs. Provider credentials
// are not required to manage the schema, so full validation is skipped.
func loadAuditConfig(path string) (config.AuditConfig, error) {
	cfg := config.DefaultConfig()
	err := config.LoadFile(path, cfg)
	if errors.Is(err, os.ErrNotExist) {
		err = config.ParseDefault(cfg)
	}
	if err != nil {
		return config.AuditConfig{}, err
	}
	return cfg.Audit, nil
}
