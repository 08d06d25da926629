package main

import (
	"bytes"
	"log/slog"
	"net"
	"reflect"
	"strings"
	"testing"

	"github.com/af-corp/model-proxy/internal/config"
	"github.com/af-corp/model-proxy/internal/gateway"
)

func ipNet(s string) *net.IPNet {
	ip, n, _ := net.ParseCIDR(s)
	n.IP = ip
	return n
}

func TestServerURLs(t *testing.T) {
	addrs := []net.Addr{
		ipNet("127.0.0.1/8"),
		ipNet("192.168.1.23/24"),
		ipNet("fe80::1/64"),
		ipNet("10.0.0.5/8"),
	}

	tests := []struct {
		name string
		host string
		want []string
	}{
		{"wildcard v4", "0.0.0.0", []string{"http://localhost:3000", "http://192.168.1.23:3000", "http://10.0.0.5:3000"}},
		{"wildcard v6", "::", []string{"http://localhost:3000", "http://192.168.1.23:3000", "http://10.0.0.5:3000"}},
		{"empty host", "", []string{"http://localhost:3000", "http://192.168.1.23:3000", "http://10.0.0.5:3000"}},
		{"specific host", "127.0.0.1", []string{"http://127.0.0.1:3000"}},
		{"specific v6 host", "::1", []string{"http://[::1]:3000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serverURLs(tt.host, 3000, addrs); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("serverURLs(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestPrintBanner(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Providers.Zhipu = config.ProviderConfig{APIKey: "zk-secret"}
	snap, err := gateway.NewSnapshot(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	printBanner(&buf, cfg, snap)
	out := buf.String()

	for _, want := range []string{"http://127.0.0.1:3000", "supported models: glm-4.5", "retries: 3, retry delay: 1000ms, request timeout: 60000ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "zk-secret") {
		t.Error("banner leaked the api key")
	}
}
