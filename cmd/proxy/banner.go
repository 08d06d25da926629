package main

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/af-corp/model-proxy/internal/config"
	"github.com/af-corp/model-proxy/internal/gateway"
)

// printBanner writes a human-readable summary of where the proxy listens and
// what it serves.
func printBanner(w io.Writer, cfg *config.Config, snap *gateway.Snapshot) {
	addrs, _ := net.InterfaceAddrs()
	fmt.Fprintln(w, "model proxy is running")
	for _, u := range serverURLs(cfg.Server.Host, cfg.Server.Port, addrs) {
		fmt.Fprintf(w, "  %s\n", u)
	}
	fmt.Fprintf(w, "supported models: %s\n", strings.Join(snap.Registry.SupportedModels(), ", "))
	fmt.Fprintf(w, "retries: %d, retry delay: %dms, request timeout: %dms\n",
		cfg.Routing.MaxRetries, cfg.Routing.RetryDelayMs, cfg.Routing.RequestTimeoutMs)
	if cfg.Routing.CustomSystemPrompt != "" {
		fmt.Fprintln(w, "custom system prompt: configured")
	}
}

// serverURLs lists the base URLs a client can reach. A wildcard bind address
// expands to loopback plus every non-loopback IPv4 interface address.
func serverURLs(host string, port int, addrs []net.Addr) []string {
	p := strconv.Itoa(port)
	if host != "" && host != "0.0.0.0" && host != "::" {
		return []string{"http://" + net.JoinHostPort(host, p)}
	}

	urls := []string{"http://localhost:" + p}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			urls = append(urls, "http://"+net.JoinHostPort(ip4.String(), p))
		}
	}
	return urls
}
