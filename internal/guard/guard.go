// Package guard decides whether the proxy may fetch from a hostname.
//
// The guard exists to stop server-side request forgery: without it, a caller
// could point the proxy at loopback, RFC 1918, or cloud-metadata addresses and
// read services that were never meant to be reachable from outside.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"pageproxy/internal/config"
	"pageproxy/internal/model"
)

// privateNetworks are the address ranges the guard refuses to fetch from.
var privateNetworks []*net.IPNet

func init() {
	cidrs := []string{
		"127.0.0.0/8",    // IPv4 loopback
		"10.0.0.0/8",     // RFC 1918 private
		"172.16.0.0/12",  // RFC 1918 private
		"192.168.0.0/16", // RFC 1918 private
		"169.254.0.0/16", // link-local (cloud metadata lives at 169.254.169.254)
		"::1/128",        // IPv6 loopback
		"fc00::/7",       // IPv6 unique local (fc00–fdff)
		"fe80::/10",      // IPv6 link-local
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("guard: invalid CIDR " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// IsPrivate reports whether ip falls in a private, loopback, or link-local
// range. IPv4-mapped IPv6 addresses are unwrapped to their IPv4 form first.
func IsPrivate(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// resolver is the subset of net.Resolver the guard uses; swapped in tests.
type resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard authorizes target hostnames before any upstream fetch.
type Guard struct {
	allowlist    map[string]bool
	privateCheck bool
	resolver     resolver
	logger       *slog.Logger
}

// New creates a Guard from the proxy configuration.
func New(cfg *config.Config, logger *slog.Logger) *Guard {
	allowlist := make(map[string]bool, len(cfg.Proxy.Allowlist))
	for _, h := range cfg.Proxy.Allowlist {
		allowlist[h] = true
	}
	return &Guard{
		allowlist:    allowlist,
		privateCheck: cfg.Proxy.PrivateCheckEnabled(),
		resolver:     net.DefaultResolver,
		logger:       logger.With("component", "guard"),
	}
}

const lookupTimeout = 5 * time.Second

// Authorize decides whether hostname may be fetched. The decision is computed
// fresh for every request: DNS is re-resolved each time, never reused from a
// prior request, so a record that has started pointing at an internal address
// is caught on the next call.
//
// If ANY resolved address is private the whole host is denied. A multi-homed
// or rebinding host must not be trusted on the strength of its best address.
func (g *Guard) Authorize(ctx context.Context, hostname string) model.HostDecision {
	if hostname == "" {
		return model.Deny("empty hostname")
	}

	if len(g.allowlist) > 0 && !g.allowlist[hostname] {
		return model.Deny(fmt.Sprintf("host %q is not on the allowlist", hostname))
	}

	if !g.privateCheck {
		return model.Allow()
	}

	// Literal IP targets skip DNS entirely.
	if ip := net.ParseIP(hostname); ip != nil {
		if IsPrivate(ip) {
			return model.Deny(fmt.Sprintf("address %s is in a private range", ip))
		}
		return model.Allow()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	addrs, err := g.resolver.LookupIPAddr(lookupCtx, hostname)
	if err != nil {
		// Fail closed: an unresolvable host is treated as unsafe.
		g.logger.Debug("lookup failed", "host", hostname, "err", err)
		return model.Deny(fmt.Sprintf("host %q did not resolve", hostname))
	}
	if len(addrs) == 0 {
		return model.Deny(fmt.Sprintf("host %q resolved to no addresses", hostname))
	}

	for _, addr := range addrs {
		if IsPrivate(addr.IP) {
			g.logger.Info("denied private address",
				"host", hostname,
				"addr", addr.IP.String(),
			)
			return model.Deny(fmt.Sprintf("host %q resolves to private address %s", hostname, addr.IP))
		}
	}

	return model.Allow()
}
