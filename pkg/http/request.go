package http

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []netip.Prefix
}

// NewIPConfig parses trusted proxy CIDR ranges; a bare address is taken as a single host
func NewIPConfig(trustedProxies []string) (*IPConfig, error) {
	cfg := &IPConfig{}
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			entry = netip.PrefixFrom(addr, addr.BitLen()).String()
		}

		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		cfg.TrustedProxies = append(cfg.TrustedProxies, prefix.Masked())
	}
	return cfg, nil
}

// ClientAddr extracts the real client address from the request.
// X-Forwarded-For and X-Real-IP are honoured only when the peer is a trusted proxy,
// so a direct client cannot spoof its address through headers.
//
// Flow:
// 1. If request is from trusted proxy, walk X-Forwarded-For from the right and take the
//    first hop that is not a trusted proxy
// 2. If request is from trusted proxy, check X-Real-IP header
// 3. Fall back to RemoteAddr
func ClientAddr(r *http.Request, config *IPConfig) netip.Addr {
	remote := remoteAddr(r)

	if config != nil && config.isTrustedProxy(remote) {
		if addr, ok := config.forwardedFor(r); ok {
			return addr
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
				return addr.Unmap()
			}
		}
	}

	return remote
}

// forwardedFor returns the hop that connected to the outermost trusted proxy.
// Entries left of it were written by the client and are never used. When every
// hop is trusted the leftmost one is returned; a malformed hop discards the header.
func (c *IPConfig) forwardedFor(r *http.Request) (netip.Addr, bool) {
	var hops []string
	for _, value := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(value, ",")...)
	}

	var last netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// The chain cannot be followed past a malformed hop
			return netip.Addr{}, false
		}
		addr = addr.Unmap()
		if !c.isTrustedProxy(addr) {
			return addr, true
		}
		last = addr
	}

	return last, last.IsValid()
}

// ExtractClientIP returns ClientAddr as a string, "unknown" when it cannot be determined
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	addr := ClientAddr(r, config)
	if !addr.IsValid() {
		return "unknown"
	}
	return addr.String()
}

// remoteAddr parses RemoteAddr with or without a port
func remoteAddr(r *http.Request) netip.Addr {
	if r.RemoteAddr == "" {
		return netip.Addr{}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func (c *IPConfig) isTrustedProxy(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	for _, prefix := range c.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
