// Package network chooses which configured hostname a client should be sent to.
package network

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/BradenHooton/bnetlogin/internal/models"
)

// Lookuper resolves a hostname; *net.Resolver satisfies it
type Lookuper interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// the configured local address is assumed to sit in a /24 when no interface covers it
const defaultLocalPrefixBits = 24

// AddressResolver maps client addresses to the external or local hostname
type AddressResolver struct {
	externalHost string
	localHost    string
	externalAddr netip.Addr
	localAddr    netip.Addr
	localNets    []netip.Prefix
}

// NewAddressResolver resolves both hostnames to IPv4 addresses. Any failure is returned
// wrapped in models.ErrResolution and must stop startup.
func NewAddressResolver(ctx context.Context, lookup Lookuper, externalHost, localHost string, localNetworks []netip.Prefix) (*AddressResolver, error) {
	externalAddr, err := resolveIPv4(ctx, lookup, externalHost)
	if err != nil {
		return nil, fmt.Errorf("%w: external address %q: %v", models.ErrResolution, externalHost, err)
	}

	localAddr, err := resolveIPv4(ctx, lookup, localHost)
	if err != nil {
		return nil, fmt.Errorf("%w: local address %q: %v", models.ErrResolution, localHost, err)
	}

	nets := make([]netip.Prefix, 0, len(localNetworks)+1)
	covered := false
	for _, prefix := range localNetworks {
		prefix = prefix.Masked()
		nets = append(nets, prefix)
		if prefix.Contains(localAddr) {
			covered = true
		}
	}
	if !covered {
		prefix, err := localAddr.Prefix(defaultLocalPrefixBits)
		if err == nil {
			nets = append(nets, prefix)
		}
	}

	return &AddressResolver{
		externalHost: externalHost,
		localHost:    localHost,
		externalAddr: externalAddr,
		localAddr:    localAddr,
		localNets:    nets,
	}, nil
}

func resolveIPv4(ctx context.Context, lookup Lookuper, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if !addr.Unmap().Is4() {
			return netip.Addr{}, fmt.Errorf("not an IPv4 address")
		}
		return addr.Unmap(), nil
	}

	addrs, err := lookup.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, addr := range addrs {
		if addr.Unmap().Is4() {
			return addr.Unmap(), nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no IPv4 address found")
}

// HostnameFor returns the local hostname for clients inside a local network or on loopback,
// and the external hostname for everyone else
func (r *AddressResolver) HostnameFor(addr netip.Addr) string {
	addr = addr.Unmap()

	if addr.IsLoopback() {
		return r.localHost
	}

	for _, prefix := range r.localNets {
		if prefix.Contains(addr) {
			return r.localHost
		}
	}

	return r.externalHost
}

// ExternalAddress returns the resolved external address
func (r *AddressResolver) ExternalAddress() netip.Addr {
	return r.externalAddr
}

// LocalAddress returns the resolved local address
func (r *AddressResolver) LocalAddress() netip.Addr {
	return r.localAddr
}

// InterfaceNetworks lists the IPv4 networks of the host's up, non-loopback interfaces
func InterfaceNetworks() ([]netip.Prefix, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var prefixes []netip.Prefix
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			prefix, err := netip.ParsePrefix(ipNet.String())
			if err != nil || !prefix.Addr().Unmap().Is4() {
				continue
			}
			prefixes = append(prefixes, prefix.Masked())
		}
	}

	return prefixes, nil
}
