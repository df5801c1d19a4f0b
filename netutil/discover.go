// Package netutil is the network-discovery collaborator spec.md §6
// delegates to: finding the local IPv4 address and the subnet broadcast
// address of the primary interface.
package netutil

import (
	"net"

	"github.com/pkg/errors"
)

// LocalIPv4 returns the IPv4 address of the first non-loopback interface
// that is up and carries an IPv4 address. Falls back to 127.0.0.1 if none
// is found, matching original_source/utils/network_utils.py's fallback.
func LocalIPv4() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "netutil: list interfaces")
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 != nil {
				return ip4, nil
			}
		}
	}
	return net.IPv4(127, 0, 0, 1), nil
}

// BroadcastAddr returns the broadcast address of the primary IPv4
// interface's subnet, derived from its address and netmask, falling back
// to the limited broadcast address 255.255.255.255 per spec.md §4.3.
func BroadcastAddr() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.IPv4bcast, errors.Wrap(err, "netutil: list interfaces")
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			return broadcastOf(ipnet), nil
		}
	}
	return net.IPv4bcast, nil
}

func broadcastOf(ipnet *net.IPNet) net.IP {
	ip4 := ipnet.IP.To4()
	mask := ipnet.Mask
	bcast := make(net.IP, len(ip4))
	for i := range ip4 {
		bcast[i] = ip4[i] | ^mask[i]
	}
	return bcast
}
