// Package ipam holds the IPv4 address math the host backends need to turn
// OpenStack dotted netmasks into the forms esxcli and vSphere accept.
package ipam

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net"
)

// ParseIPv4 parses a dotted-quad IPv4 address.
func ParseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid IPv4 address %q", s)
	}
	return ip, nil
}

// PrefixLength converts a dotted netmask ("255.255.255.0") into its prefix
// length (24). Non-contiguous masks are rejected.
func PrefixLength(netmask string) (int, error) {
	ip, err := ParseIPv4(netmask)
	if err != nil {
		return 0, fmt.Errorf("netmask: %w", err)
	}
	m := IPToUint32(ip)
	ones := bits.LeadingZeros32(^m)
	if bits.TrailingZeros32(m) != 32-ones && m != 0 {
		return 0, fmt.Errorf("netmask %s is not contiguous", netmask)
	}
	return ones, nil
}

// CIDR renders network/netmask in prefix notation with host bits cleared,
// e.g. ("10.99.1.0", "255.255.0.0") -> "10.99.0.0/16".
func CIDR(network, netmask string) (string, error) {
	ip, err := ParseIPv4(network)
	if err != nil {
		return "", fmt.Errorf("network: %w", err)
	}
	ones, err := PrefixLength(netmask)
	if err != nil {
		return "", err
	}
	mask := net.CIDRMask(ones, 32)
	base := IPToUint32(ip) & binary.BigEndian.Uint32(mask)
	return fmt.Sprintf("%s/%d", Uint32ToIP(base), ones), nil
}

// IsUnspecified reports whether s is the IPv4 wildcard address.
func IsUnspecified(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil && ip.IsUnspecified()
}

// IPToUint32 converts a net.IP (IPv4) to a uint32.
func IPToUint32(ip net.IP) uint32 {
	ip = ip.To4()
	return binary.BigEndian.Uint32(ip)
}

// Uint32ToIP converts a uint32 to a net.IP (IPv4).
func Uint32ToIP(n uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, n)
	return ip
}
