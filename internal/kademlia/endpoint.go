package kademlia

import (
	"encoding/binary"
	"fmt"
	"net"
	"regexp"
)

// AddrType classifies an Endpoint's address field.
type AddrType int

const (
	// AddrIPv4 marks an Endpoint whose Addr is a dotted-quad IPv4 literal.
	AddrIPv4 AddrType = iota
	// AddrDomain marks an Endpoint whose Addr is a hostname (used only for
	// bootstrap entries; compact encoding requires AddrIPv4).
	AddrDomain
)

// domainPattern is a conservative RFC-1035-ish hostname check: labels of
// letters/digits/hyphens separated by dots, no leading/trailing hyphen.
var domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// Endpoint is a network contact point: an address plus a UDP port.
type Endpoint struct {
	Addr string
	Port uint16
	Type AddrType
}

// NewEndpoint validates addr/port and classifies addr as IPv4 or domain.
func NewEndpoint(addr string, port int) (Endpoint, error) {
	if port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("kademlia: port %d out of range", port)
	}
	if ip := net.ParseIP(addr); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return Endpoint{Addr: ip4.String(), Port: uint16(port), Type: AddrIPv4}, nil
		}
		return Endpoint{}, fmt.Errorf("kademlia: endpoint address %q is not IPv4", addr)
	}
	if domainPattern.MatchString(addr) {
		return Endpoint{Addr: addr, Port: uint16(port), Type: AddrDomain}, nil
	}
	return Endpoint{}, fmt.Errorf("kademlia: %q is neither an IPv4 address nor a valid domain", addr)
}

// HostPort returns "addr:port", suitable for net.Dial/net.ResolveUDPAddr.
func (e Endpoint) HostPort() string {
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}

// Equal compares endpoints by address and port (the identity used by peer
// set membership in the InfoHashStore).
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Addr == other.Addr && e.Port == other.Port
}

// CompactLen is the size in bytes of a compact peer/endpoint encoding.
const CompactLen = 6

// Compact encodes an IPv4 Endpoint as 4 bytes of address plus 2 bytes of
// big-endian port. Only IPv4 endpoints can be compacted; this node doesn't
// advertise or parse an IPv6 compact form.
func (e Endpoint) Compact() ([]byte, error) {
	if e.Type != AddrIPv4 {
		return nil, fmt.Errorf("kademlia: cannot compact non-IPv4 endpoint %q", e.Addr)
	}
	ip := net.ParseIP(e.Addr).To4()
	if ip == nil {
		return nil, fmt.Errorf("kademlia: endpoint address %q did not parse as IPv4", e.Addr)
	}
	out := make([]byte, CompactLen)
	copy(out[:4], ip)
	binary.BigEndian.PutUint16(out[4:], e.Port)
	return out, nil
}

// EndpointFromCompact decodes the 6-byte compact peer/endpoint encoding.
func EndpointFromCompact(b []byte) (Endpoint, error) {
	if len(b) != CompactLen {
		return Endpoint{}, fmt.Errorf("kademlia: compact endpoint must be %d bytes, got %d", CompactLen, len(b))
	}
	addr := net.IP(b[:4]).String()
	port := binary.BigEndian.Uint16(b[4:])
	return Endpoint{Addr: addr, Port: port, Type: AddrIPv4}, nil
}
