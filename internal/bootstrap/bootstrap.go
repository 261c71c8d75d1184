// Package bootstrap supplies the well-known DHT entry points and the narrow
// external-address seam the core consumes instead of performing its own
// public-IP discovery.
package bootstrap

// DefaultNodes are well-known Mainline DHT bootstrap endpoints (domain:6881),
// used only to seed the routing table before any peer has been discovered.
var DefaultNodes = []string{
	"router.bittorrent.com:6881",
	"dht.transmissionbt.com:6881",
	"router.utorrent.com:6881",
	"dht.aelitis.com:6881",
}

// AddrResolver discovers the address this node should advertise to peers.
// The core never makes the HTTPS call itself; it consumes whatever
// AddrResolver returns.
type AddrResolver interface {
	ResolveAddr() (string, error)
}

// StaticAddr is an AddrResolver that always returns a fixed, pre-known
// address — used when the operator supplies externalAddr directly rather
// than querying an external service.
type StaticAddr string

func (s StaticAddr) ResolveAddr() (string, error) {
	return string(s), nil
}
