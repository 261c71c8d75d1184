package dht

import (
	"context"
	"net"
	"strconv"

	"github.com/Sloaix/torrent-dht/internal/kademlia"
	"github.com/Sloaix/torrent-dht/internal/krpc"
	"github.com/Sloaix/torrent-dht/internal/logging"
	"github.com/Sloaix/torrent-dht/internal/store"
	"go.uber.org/zap"
)

// datagramBufferSize is large enough to hold a find_node response carrying
// 8 compact nodes (26 bytes each) plus KRPC envelope overhead, with headroom.
const datagramBufferSize = 2048

// Dispatcher owns the UDP socket and is the sole place inbound datagrams are
// decoded, classified, and routed to a handler. Most routing-table,
// registry, and store mutations happen from the single goroutine that runs
// Run; the maintenance driver also reaches the routing table from its own
// goroutine, which is why RoutingTable carries its own mutex rather than
// relying on goroutine confinement alone.
type Dispatcher struct {
	conn         net.PacketConn
	local        LocalNode
	routingTable *kademlia.RoutingTable
	registry     *krpc.Registry
	store        *store.Store
	sender       *Sender
	log          logging.Sink
}

// NewDispatcher builds a Dispatcher bound to conn, ready to serve local's
// identity against rt/registry/st.
func NewDispatcher(conn net.PacketConn, local LocalNode, rt *kademlia.RoutingTable, registry *krpc.Registry, st *store.Store, log logging.Sink) *Dispatcher {
	return &Dispatcher{
		conn:         conn,
		local:        local,
		routingTable: rt,
		registry:     registry,
		store:        st,
		sender:       newSender(conn, local.ID(), registry, log),
		log:          log,
	}
}

// Sender exposes the outbound capability, used by the driver and by callers
// bridging an external magnet-parser collaborator into sendGetPeersRequest.
func (d *Dispatcher) Sender() *Sender {
	return d.sender
}

// RoutingTable exposes the routing table for the driver's refresh pass and
// for read access from the external InfoHashStore.find consumer's caller.
func (d *Dispatcher) RoutingTable() *kademlia.RoutingTable {
	return d.routingTable
}

// Store exposes the info-hash store, the one piece of state a caller
// outside this package needs direct read access to.
func (d *Dispatcher) Store() *store.Store {
	return d.store
}

// Run is the single-threaded receive loop: receive, decode, dispatch, catch
// and log whatever the handler does wrong, and continue. It returns when ctx
// is cancelled or the socket is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		d.conn.Close()
	}()

	buf := make([]byte, datagramBufferSize)
	for {
		n, addr, err := d.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.handleDatagram(append([]byte(nil), buf[:n]...), addr)
	}
}

func (d *Dispatcher) handleDatagram(raw []byte, src net.Addr) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panicked", zap.Any("recovered", r))
		}
	}()

	srcHost, srcPort := splitHostPort(src)

	msg, err := krpc.Decode(raw)
	if err != nil {
		d.log.Warn("dropping malformed datagram", zap.String("addr", srcHost), zap.Error(err))
		d.routingTable.RemoveByAddr(srcHost)
		return
	}

	switch msg.Type {
	case krpc.TypeResponse:
		d.handleResponse(msg, srcHost, srcPort)
	case krpc.TypeQuery:
		d.handleQuery(msg, srcHost, srcPort)
	case krpc.TypeError:
		d.handleError(msg)
	default:
		d.log.Warn("dropping message with unknown type", zap.String("y", string(msg.Type)))
	}
}

func splitHostPort(addr net.Addr) (string, uint16) {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.IP.String(), uint16(udpAddr.Port)
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return host, 0
	}
	return host, uint16(p)
}
