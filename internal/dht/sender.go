package dht

import (
	"fmt"
	"net"

	"github.com/Sloaix/torrent-dht/internal/kademlia"
	"github.com/Sloaix/torrent-dht/internal/krpc"
	"github.com/Sloaix/torrent-dht/internal/logging"
	"go.uber.org/zap"
)

// Sender is the outbound half of the KRPC engine: it allocates a transaction,
// encodes a query per its shape, and transmits it over the dispatcher's
// socket. A send failure is logged and swallowed — there is no retry at this
// layer; a query that never gets a response simply times its transaction out.
type Sender struct {
	conn     net.PacketConn
	localID  kademlia.ID
	registry *krpc.Registry
	log      logging.Sink
}

func newSender(conn net.PacketConn, localID kademlia.ID, registry *krpc.Registry, log logging.Sink) *Sender {
	return &Sender{conn: conn, localID: localID, registry: registry, log: log}
}

func (s *Sender) send(addr string, port uint16, query krpc.Query, args map[string]interface{}, ctx krpc.Context) {
	tid, err := s.registry.Create(ctx)
	if err != nil {
		s.log.Error("allocating transaction id", zap.Error(err))
		return
	}
	encoded, err := krpc.EncodeQuery(tid, query, args)
	if err != nil {
		s.log.Error("encoding query", zap.String("query", string(query)), zap.Error(err))
		return
	}
	dst, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		s.log.Error("resolving peer address", zap.String("addr", addr), zap.Error(err))
		return
	}
	if _, err := s.conn.WriteTo(encoded, dst); err != nil {
		s.log.Error("sending query", zap.String("query", string(query)), zap.Error(err))
	}
}

// SendPing issues a ping to a known node.
func (s *Sender) SendPing(node kademlia.Node) {
	s.send(node.Endpoint.Addr, node.Endpoint.Port, krpc.Ping,
		map[string]interface{}{"id": string(s.localID.Bytes())},
		krpc.Context{QueryType: krpc.Ping, TargetAddr: node.Endpoint.Addr, TargetPort: node.Endpoint.Port})
}

// SendPingBootstrap pings a bootstrap endpoint we don't yet have a Node for.
func (s *Sender) SendPingBootstrap(endpoint kademlia.Endpoint) {
	s.send(endpoint.Addr, endpoint.Port, krpc.Ping,
		map[string]interface{}{"id": string(s.localID.Bytes())},
		krpc.Context{QueryType: krpc.Ping, TargetAddr: endpoint.Addr, TargetPort: endpoint.Port})
}

// SendFindNode asks addr:port for the nodes closest to target.
func (s *Sender) SendFindNode(addr string, port uint16, target kademlia.ID) {
	s.send(addr, port, krpc.FindNode,
		map[string]interface{}{"id": string(s.localID.Bytes()), "target": string(target.Bytes())},
		krpc.Context{QueryType: krpc.FindNode, TargetAddr: addr, TargetPort: port})
}

// SendGetPeers asks node for peers announcing infoHash.
func (s *Sender) SendGetPeers(node kademlia.Node, infoHash kademlia.ID) {
	s.send(node.Endpoint.Addr, node.Endpoint.Port, krpc.GetPeers,
		map[string]interface{}{"id": string(s.localID.Bytes()), "info_hash": string(infoHash.Bytes())},
		krpc.Context{QueryType: krpc.GetPeers, TargetAddr: node.Endpoint.Addr, TargetPort: node.Endpoint.Port, InfoHash: infoHash.Hex()})
}

// SendAnnouncePeer announces this node as a peer for infoHash on the local
// listen port, using token from a prior get_peers exchange with node.
func (s *Sender) SendAnnouncePeer(node kademlia.Node, infoHash kademlia.ID, listenPort uint16, token string) {
	s.send(node.Endpoint.Addr, node.Endpoint.Port, krpc.AnnouncePeer,
		map[string]interface{}{
			"id":           string(s.localID.Bytes()),
			"info_hash":    string(infoHash.Bytes()),
			"port":         int64(listenPort),
			"implied_port": int64(0),
			"token":        token,
		},
		krpc.Context{QueryType: krpc.AnnouncePeer, TargetAddr: node.Endpoint.Addr, TargetPort: node.Endpoint.Port, InfoHash: infoHash.Hex()})
}
