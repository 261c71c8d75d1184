package dht

import (
	"fmt"
	"net"

	"github.com/Sloaix/torrent-dht/internal/kademlia"
	"github.com/Sloaix/torrent-dht/internal/krpc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func isValidID(b []byte) bool {
	return len(b) == kademlia.IDLength
}

func (d *Dispatcher) reply(addr string, port uint16, encoded []byte) {
	dst, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		d.log.Error("resolving reply address", zap.String("addr", addr), zap.Error(err))
		return
	}
	if _, err := d.conn.WriteTo(encoded, dst); err != nil {
		d.log.Error("sending reply", zap.String("addr", addr), zap.Error(err))
	}
}

func (d *Dispatcher) replyError(tid, addr string, port uint16, code int, msg string) {
	encoded, err := krpc.EncodeError(tid, code, msg)
	if err != nil {
		d.log.Error("encoding error reply", zap.Error(err))
		return
	}
	d.reply(addr, port, encoded)
}

func (d *Dispatcher) replyResult(tid, addr string, port uint16, r map[string]interface{}) {
	encoded, err := krpc.EncodeResponse(tid, r)
	if err != nil {
		d.log.Error("encoding response", zap.Error(err))
		return
	}
	d.reply(addr, port, encoded)
}

// handleQuery dispatches an incoming query by its q field.
func (d *Dispatcher) handleQuery(msg *krpc.Message, srcAddr string, srcPort uint16) {
	senderIDBytes, ok := krpc.GetBytes(msg.Args, "id")
	if !ok || !isValidID(senderIDBytes) {
		d.replyError(msg.TID, srcAddr, srcPort, krpc.ErrProtocol, "invalid or missing id")
		return
	}
	senderID, _ := kademlia.IDFromBytes(senderIDBytes)
	endpoint, err := kademlia.NewEndpoint(srcAddr, int(srcPort))
	if err != nil {
		d.replyError(msg.TID, srcAddr, srcPort, krpc.ErrProtocol, "invalid sender address")
		return
	}
	sender := kademlia.NewNode(senderID, endpoint)

	switch msg.Query {
	case krpc.Ping:
		d.handlePingQuery(msg, sender)
	case krpc.FindNode:
		d.handleFindNodeQuery(msg, sender)
	case krpc.GetPeers:
		d.handleGetPeersQuery(msg, sender)
	case krpc.AnnouncePeer:
		d.handleAnnouncePeerQuery(msg, sender)
	default:
		d.log.Error("unknown query kind", zap.String("q", string(msg.Query)))
	}
}

func (d *Dispatcher) localIDArg() string {
	return string(d.local.ID().Bytes())
}

func (d *Dispatcher) handlePingQuery(msg *krpc.Message, sender kademlia.Node) {
	d.replyResult(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, map[string]interface{}{
		"id": d.localIDArg(),
	})
}

func (d *Dispatcher) handleFindNodeQuery(msg *krpc.Message, sender kademlia.Node) {
	targetBytes, ok := krpc.GetBytes(msg.Args, "target")
	if !ok || !isValidID(targetBytes) {
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrProtocol, "invalid or missing target")
		return
	}
	target, _ := kademlia.IDFromBytes(targetBytes)

	closest := d.routingTable.FindClosestNodes(target, kademlia.BucketCapacity)
	if len(closest) == 0 {
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrGeneric, "no closest nodes available")
		return
	}
	nodesBlob, err := concatCompactNodes(closest)
	if err != nil {
		d.log.Error("encoding compact nodes", zap.Error(err))
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrServer, "internal error")
		return
	}
	d.replyResult(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, map[string]interface{}{
		"id":    d.localIDArg(),
		"nodes": string(nodesBlob),
	})
}

func (d *Dispatcher) handleGetPeersQuery(msg *krpc.Message, sender kademlia.Node) {
	infoHashBytes, ok := krpc.GetBytes(msg.Args, "info_hash")
	if !ok || !isValidID(infoHashBytes) {
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrProtocol, "invalid or missing info_hash")
		return
	}
	infoHash, _ := kademlia.IDFromBytes(infoHashBytes)
	hashHex := infoHash.Hex()

	if peers, found := d.store.Find(hashHex); found {
		token, _ := d.store.FindToken(hashHex)
		values := make([]interface{}, 0, len(peers))
		for _, p := range peers {
			compact, err := p.Compact()
			if err != nil {
				continue
			}
			values = append(values, string(compact))
		}
		d.replyResult(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, map[string]interface{}{
			"id":     d.localIDArg(),
			"token":  token,
			"values": values,
		})
		return
	}

	closest := d.routingTable.FindClosestNodes(infoHash, kademlia.BucketCapacity)
	if len(closest) == 0 {
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrGeneric, "no peers or closest nodes available")
		return
	}
	nodesBlob, err := concatCompactNodes(closest)
	if err != nil {
		d.log.Error("encoding compact nodes", zap.Error(err))
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrServer, "internal error")
		return
	}
	d.replyResult(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, map[string]interface{}{
		"id":    d.localIDArg(),
		"nodes": string(nodesBlob),
	})
}

func (d *Dispatcher) handleAnnouncePeerQuery(msg *krpc.Message, sender kademlia.Node) {
	infoHashBytes, ok := krpc.GetBytes(msg.Args, "info_hash")
	if !ok || !isValidID(infoHashBytes) {
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrProtocol, "invalid or missing info_hash")
		return
	}
	portArg, ok := krpc.GetInt(msg.Args, "port")
	if !ok || portArg <= 0 || portArg > 65535 {
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrProtocol, "invalid or missing port")
		return
	}
	token, ok := krpc.GetBytes(msg.Args, "token")
	if !ok || len(token) == 0 {
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrProtocol, "missing token")
		return
	}

	infoHash, _ := kademlia.IDFromBytes(infoHashBytes)
	hashHex := infoHash.Hex()

	if stored, has := d.store.FindToken(hashHex); has && stored != string(token) {
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrProtocol, "token mismatch")
		return
	}

	impliedPort, _ := krpc.GetInt(msg.Args, "implied_port")
	downloadPort := uint16(portArg)
	if impliedPort == 1 {
		downloadPort = sender.Endpoint.Port
	}
	peerEndpoint, err := kademlia.NewEndpoint(sender.Endpoint.Addr, int(downloadPort))
	if err != nil {
		d.replyError(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, krpc.ErrProtocol, "invalid download endpoint")
		return
	}

	if ok, err := d.store.Add(hashHex, peerEndpoint, string(token)); !ok {
		d.log.Warn("announce_peer rejected by store", zap.String("info_hash", hashHex), zap.Error(err))
	}

	d.replyResult(msg.TID, sender.Endpoint.Addr, sender.Endpoint.Port, map[string]interface{}{
		"id": d.localIDArg(),
	})
}

// asBytes coerces a decoded bencode list element (each "values" entry) to a
// byte slice, accepting either wire representation a decoder might produce.
func asBytes(v interface{}) ([]byte, bool) {
	switch t := v.(type) {
	case []byte:
		return t, true
	case string:
		return []byte(t), true
	default:
		return nil, false
	}
}

func concatCompactNodes(nodes []kademlia.Node) ([]byte, error) {
	out := make([]byte, 0, len(nodes)*kademlia.CompactNodeLen)
	for _, n := range nodes {
		compact, err := n.Compact()
		if err != nil {
			return nil, err
		}
		out = append(out, compact...)
	}
	return out, nil
}

// decodeNodesTolerant splits a compact node-info blob one entry at a time,
// keeping every entry that decodes cleanly instead of discarding the whole
// batch over one bad chunk. Every per-entry failure is preserved rather than
// dropped, combined via multierr so the caller can log the full picture.
func decodeNodesTolerant(blob []byte) ([]kademlia.Node, error) {
	if len(blob)%kademlia.CompactNodeLen != 0 {
		return nil, fmt.Errorf("dht: compact node list length %d is not a multiple of %d", len(blob), kademlia.CompactNodeLen)
	}
	count := len(blob) / kademlia.CompactNodeLen
	nodes := make([]kademlia.Node, 0, count)
	var errs error
	for i := 0; i < count; i++ {
		chunk := blob[i*kademlia.CompactNodeLen : (i+1)*kademlia.CompactNodeLen]
		node, err := kademlia.NodeFromCompact(chunk)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, errs
}

// handleResponse dispatches an incoming response by the query type stored in
// its transaction context, never by any field on the response itself — a
// bare "r" dictionary carries no indication of which query it answers.
func (d *Dispatcher) handleResponse(msg *krpc.Message, srcAddr string, srcPort uint16) {
	if !d.registry.IsValid(msg.TID) {
		d.log.Warn("dropping response with unknown or expired tid", zap.String("tid", msg.TID))
		return
	}
	senderIDBytes, ok := krpc.GetBytes(msg.R, "id")
	if !ok || !isValidID(senderIDBytes) {
		d.log.Warn("dropping response with invalid id")
		return
	}
	ctx, found := d.registry.Finish(msg.TID)
	if !found {
		return
	}
	senderID, _ := kademlia.IDFromBytes(senderIDBytes)
	endpoint, err := kademlia.NewEndpoint(srcAddr, int(srcPort))
	if err != nil {
		d.log.Warn("dropping response from unparseable address", zap.String("addr", srcAddr))
		return
	}
	sender := kademlia.NewNode(senderID, endpoint)

	switch ctx.QueryType {
	case krpc.Ping:
		d.routingTable.Add(sender)
	case krpc.FindNode:
		d.handleFindNodeResponse(msg, sender)
	case krpc.GetPeers:
		d.handleGetPeersResponse(msg, ctx, sender)
	case krpc.AnnouncePeer:
		d.routingTable.Add(sender)
	}
}

func (d *Dispatcher) handleFindNodeResponse(msg *krpc.Message, sender kademlia.Node) {
	nodesBlob, ok := krpc.GetBytes(msg.R, "nodes")
	if !ok || len(nodesBlob)%kademlia.CompactNodeLen != 0 {
		d.log.Warn("find_node response missing or malformed nodes")
		d.routingTable.Add(sender)
		return
	}
	nodes, err := decodeNodesTolerant(nodesBlob)
	if err != nil {
		d.log.Warn("decoding find_node response nodes", zap.Error(err))
	}
	for _, n := range nodes {
		d.routingTable.Add(n)
	}
	d.routingTable.Add(sender)
}

// handleGetPeersResponse keys the announce token off the response's own
// transaction id rather than trusting a peer-supplied r.token — the tid
// already uniquely identifies the exchange that produced this response, so
// there's no need to round-trip a token value a malicious peer could forge.
func (d *Dispatcher) handleGetPeersResponse(msg *krpc.Message, ctx krpc.Context, sender kademlia.Node) {
	token := msg.TID

	if values, ok := krpc.GetList(msg.R, "values"); ok {
		peers := make([]kademlia.Endpoint, 0, len(values))
		for _, v := range values {
			raw, ok := asBytes(v)
			if !ok || len(raw) != kademlia.CompactLen {
				continue
			}
			peer, err := kademlia.EndpointFromCompact(raw)
			if err != nil {
				continue
			}
			peers = append(peers, peer)
		}
		if ctx.InfoHash != "" {
			d.store.AddList(ctx.InfoHash, peers, token)
		}
		d.routingTable.Add(sender)
		return
	}

	if nodesBlob, ok := krpc.GetBytes(msg.R, "nodes"); ok && len(nodesBlob)%kademlia.CompactNodeLen == 0 {
		nodes, err := decodeNodesTolerant(nodesBlob)
		if err != nil {
			d.log.Warn("decoding get_peers response nodes", zap.Error(err))
		}
		if infoHash, parseErr := kademlia.IDFromHex(ctx.InfoHash); parseErr == nil {
			for _, n := range nodes {
				d.sender.SendGetPeers(n, infoHash)
			}
		}
	}

	d.routingTable.Add(sender)
}

// handleError logs the error and finishes the transaction. It only acts on
// a tid that is both present and currently valid — an empty or unknown tid
// means the error can't be tied to anything we're still waiting on.
func (d *Dispatcher) handleError(msg *krpc.Message) {
	if msg.TID == "" || !d.registry.IsValid(msg.TID) {
		return
	}
	d.log.Warn("received KRPC error",
		zap.Int64("code", msg.ErrorCode),
		zap.String("message", msg.ErrorMsg),
		zap.String("tid", msg.TID))
	d.registry.Finish(msg.TID)
}
