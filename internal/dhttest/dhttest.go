// Package dhttest provides fixtures for the dht test suite:
// deterministic ids and an in-memory net.PacketConn pair, so tests never
// bind a real UDP socket.
package dhttest

import (
	"net"
	"sync"
	"time"

	"github.com/Sloaix/torrent-dht/internal/kademlia"
)

// PipeConn is a net.PacketConn backed by a pair of in-memory queues, so two
// ends can exchange datagrams without touching the network stack.
type PipeConn struct {
	localAddr net.Addr
	inbox     chan datagram
	peer      *PipeConn

	mu     sync.Mutex
	closed bool
}

type datagram struct {
	payload []byte
	from    net.Addr
}

// NewPipe returns two connected PipeConns addressed a and b; writes to one
// arrive as reads on the other, with the writer's address attached.
func NewPipe(a, b net.Addr) (*PipeConn, *PipeConn) {
	left := &PipeConn{localAddr: a, inbox: make(chan datagram, 64)}
	right := &PipeConn{localAddr: b, inbox: make(chan datagram, 64)}
	left.peer = right
	right.peer = left
	return left, right
}

func (p *PipeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	dg, ok := <-p.inbox
	if !ok {
		return 0, nil, net.ErrClosed
	}
	n := copy(b, dg.payload)
	return n, dg.from, nil
}

func (p *PipeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, net.ErrClosed
	}
	cp := append([]byte(nil), b...)
	p.peer.inbox <- datagram{payload: cp, from: p.localAddr}
	return len(b), nil
}

func (p *PipeConn) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.inbox)
	return nil
}

func (p *PipeConn) LocalAddr() net.Addr                { return p.localAddr }
func (p *PipeConn) SetDeadline(t time.Time) error      { return nil }
func (p *PipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (p *PipeConn) SetWriteDeadline(t time.Time) error { return nil }

// IDFromByte builds a deterministic 20-byte id whose last byte is b, handy
// for constructing populations with known relative XOR distance.
func IDFromByte(b byte) kademlia.ID {
	var id kademlia.ID
	id[kademlia.IDLength-1] = b
	return id
}
