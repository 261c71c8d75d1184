package dht

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Sloaix/torrent-dht/internal/config"
	"github.com/Sloaix/torrent-dht/internal/kademlia"
	"github.com/Sloaix/torrent-dht/internal/logging"
	"go.uber.org/zap"
)

// Driver is the timer-driven maintenance task that runs alongside the
// dispatcher's receive loop: a one-time bootstrap ping (Bootstrap), then
// periodic bucket-refresh pings and info-hash polling (Run).
type Driver struct {
	dispatcher *Dispatcher
	cfg        config.Config
	log        logging.Sink

	mu        sync.Mutex
	interests map[string]kademlia.ID // info_hash_hex -> id, hashes sendGetPeersRequest is tracking
}

// NewDriver builds a Driver over an already-running Dispatcher.
func NewDriver(d *Dispatcher, cfg config.Config, log logging.Sink) *Driver {
	return &Driver{
		dispatcher: d,
		cfg:        cfg,
		log:        log,
		interests:  make(map[string]kademlia.ID),
	}
}

// Bootstrap pings every configured bootstrap endpoint once, seeding the
// routing table as their ping responses arrive back through the dispatcher.
func (dr *Driver) Bootstrap() {
	for _, hostport := range dr.cfg.Bootstrap {
		host, portStr, err := net.SplitHostPort(hostport)
		if err != nil {
			dr.log.Warn("skipping malformed bootstrap entry", zap.String("entry", hostport), zap.Error(err))
			continue
		}
		port, err := parsePort(portStr)
		if err != nil {
			dr.log.Warn("skipping bootstrap entry with bad port", zap.String("entry", hostport), zap.Error(err))
			continue
		}
		endpoint, err := kademlia.NewEndpoint(host, port)
		if err != nil {
			// NewEndpoint accepts IPv4 literals and domain names (those are
			// resolved when the ping is sent); for any other host, try
			// resolving it to an IPv4 address here instead.
			ips, resolveErr := net.DefaultResolver.LookupIP(context.Background(), "ip4", host)
			if resolveErr != nil || len(ips) == 0 {
				dr.log.Warn("could not resolve bootstrap host", zap.String("host", host), zap.Error(err))
				continue
			}
			endpoint, err = kademlia.NewEndpoint(ips[0].String(), port)
			if err != nil {
				dr.log.Warn("could not build bootstrap endpoint", zap.String("host", host), zap.Error(err))
				continue
			}
		}
		dr.dispatcher.Sender().SendPingBootstrap(endpoint)
	}
}

func parsePort(s string) (int, error) {
	return strconv.Atoi(s)
}

// WatchInfoHash registers hash for periodic get_peers polling and issues the
// first round immediately against whatever nodes are currently closest to
// it. Callers that resolve magnet links elsewhere feed the raw info-hash in
// here; this package never parses a magnet URI itself.
func (dr *Driver) WatchInfoHash(hash kademlia.ID) {
	dr.mu.Lock()
	dr.interests[hash.Hex()] = hash
	dr.mu.Unlock()
	dr.pollInfoHash(hash)
}

// UnwatchInfoHash stops polling hash.
func (dr *Driver) UnwatchInfoHash(hash kademlia.ID) {
	dr.mu.Lock()
	delete(dr.interests, hash.Hex())
	dr.mu.Unlock()
}

func (dr *Driver) pollInfoHash(hash kademlia.ID) {
	closest := dr.dispatcher.RoutingTable().FindClosestNodes(hash, kademlia.BucketCapacity)
	for _, n := range closest {
		dr.dispatcher.Sender().SendGetPeers(n, hash)
	}
}

// refreshStaleBuckets pings one node per bucket that hasn't been touched
// within the configured interval, the standard Kademlia bucket-refresh
// maintenance.
func (dr *Driver) refreshStaleBuckets() {
	rt := dr.dispatcher.RoutingTable()
	for _, n := range rt.StaleTails(dr.cfg.BucketRefreshInterval) {
		dr.dispatcher.Sender().SendPing(n)
	}
}

func (dr *Driver) pollInterests() {
	dr.mu.Lock()
	hashes := make([]kademlia.ID, 0, len(dr.interests))
	for _, h := range dr.interests {
		hashes = append(hashes, h)
	}
	dr.mu.Unlock()

	for _, h := range hashes {
		dr.pollInfoHash(h)
	}
}

// Run ticks bucket refresh and info-hash polling at their configured
// intervals until ctx is cancelled.
func (dr *Driver) Run(ctx context.Context) {
	refresh := time.NewTicker(dr.cfg.BucketRefreshInterval)
	getPeers := time.NewTicker(dr.cfg.GetPeersInterval)
	defer refresh.Stop()
	defer getPeers.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			dr.refreshStaleBuckets()
		case <-getPeers.C:
			dr.pollInterests()
		}
	}
}
