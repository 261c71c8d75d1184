// Command dhtnode runs a standalone Mainline DHT participant: it bootstraps
// a routing table from the well-known entry nodes, answers queries from
// peers, and exposes periodic maintenance over the node's own identity.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sloaix/torrent-dht/internal/bootstrap"
	"github.com/Sloaix/torrent-dht/internal/config"
	"github.com/Sloaix/torrent-dht/internal/dht"
	"github.com/Sloaix/torrent-dht/internal/kademlia"
	"github.com/Sloaix/torrent-dht/internal/krpc"
	"github.com/Sloaix/torrent-dht/internal/logging"
	"github.com/Sloaix/torrent-dht/internal/store"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to an INI config file (optional; defaults are used otherwise)")
	dev := flag.Bool("dev", false, "use development (console) logging instead of production JSON logging")
	flag.Parse()

	log, err := buildLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dhtnode: building logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Defaults()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Error("loading config", zap.Error(err))
			os.Exit(1)
		}
	}

	if err := run(cfg, log); err != nil {
		log.Error("node exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func buildLogger(dev bool) (logging.Sink, error) {
	if dev {
		return logging.NewDevelopment()
	}
	return logging.NewProduction()
}

func run(cfg config.Config, log logging.Sink) error {
	localID, err := localIdentity(cfg.SeedPath)
	if err != nil {
		return fmt.Errorf("deriving local id: %w", err)
	}

	advertiseAddr, err := externalAddrResolver(cfg.ExternalAddr).ResolveAddr()
	if err != nil {
		return fmt.Errorf("resolving external address: %w", err)
	}
	endpoint, err := kademlia.NewEndpoint(advertiseAddr, cfg.Port)
	if err != nil {
		return fmt.Errorf("building local endpoint: %w", err)
	}
	local := dht.NewLocalNode(localID, endpoint)

	conn, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("binding udp socket: %w", err)
	}
	defer conn.Close()

	routingTable := kademlia.NewRoutingTable(localID)
	registry := krpc.NewRegistry()
	peerStore := store.New()

	dispatcher := dht.NewDispatcher(conn, local, routingTable, registry, peerStore, log)
	driver := dht.NewDriver(dispatcher, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	log.Info("starting dht node",
		zap.String("id", localID.Hex()),
		zap.Int("port", cfg.Port),
		zap.Strings("bootstrap", cfg.Bootstrap))

	driver.Bootstrap()
	go driver.Run(ctx)

	return dispatcher.Run(ctx)
}

// externalAddrResolver picks the AddrResolver this node advertises through:
// a fixed address when the operator configured one, otherwise a bindable
// default. A deployment that needs real public-IP discovery supplies its own
// bootstrap.AddrResolver here instead.
func externalAddrResolver(configured string) bootstrap.AddrResolver {
	if configured != "" {
		return bootstrap.StaticAddr(configured)
	}
	return bootstrap.StaticAddr("0.0.0.0")
}

// localIdentity derives this node's id by hashing a stable seed file's
// contents (e.g. a MAC address), falling back to a fresh random id when no
// seed is available yet, so a node keeps the same identity across restarts
// once it has a seed file on disk.
func localIdentity(seedPath string) (kademlia.ID, error) {
	seed, err := os.ReadFile(seedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return kademlia.RandomID()
		}
		return kademlia.ID{}, err
	}
	return kademlia.IDFromSeed(seed), nil
}
