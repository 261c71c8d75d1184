// Package config loads node configuration from an INI file under the
// "[dht]" section, the way arcd's config loader reads its own section.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sloaix/torrent-dht/internal/bootstrap"
	"github.com/majestrate/configparser"
)

// Config is the set of values the runtime needs to start a node.
type Config struct {
	// Port is the local UDP listen port.
	Port int
	// ExternalAddr is the address this node advertises to peers (supplied by
	// an external IP-lookup collaborator; the core never performs the
	// lookup itself).
	ExternalAddr string
	// SeedPath is a file containing a stable seed (e.g. a MAC address) used
	// to derive the local node id.
	SeedPath string
	// Bootstrap lists "host:port" entries to ping at startup.
	Bootstrap []string
	// BucketRefreshInterval is how often the driver re-pings a random node
	// per stale bucket.
	BucketRefreshInterval time.Duration
	// GetPeersInterval is how often the driver re-polls outstanding
	// info-hash interests.
	GetPeersInterval time.Duration
}

// Defaults mirror the public Mainline DHT's well-known bootstrap set.
func Defaults() Config {
	return Config{
		Port:                  6881,
		SeedPath:              "dht/seed",
		Bootstrap:             append([]string(nil), bootstrap.DefaultNodes...),
		BucketRefreshInterval: 15 * time.Minute,
		GetPeersInterval:      5 * time.Minute,
	}
}

// Load reads an INI file's "[dht]" section, overlaying values onto Defaults.
// Missing keys keep their default; the file itself must exist and parse.
func Load(path string) (Config, error) {
	cfg := Defaults()

	conf, err := configparser.Read(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	section, err := conf.Section("dht")
	if err != nil {
		return Config{}, fmt.Errorf("config: section [dht] in %s: %w", path, err)
	}
	options := section.Options()

	if v, ok := options["port"]; ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: port %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v, ok := options["externaladdr"]; ok {
		cfg.ExternalAddr = v
	}
	if v, ok := options["seedpath"]; ok {
		cfg.SeedPath = v
	}
	if v, ok := options["bootstrap"]; ok {
		var entries []string
		for _, field := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(field); trimmed != "" {
				entries = append(entries, trimmed)
			}
		}
		cfg.Bootstrap = entries
	}
	if v, ok := options["bucketrefreshinterval"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: bucketRefreshInterval %q: %w", v, err)
		}
		cfg.BucketRefreshInterval = d
	}
	if v, ok := options["getpeersinterval"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: getPeersInterval %q: %w", v, err)
		}
		cfg.GetPeersInterval = d
	}

	return cfg, nil
}
