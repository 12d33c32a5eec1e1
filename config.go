package mldht

import (
	"flag"
	"time"
)

// Config configures a Node. Use NewConfig for a populated default;
// the zero value is not usable directly since several fields must be
// positive to make sense (MaxNodes, Alpha, ...).
type Config struct {
	// Address to listen on. Empty picks one automatically.
	Address string
	// UDP port to listen on. 0 picks a random port.
	Port int
	// "udp4" or "udp6".
	UDPProto string

	// Comma separated host:port list of bootstrap routers.
	DHTRouters string
	// Target size of the routing table: the periodic health check
	// re-bootstraps while the table holds fewer than MaxNodes/2
	// contacts. The table itself is not capped by this value.
	MaxNodes int
	// Accepted for configuration compatibility; the node does not read
	// it.
	NumTargetPeers int
	// Parallelism factor for iterative find_node/get_peers lookups.
	Alpha int

	// How long a pending query waits for a reply before timing out.
	ResponseTimeout time.Duration
	// How long an announced peer record lives without renewal.
	PeerTTL time.Duration
	// How often the announce_peer token signing secret rotates.
	TokenRotatePeriod time.Duration
	// How often the node re-checks whether it needs more contacts and
	// re-bootstraps if so.
	HealthCheckPeriod time.Duration

	// Maximum inbound packets per second across all clients. A
	// negative value disables the limit.
	RateLimit int64
	// Maximum inbound packets per minute from a single client IP. Zero
	// disables the per-client limit.
	ClientPerMinuteLimit int
	// Number of distinct client IPs the per-client limiter remembers.
	ThrottlerTrackedClients int
	// Cap on the number of distinct infohashes the peer store tracks.
	// 0 means unbounded.
	MaxInfoHashes int

	// SaveRoutingTable and SavePeriod are accepted for configuration
	// compatibility but unused: this node does not persist its routing
	// table to disk.
	SaveRoutingTable bool
	SavePeriod       time.Duration
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Address:                 "",
		Port:                    0,
		UDPProto:                "udp4",
		DHTRouters:              "router.magnets.im:6881,router.bittorrent.com:6881,dht.transmissionbt.com:6881",
		MaxNodes:                500,
		NumTargetPeers:          5,
		Alpha:                   3,
		ResponseTimeout:         5 * time.Second,
		PeerTTL:                 time.Hour,
		TokenRotatePeriod:       5 * time.Minute,
		HealthCheckPeriod:       15 * time.Minute,
		RateLimit:               100,
		ClientPerMinuteLimit:    50,
		ThrottlerTrackedClients: 1000,
		MaxInfoHashes:           2048,
		SaveRoutingTable:        false,
		SavePeriod:              5 * time.Minute,
	}
}

var defaultConfig = NewConfig()

// RegisterFlags registers c's fields as command line flags. If c is
// nil, a package-level default config is used.
func RegisterFlags(c *Config) {
	if c == nil {
		c = defaultConfig
	}
	flag.StringVar(&c.DHTRouters, "routers", c.DHTRouters,
		"Comma separated addresses of DHT routers used to bootstrap the network.")
	flag.IntVar(&c.MaxNodes, "maxNodes", c.MaxNodes,
		"Target routing table size; the node re-bootstraps while it holds fewer than half this many contacts.")
	flag.IntVar(&c.Alpha, "alpha", c.Alpha,
		"Parallelism factor for iterative find_node/get_peers lookups.")
	flag.DurationVar(&c.ResponseTimeout, "responseTimeout", c.ResponseTimeout,
		"How long to wait for a reply before a query times out.")
	flag.DurationVar(&c.HealthCheckPeriod, "healthCheckPeriod", c.HealthCheckPeriod,
		"How often to check whether more contacts are needed and re-bootstrap.")
	flag.Int64Var(&c.RateLimit, "rateLimit", c.RateLimit,
		"Maximum inbound packets per second, across all clients. Negative disables the limit.")
	flag.IntVar(&c.ClientPerMinuteLimit, "clientPerMinuteLimit", c.ClientPerMinuteLimit,
		"Maximum inbound packets per minute from a single client IP. Zero disables the limit.")
	flag.IntVar(&c.MaxInfoHashes, "maxInfoHashes", c.MaxInfoHashes,
		"Cap on the number of distinct infohashes tracked by the peer store. Zero means unbounded.")
}
