// Package mldht implements a mainline DHT (BEP-5) node: a UDP KRPC
// protocol engine, a Kademlia routing table, and a peer store, wired
// together behind a small API for bootstrapping, looking up nodes and
// peers, and announcing as a peer for an infohash.
package mldht

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"mldht/arena"
	"mldht/contact"
	"mldht/id"
	"mldht/krpc"
	"mldht/logger"
	"mldht/peer"
	"mldht/ratelimit"
	"mldht/table"
	"mldht/token"
	"mldht/transaction"
)

// EventKind categorizes an Event published on Node.Events.
type EventKind int

const (
	// Listening is emitted once, when the node's socket comes up.
	Listening EventKind = iota
	// PeerNew is emitted when a remote node's announce_peer records a
	// new peer for an infohash in this node's peer store. A local
	// Advertise call does not emit it.
	PeerNew
	// PeerDeleted is emitted when a peer record expires.
	PeerDeleted
	// ErrorEvent reports an inbound packet that could not be decoded and
	// was dropped. Socket read errors are logged, not emitted.
	ErrorEvent
)

// Event is delivered on Node.Events as the node's state changes. Only
// the fields relevant to Kind are populated.
type Event struct {
	Kind     EventKind
	InfoHash id.ID
	Addr     net.UDPAddr
	Err      error
}

// Node is a single mainline DHT participant. It answers inbound
// queries, originates outbound lookups, and maintains a routing table
// and a store of peers announced to it. The zero value is not usable;
// create one with New.
type Node struct {
	ID  id.ID
	Log logger.DebugLogger

	config Config

	conn  *net.UDPConn
	buf   arena.Arena
	table *table.Table
	peers *peer.Store

	tokens *token.Authority
	txns   *transaction.Registry

	clientThrottle *ratelimit.ClientThrottle
	packetBudget   *ratelimit.TokenBucket

	events chan Event
	in     chan krpc.Packet
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Node from config. Pass nil for the defaults returned
// by NewConfig. New does not touch the network; call Start to open the
// socket and begin processing.
func New(config *Config) (*Node, error) {
	if config == nil {
		config = NewConfig()
	}
	cfg := *config

	nodeID, err := id.Random()
	if err != nil {
		return nil, fmt.Errorf("mldht: generating node id: %w", err)
	}
	tokens, err := token.NewAuthorityPeriod(cfg.TokenRotatePeriod)
	if err != nil {
		return nil, fmt.Errorf("mldht: creating token authority: %w", err)
	}

	n := &Node{
		ID:             nodeID,
		Log:            logger.Named("mldht", &logger.StdLogger{Level: logger.LevelInfo}),
		config:         cfg,
		tokens:         tokens,
		txns:           transaction.NewRegistry(),
		clientThrottle: ratelimit.NewClientThrottle(cfg.ClientPerMinuteLimit, cfg.ThrottlerTrackedClients),
		packetBudget:   ratelimit.NewTokenBucket(cfg.RateLimit),
		buf:            arena.NewArena(krpc.MaxUDPPacketSize, 256),
		events:         make(chan Event, 128),
		in:             make(chan krpc.Packet, 256),
		stop:           make(chan struct{}),
	}
	n.peers = peer.NewStore(peer.Options{
		TTL:           cfg.PeerTTL,
		MaxInfoHashes: cfg.MaxInfoHashes,
		OnNew:         n.onPeerNew,
		OnDelete:      n.onPeerDelete,
	})
	n.table = table.New(nodeID, n.onBucketRefreshDue, n.onContactStale)
	return n, nil
}

// Events returns the channel Node publishes state changes on. The
// buffer is bounded; a caller that stops draining it will miss events
// rather than stall the node.
func (n *Node) Events() <-chan Event { return n.events }

func (n *Node) emit(ev Event) {
	select {
	case n.events <- ev:
	default:
	}
}

func (n *Node) onPeerNew(ih id.ID, addr net.UDPAddr) {
	n.emit(Event{Kind: PeerNew, InfoHash: ih, Addr: addr})
}

func (n *Node) onPeerDelete(ih id.ID, addr net.UDPAddr) {
	n.emit(Event{Kind: PeerDeleted, InfoHash: ih, Addr: addr})
}

// onBucketRefreshDue fires on a bucket's own timer goroutine. It must
// never block on anything the main loop owns, so the lookup it starts
// runs on a fresh goroutine.
func (n *Node) onBucketRefreshDue(target id.ID) {
	go n.FindNode(target)
}

// onContactStale fires on a contact's own timer goroutine when it is
// due for a liveness re-ping.
func (n *Node) onContactStale(c *contact.Contact) {
	go n.pingContact(c)
}

// Start opens the UDP socket and launches the node's background
// goroutines. It returns once the socket is open; all protocol
// processing happens asynchronously until Close is called.
func (n *Node) Start() error {
	conn, err := krpc.Listen(n.config.Address, n.config.Port, n.config.UDPProto, n.Log)
	if err != nil {
		return err
	}
	n.conn = conn
	if laddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		n.config.Port = laddr.Port
		n.emit(Event{Kind: Listening, Addr: *laddr})
	}

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		krpc.ReadFromSocket(n.conn, n.in, n.buf, n.stop, n.Log)
	}()
	go func() {
		defer n.wg.Done()
		n.loop()
	}()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.Bootstrap()
	}()
	return nil
}

// Close stops the node, cancelling every pending query, stopping every
// timer owned by the routing table, and releasing the socket. It
// blocks until all of the node's background goroutines have exited.
func (n *Node) Close() {
	close(n.stop)
	n.txns.CancelAll()
	if n.conn != nil {
		n.conn.Close()
	}
	n.wg.Wait()
	n.tokens.Close()
	n.clientThrottle.Stop()
	n.table.Close()
}

// Bootstrap seeds the routing table by pinging the configured router
// list, then originates a find_node for the node's own id to populate
// its neighborhood. Safe to call from any goroutine; it blocks on
// network round trips and should not be called from Node's own loop.
func (n *Node) Bootstrap() {
	for _, addr := range strings.Split(n.config.DHTRouters, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		raddr, err := net.ResolveUDPAddr(n.config.UDPProto, addr)
		if err != nil {
			n.Log.Debugf("mldht: bootstrap: resolving %q: %v", addr, err)
			continue
		}
		n.pingAddr(*raddr)
	}
	n.FindNode(n.ID)
}

// needMoreNodes reports whether the routing table is thin enough that
// a re-bootstrap is worthwhile.
func (n *Node) needMoreNodes() bool {
	return n.table.Len() < n.config.MaxNodes/2
}

// Len reports the number of contacts currently held in the routing
// table.
func (n *Node) Len() int { return n.table.Len() }

// Addr returns the node's local UDP address. Only meaningful once
// Start has returned successfully.
func (n *Node) Addr() net.UDPAddr {
	if n.conn == nil {
		return net.UDPAddr{}
	}
	if a, ok := n.conn.LocalAddr().(*net.UDPAddr); ok {
		return *a
	}
	return net.UDPAddr{}
}
