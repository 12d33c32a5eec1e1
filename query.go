package mldht

import (
	"net"
	"sort"
	"sync"

	"mldht/bucket"
	"mldht/contact"
	"mldht/id"
	"mldht/krpc"
	"mldht/transaction"
)

// maxLookupRounds bounds an iterative lookup's round count. Kademlia
// lookups converge in O(log n) rounds in practice; this is a generous
// ceiling against a pathological or adversarial network rather than an
// expected value.
const maxLookupRounds = 20

// send registers a transaction and writes an outbound query to addr.
// args must not be shared with the caller afterward: send adds the
// node's own id to it. If the transaction cannot be registered or the
// datagram cannot be written, cont is invoked once with that error.
func (n *Node) send(addr net.UDPAddr, method string, args map[string]interface{}, cont transaction.Continuation) {
	var once sync.Once
	guarded := func(err error, resp interface{}, from net.UDPAddr) {
		once.Do(func() { cont(err, resp, from) })
	}
	tid, err := n.txns.Register(guarded, n.config.ResponseTimeout)
	if err != nil {
		n.Log.Debugf("mldht: %s to %v: %v", method, addr, err)
		cont(err, nil, addr)
		return
	}
	args["id"] = string(n.ID[:])
	msg := krpc.NewQuery(tid, method, args)
	if err := krpc.Send(n.conn, addr, msg, n.Log); err != nil {
		n.txns.Cancel(tid)
		guarded(err, nil, addr)
	}
}

// pingAddr pings an address whose node id is not yet known (typically
// a bootstrap router) and blocks for the reply. A successful reply is
// recorded against the routing table by handleReply, not here.
func (n *Node) pingAddr(addr net.UDPAddr) error {
	done := make(chan error, 1)
	n.send(addr, "ping", map[string]interface{}{}, func(err error, resp interface{}, from net.UDPAddr) {
		done <- err
	})
	return <-done
}

// pingContact re-pings an already-known contact to check it is still
// alive, crediting or penalizing its liveness state accordingly. Runs on
// a goroutine of its own, started from the contact's re-ping timer.
func (n *Node) pingContact(c *contact.Contact) {
	done := make(chan error, 1)
	n.send(c.Addr, "ping", map[string]interface{}{}, func(err error, resp interface{}, from net.UDPAddr) {
		done <- err
	})
	if err := <-done; err != nil {
		n.table.Curse(c.ID)
	}
	// A successful reply is already credited by handleReply's Observe
	// plus Thank before this continuation even runs.
}

// findNodeRPC sends a single find_node to addr and blocks for the
// decoded list of compact nodes it answers with.
func (n *Node) findNodeRPC(addr net.UDPAddr, target id.ID) ([]krpc.NodeInfo, error) {
	type result struct {
		nodes []krpc.NodeInfo
		err   error
	}
	done := make(chan result, 1)
	args := map[string]interface{}{"target": string(target[:])}
	n.send(addr, "find_node", args, func(err error, resp interface{}, from net.UDPAddr) {
		if err != nil {
			done <- result{err: err}
			return
		}
		r, _ := resp.(map[string]interface{})
		nodes, _ := krpc.DecodeCompactNodes(krpc.ArgString(r, "nodes"))
		done <- result{nodes: nodes}
	})
	r := <-done
	return r.nodes, r.err
}

// getPeersRPC sends a single get_peers to addr and blocks for its
// answer: either a list of peer addresses, or (absent those) the
// compact nodes closest to ih, plus the announce_peer token the
// replying node issued.
func (n *Node) getPeersRPC(addr net.UDPAddr, ih id.ID) (nodes []krpc.NodeInfo, values []net.UDPAddr, tok string, err error) {
	type result struct {
		nodes  []krpc.NodeInfo
		values []net.UDPAddr
		tok    string
		err    error
	}
	done := make(chan result, 1)
	args := map[string]interface{}{"info_hash": string(ih[:])}
	n.send(addr, "get_peers", args, func(err error, resp interface{}, from net.UDPAddr) {
		if err != nil {
			done <- result{err: err}
			return
		}
		r, _ := resp.(map[string]interface{})
		out := result{tok: krpc.ArgString(r, "token")}
		if vs, ok := r["values"].([]interface{}); ok {
			for _, v := range vs {
				s, ok := v.(string)
				if !ok {
					continue
				}
				addr, err := krpc.DecodeCompactPeer([]byte(s))
				if err != nil {
					continue
				}
				out.values = append(out.values, addr)
			}
		} else {
			out.nodes, _ = krpc.DecodeCompactNodes(krpc.ArgString(r, "nodes"))
		}
		done <- out
	})
	r := <-done
	return r.nodes, r.values, r.tok, r.err
}

// announcePeerRPC sends a single announce_peer to addr using a token
// previously handed out by that same node, and blocks for the ack.
func (n *Node) announcePeerRPC(addr net.UDPAddr, ih id.ID, port int, tok string) error {
	done := make(chan error, 1)
	args := map[string]interface{}{
		"info_hash": string(ih[:]),
		"port":      int64(port),
		"token":     tok,
	}
	n.send(addr, "announce_peer", args, func(err error, resp interface{}, from net.UDPAddr) {
		done <- err
	})
	return <-done
}

// lookupCandidate is one entry in an iterative lookup's shortlist.
type lookupCandidate struct {
	id      id.ID
	addr    net.UDPAddr
	queried bool
}

// respondingNode is one node that answered a get_peers query during an
// iterative lookup, kept around so the caller can rank responders by
// distance once the search has converged.
type respondingNode struct {
	id    id.ID
	addr  net.UDPAddr
	token string
}

// iterativeLookup runs the standard Kademlia alpha-parallel shortlist
// search for target: starting from the k closest contacts already in
// the routing table, it repeatedly queries up to Alpha unqueried,
// closest candidates per round via queryFn, folding any newly
// discovered nodes back into the shortlist, until a round turns up
// nothing closer or the round budget is exhausted. onReply, if not
// nil, is invoked once per successful response with that responder's
// id, address and announce_peer token, so the caller can record
// (contact, token) pairs without re-deriving them afterward.
func (n *Node) iterativeLookup(
	target id.ID,
	queryFn func(addr net.UDPAddr) (nodes []krpc.NodeInfo, values []net.UDPAddr, tok string, err error),
	onReply func(responder id.ID, addr net.UDPAddr, values []net.UDPAddr, tok string),
) ([]krpc.NodeInfo, []net.UDPAddr) {
	alpha := n.config.Alpha
	if alpha <= 0 {
		alpha = 3
	}

	seen := make(map[id.ID]*lookupCandidate)
	addCandidate := func(nodeID id.ID, addr net.UDPAddr) bool {
		if nodeID == n.ID {
			return false
		}
		if _, ok := seen[nodeID]; ok {
			return false
		}
		seen[nodeID] = &lookupCandidate{id: nodeID, addr: addr}
		return true
	}
	for _, c := range n.table.KClosest(target, bucket.Capacity) {
		addCandidate(c.ID, c.Addr)
	}

	var values []net.UDPAddr
	seenValue := make(map[string]bool)
	addValue := func(addr net.UDPAddr) {
		key := addr.String()
		if seenValue[key] {
			return
		}
		seenValue[key] = true
		values = append(values, addr)
	}

	for round := 0; round < maxLookupRounds; round++ {
		var batch []*lookupCandidate
		var best *lookupCandidate
		for _, c := range seen {
			if best == nil || id.CloserTo(target, c.id, best.id) {
				best = c
			}
			if !c.queried {
				batch = append(batch, c)
			}
		}
		if len(batch) == 0 {
			break
		}
		sort.Slice(batch, func(i, j int) bool {
			return id.CloserTo(target, batch[i].id, batch[j].id)
		})
		if len(batch) > alpha {
			batch = batch[:alpha]
		}

		type reply struct {
			cand   *lookupCandidate
			nodes  []krpc.NodeInfo
			values []net.UDPAddr
			tok    string
			err    error
		}
		results := make(chan reply, len(batch))
		var wg sync.WaitGroup
		for _, cand := range batch {
			cand.queried = true
			wg.Add(1)
			go func(cand *lookupCandidate) {
				defer wg.Done()
				nodes, vals, tok, err := queryFn(cand.addr)
				results <- reply{cand, nodes, vals, tok, err}
			}(cand)
		}
		wg.Wait()
		close(results)

		progressed := false
		for r := range results {
			if r.err != nil {
				n.table.Curse(r.cand.id)
				continue
			}
			for _, ni := range r.nodes {
				n.table.Observe(ni.ID, ni.Addr)
				if addCandidate(ni.ID, ni.Addr) && id.CloserTo(target, ni.ID, best.id) {
					progressed = true
				}
			}
			for _, v := range r.values {
				addValue(v)
			}
			if onReply != nil {
				onReply(r.cand.id, r.cand.addr, r.values, r.tok)
			}
		}
		if !progressed {
			break
		}
	}

	final := make([]*lookupCandidate, 0, len(seen))
	for _, c := range seen {
		final = append(final, c)
	}
	sort.Slice(final, func(i, j int) bool {
		return id.CloserTo(target, final[i].id, final[j].id)
	})
	if len(final) > bucket.Capacity {
		final = final[:bucket.Capacity]
	}
	nodes := make([]krpc.NodeInfo, 0, len(final))
	for _, c := range final {
		nodes = append(nodes, krpc.NodeInfo{ID: c.id, Addr: c.addr})
	}
	return nodes, values
}

// FindNode performs an iterative find_node lookup for target, folding
// every node it discovers into the routing table along the way, and
// returns the closest nodes the search converged on.
func (n *Node) FindNode(target id.ID) []krpc.NodeInfo {
	nodes, _ := n.iterativeLookup(target, func(addr net.UDPAddr) ([]krpc.NodeInfo, []net.UDPAddr, string, error) {
		nodes, err := n.findNodeRPC(addr, target)
		return nodes, nil, "", err
	}, nil)
	return nodes
}

// GetPeers performs an iterative get_peers lookup for ih and returns
// every peer address the search turned up.
func (n *Node) GetPeers(ih id.ID) []net.UDPAddr {
	_, values := n.iterativeLookup(ih, func(addr net.UDPAddr) ([]krpc.NodeInfo, []net.UDPAddr, string, error) {
		return n.getPeersRPC(addr, ih)
	}, nil)
	return values
}

// Advertise performs an iterative get_peers lookup for ih, then
// announces this node as a peer on port (via announce_peer, using each
// responder's own token) to the K closest of the nodes that answered
// along the way. It returns every peer address the search turned up,
// the same as GetPeers.
func (n *Node) Advertise(ih id.ID, port int) []net.UDPAddr {
	var responders []respondingNode
	_, values := n.iterativeLookup(ih, func(addr net.UDPAddr) ([]krpc.NodeInfo, []net.UDPAddr, string, error) {
		return n.getPeersRPC(addr, ih)
	}, func(responder id.ID, addr net.UDPAddr, values []net.UDPAddr, tok string) {
		if tok == "" {
			return
		}
		responders = append(responders, respondingNode{id: responder, addr: addr, token: tok})
	})

	for _, r := range closestResponders(ih, responders) {
		if err := n.announcePeerRPC(r.addr, ih, port, r.token); err != nil {
			n.Log.Debugf("mldht: announce_peer to %v: %v", r.addr, err)
		}
	}
	return values
}

// closestResponders sorts responders by XOR distance to ih and trims
// the list to the K closest, the set Advertise actually announces to.
func closestResponders(ih id.ID, responders []respondingNode) []respondingNode {
	sort.Slice(responders, func(i, j int) bool {
		return id.CloserTo(ih, responders[i].id, responders[j].id)
	})
	if len(responders) > bucket.Capacity {
		responders = responders[:bucket.Capacity]
	}
	return responders
}
