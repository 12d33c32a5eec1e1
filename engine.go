package mldht

import (
	"net"
	"time"

	"mldht/id"
	"mldht/krpc"
	"mldht/transaction"
)

// refillInterval is how often the global packet budget tops up,
// matching the ten-times-a-second cadence a fixed per-second rate
// divides into.
const refillInterval = 100 * time.Millisecond

// loop is the node's single long-running goroutine for everything that
// isn't itself already owned by its own timer: draining inbound
// packets, refilling the rate limiter, and periodically checking
// whether the routing table needs topping up. It never performs a
// blocking network round trip itself; anything that does (Bootstrap,
// FindNode, GetPeers) runs on a goroutine of its own so a slow lookup
// can never stall packet processing.
func (n *Node) loop() {
	refill := time.NewTicker(refillInterval)
	defer refill.Stop()

	health := time.NewTicker(n.config.HealthCheckPeriod)
	defer health.Stop()

	for {
		select {
		case <-n.stop:
			return
		case pkt, ok := <-n.in:
			if !ok {
				return
			}
			n.processPacket(pkt)
		case <-refill.C:
			n.packetBudget.Refill()
		case <-health.C:
			if n.needMoreNodes() {
				go n.Bootstrap()
			}
		}
	}
}

// processPacket decodes one inbound datagram and dispatches it to the
// query handlers or to a pending transaction's continuation. It always
// returns pkt's buffer to the arena before returning.
func (n *Node) processPacket(pkt krpc.Packet) {
	defer n.buf.Push(pkt.B)

	if !n.clientThrottle.CheckAllow(pkt.Raddr.IP.String()) {
		return
	}
	if !n.packetBudget.Take() {
		return
	}

	msg, err := krpc.Decode(pkt.B)
	if err != nil {
		n.Log.Debugf("mldht: dropping malformed packet from %v: %v", pkt.Raddr, err)
		n.emit(Event{Kind: ErrorEvent, Addr: pkt.Raddr, Err: err})
		return
	}

	switch msg.Y {
	case "q":
		n.handleQuery(msg, pkt.Raddr)
	case "r":
		n.handleReply(msg, pkt.Raddr)
	case "e":
		n.handleError(msg, pkt.Raddr)
	default:
		n.Log.Debugf("mldht: dropping packet from %v with unknown y=%q", pkt.Raddr, msg.Y)
	}
}

// senderID extracts and validates the 20-byte binary node id a query
// or reply claims as its own. Per BEP-5 the "id" argument is the raw
// id bytes, not a hex string.
func senderID(args map[string]interface{}) (id.ID, bool) {
	raw := krpc.ArgString(args, "id")
	if len(raw) != id.Len {
		return id.ID{}, false
	}
	return id.FromBytes([]byte(raw)), true
}

// observeSender records the node id a query or reply claims as its own
// against the address it actually arrived from. It is a no-op (and
// returns false) for a bogus or wrongly-sized id. The node's own id
// reflected back at it is reported as valid, but the routing table
// does not store it.
func (n *Node) observeSender(args map[string]interface{}, from net.UDPAddr) (id.ID, bool) {
	nodeID, ok := senderID(args)
	if !ok {
		return id.ID{}, false
	}
	n.table.Observe(nodeID, from)
	return nodeID, true
}

// handleQuery dispatches an inbound query to its method-specific
// handler and sends the handler's reply (or a protocol error) back to
// the sender.
func (n *Node) handleQuery(msg *krpc.Message, from net.UDPAddr) {
	if _, ok := n.observeSender(msg.A, from); !ok {
		return
	}

	var reply interface{}
	switch msg.Q {
	case "ping":
		reply = n.replyPing(msg.T)
	case "find_node":
		reply = n.replyFindNode(msg.T, msg.A)
	case "get_peers":
		reply = n.replyGetPeers(msg.T, msg.A, from)
	case "announce_peer":
		reply = n.replyAnnouncePeer(msg.T, msg.A, from)
	default:
		reply = krpc.NewError(msg.T, krpc.ErrMethodUnknown, "Method Unknown")
	}
	if err := krpc.Send(n.conn, from, reply, n.Log); err != nil {
		n.Log.Debugf("mldht: replying to %s from %v: %v", msg.Q, from, err)
	}
}

// handleReply resolves the transaction msg.T names with the decoded
// response map, after recording the replying node as freshly alive.
func (n *Node) handleReply(msg *krpc.Message, from net.UDPAddr) {
	if nodeID, ok := senderID(msg.R); ok {
		n.table.Observe(nodeID, from)
		n.table.Thank(nodeID)
	}
	n.txns.Resolve(msg.T, msg.R, from)
}

// handleError resolves the transaction msg.T names with the remote's
// reported error. KRPC error replies carry no sender id, so there is
// no contact to update.
func (n *Node) handleError(msg *krpc.Message, from net.UDPAddr) {
	code, message := 0, ""
	if len(msg.E) > 0 {
		if c, ok := msg.E[0].(int64); ok {
			code = int(c)
		}
	}
	if len(msg.E) > 1 {
		if m, ok := msg.E[1].(string); ok {
			message = m
		}
	}
	n.txns.ResolveError(msg.T, &transaction.RemoteError{Code: code, Message: message}, from)
}
