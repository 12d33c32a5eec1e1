package mldht

import (
	"net"

	"mldht/bucket"
	"mldht/id"
	"mldht/krpc"
)

// replyArgs builds the common "id" field every reply carries, then
// lets the caller layer on method-specific values.
func (n *Node) replyArgs(extra map[string]interface{}) map[string]interface{} {
	if extra == nil {
		extra = make(map[string]interface{})
	}
	extra["id"] = string(n.ID[:])
	return extra
}

func (n *Node) replyPing(tid string) interface{} {
	return krpc.NewReply(tid, n.replyArgs(nil))
}

func (n *Node) replyFindNode(tid string, args map[string]interface{}) interface{} {
	target, ok := binaryID(args, "target")
	if !ok {
		return krpc.NewError(tid, krpc.ErrProtocol, "Missing target")
	}
	nodes := n.compactClosest(target)
	return krpc.NewReply(tid, n.replyArgs(map[string]interface{}{
		"nodes": nodes,
	}))
}

func (n *Node) replyGetPeers(tid string, args map[string]interface{}, from net.UDPAddr) interface{} {
	ih, ok := binaryID(args, "info_hash")
	if !ok {
		return krpc.NewError(tid, krpc.ErrProtocol, "Missing info_hash")
	}
	tok := n.tokens.Issue(from)
	values := n.peers.Get(ih)
	result := map[string]interface{}{
		"token": string(tok),
	}
	if len(values) > 0 {
		peers := make([]interface{}, 0, len(values))
		for _, addr := range values {
			enc, err := krpc.EncodeCompactPeer(addr)
			if err != nil {
				continue
			}
			peers = append(peers, string(enc))
		}
		result["values"] = peers
	} else {
		result["nodes"] = n.compactClosest(ih)
	}
	return krpc.NewReply(tid, n.replyArgs(result))
}

func (n *Node) replyAnnouncePeer(tid string, args map[string]interface{}, from net.UDPAddr) interface{} {
	ih, ok := binaryID(args, "info_hash")
	if !ok {
		return krpc.NewError(tid, krpc.ErrProtocol, "Missing info_hash")
	}
	tok := krpc.ArgString(args, "token")
	if !n.tokens.Verify(from, []byte(tok)) {
		return krpc.NewError(tid, krpc.ErrProtocol, "Bad Token")
	}

	port := from.Port
	if implied, ok := krpc.ArgInt(args, "implied_port"); !ok || implied != 1 {
		if p, ok := krpc.ArgInt(args, "port"); ok {
			port = int(p)
		}
	}
	n.peers.Add(ih, net.UDPAddr{IP: from.IP, Port: port})
	return krpc.NewReply(tid, n.replyArgs(nil))
}

// binaryID reads a raw 20-byte id out of a query's argument map.
func binaryID(args map[string]interface{}, key string) (id.ID, bool) {
	raw := krpc.ArgString(args, key)
	if len(raw) != id.Len {
		return id.ID{}, false
	}
	return id.FromBytes([]byte(raw)), true
}

// compactClosest returns the k closest routable contacts to target,
// compact-node encoded for a find_node/get_peers reply.
func (n *Node) compactClosest(target id.ID) string {
	closest := n.table.KClosest(target, bucket.Capacity)
	infos := make([]krpc.NodeInfo, 0, len(closest))
	for _, c := range closest {
		infos = append(infos, krpc.NodeInfo{ID: c.ID, Addr: c.Addr})
	}
	blob, err := krpc.EncodeCompactNodes(infos)
	if err != nil {
		n.Log.Debugf("mldht: encoding compact nodes for %v: %v", target, err)
		return ""
	}
	return blob
}
