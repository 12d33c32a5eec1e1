package krpc

import (
	"encoding/binary"
	"fmt"
	"net"

	"mldht/id"
)

// CompactNodeLen is the length in bytes of one compact node info entry:
// a 20-byte node id followed by a 6-byte compact peer (IPv4 + port).
const CompactNodeLen = id.Len + 6

// CompactPeerLen is the length in bytes of one compact peer info entry.
const CompactPeerLen = 6

// NodeInfo pairs a node id with its address, the decoded form of one
// compact node info entry.
type NodeInfo struct {
	ID   id.ID
	Addr net.UDPAddr
}

// EncodeCompactPeer packs addr's IPv4 address and port into 6 bytes.
func EncodeCompactPeer(addr net.UDPAddr) ([]byte, error) {
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("krpc: %v is not an IPv4 address", addr.IP)
	}
	out := make([]byte, CompactPeerLen)
	copy(out[:4], ip4)
	binary.BigEndian.PutUint16(out[4:], uint16(addr.Port))
	return out, nil
}

// DecodeCompactPeer unpacks 6 bytes into a UDP address.
func DecodeCompactPeer(b []byte) (net.UDPAddr, error) {
	if len(b) != CompactPeerLen {
		return net.UDPAddr{}, fmt.Errorf("krpc: compact peer must be %d bytes, got %d", CompactPeerLen, len(b))
	}
	ip := net.IPv4(b[0], b[1], b[2], b[3])
	port := binary.BigEndian.Uint16(b[4:6])
	return net.UDPAddr{IP: ip, Port: int(port)}, nil
}

// DecodeCompactPeers unpacks a values-style string of concatenated
// 6-byte compact peers.
func DecodeCompactPeers(blob string) ([]net.UDPAddr, error) {
	if len(blob)%CompactPeerLen != 0 {
		return nil, fmt.Errorf("krpc: compact peer blob length %d not a multiple of %d", len(blob), CompactPeerLen)
	}
	b := []byte(blob)
	out := make([]net.UDPAddr, 0, len(b)/CompactPeerLen)
	for i := 0; i < len(b); i += CompactPeerLen {
		addr, err := DecodeCompactPeer(b[i : i+CompactPeerLen])
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// EncodeCompactNode packs a node id and address into 26 bytes.
func EncodeCompactNode(nodeID id.ID, addr net.UDPAddr) ([]byte, error) {
	peer, err := EncodeCompactPeer(addr)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, CompactNodeLen)
	out = append(out, nodeID.Bytes()...)
	out = append(out, peer...)
	return out, nil
}

// DecodeCompactNodes unpacks a nodes-style string of concatenated
// 26-byte compact node info entries.
func DecodeCompactNodes(blob string) ([]NodeInfo, error) {
	if len(blob)%CompactNodeLen != 0 {
		return nil, fmt.Errorf("krpc: compact node blob length %d not a multiple of %d", len(blob), CompactNodeLen)
	}
	b := []byte(blob)
	out := make([]NodeInfo, 0, len(b)/CompactNodeLen)
	for i := 0; i < len(b); i += CompactNodeLen {
		nodeID := id.FromBytes(b[i : i+id.Len])
		addr, err := DecodeCompactPeer(b[i+id.Len : i+CompactNodeLen])
		if err != nil {
			return nil, err
		}
		out = append(out, NodeInfo{ID: nodeID, Addr: addr})
	}
	return out, nil
}

// EncodeCompactNodes packs a slice of node infos into a single string
// suitable for the "nodes" reply field.
func EncodeCompactNodes(nodes []NodeInfo) (string, error) {
	buf := make([]byte, 0, len(nodes)*CompactNodeLen)
	for _, n := range nodes {
		enc, err := EncodeCompactNode(n.ID, n.Addr)
		if err != nil {
			return "", err
		}
		buf = append(buf, enc...)
	}
	return string(buf), nil
}
