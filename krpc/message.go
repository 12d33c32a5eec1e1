// Package krpc implements the DHT's wire format: KRPC messages bencoded
// over UDP, plus the compact node and compact peer encodings used to
// pack contacts into find_node and get_peers replies.
package krpc

import (
	"bytes"
	"expvar"
	"net"

	"mldht/logger"

	bencode "github.com/jackpal/bencode-go"
)

// MaxUDPPacketSize bounds a single inbound datagram. Mainline DHT
// traffic is almost always well under 1KB; this leaves generous room
// for a get_peers reply packed with nodes and values.
const MaxUDPPacketSize = 4096

var (
	TotalSent      = expvar.NewInt("mldht.krpc.totalSent")
	TotalRead      = expvar.NewInt("mldht.krpc.totalReadBytes")
	TotalWritten   = expvar.NewInt("mldht.krpc.totalWrittenBytes")
	TotalDecodeErr = expvar.NewInt("mldht.krpc.decodeErrors")
)

// RemoteErrorCode mirrors BEP-5's error codes.
const (
	ErrGeneric       = 201
	ErrServer        = 202
	ErrProtocol      = 203
	ErrMethodUnknown = 204
)

// QueryMsg is what's marshaled for an outbound query. Separate wire
// structs for query/reply/error (rather than one struct with every
// field optional) keep the encoded bytes free of spurious empty keys.
type QueryMsg struct {
	T string                 "t"
	Y string                 "y"
	Q string                 "q"
	A map[string]interface{} "a"
}

// ReplyMsg is what's marshaled for an outbound reply.
type ReplyMsg struct {
	T string                 "t"
	Y string                 "y"
	R map[string]interface{} "r"
}

// ErrorMsg is what's marshaled for an outbound protocol error.
type ErrorMsg struct {
	T string        "t"
	Y string        "y"
	E []interface{} "e"
}

// Message is the generic shape used to decode an inbound packet before
// its y field is inspected to tell a query from a reply from an error.
type Message struct {
	T string                 "t"
	Y string                 "y"
	Q string                 "q"
	A map[string]interface{} "a"
	R map[string]interface{} "r"
	E []interface{}          "e"
}

// NewQuery builds an outbound query message.
func NewQuery(tid, method string, args map[string]interface{}) *QueryMsg {
	return &QueryMsg{T: tid, Y: "q", Q: method, A: args}
}

// NewReply builds an outbound reply message.
func NewReply(tid string, values map[string]interface{}) *ReplyMsg {
	return &ReplyMsg{T: tid, Y: "r", R: values}
}

// NewError builds an outbound protocol error message.
func NewError(tid string, code int, message string) *ErrorMsg {
	return &ErrorMsg{T: tid, Y: "e", E: []interface{}{int64(code), message}}
}

// Encode bencodes any of QueryMsg, ReplyMsg or ErrorMsg.
func Encode(msg interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a bencoded KRPC packet into the generic envelope.
// Callers switch on the Y field to find the query/reply/error-specific
// data.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := bencode.Unmarshal(bytes.NewReader(b), &m); err != nil {
		TotalDecodeErr.Add(1)
		return nil, err
	}
	return &m, nil
}

// Send bencodes msg (a *QueryMsg, *ReplyMsg or *ErrorMsg) and writes it
// to raddr over conn.
func Send(conn *net.UDPConn, raddr net.UDPAddr, msg interface{}, log logger.DebugLogger) error {
	b, err := Encode(msg)
	if err != nil {
		log.Debugf("krpc: marshal failed: %v", err)
		return err
	}
	TotalSent.Add(1)
	n, err := conn.WriteToUDP(b, &raddr)
	if err != nil {
		log.Debugf("krpc: write to %v failed: %v", raddr, err)
		return err
	}
	TotalWritten.Add(int64(n))
	return nil
}

// ArgString and ArgInt pull a typed value out of a query/reply map,
// tolerating the absence of the key. bencode-go decodes bencoded
// integers as int64 regardless of the field's declared Go type, so
// ints read back from the wire need the int64 case.
func ArgString(a map[string]interface{}, key string) string {
	v, ok := a[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func ArgInt(a map[string]interface{}, key string) (int64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
