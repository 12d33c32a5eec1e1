package krpc

import (
	"net"
	"strconv"

	"mldht/arena"
	"mldht/logger"
)

// Packet is one received datagram, paired with its sender. B is backed
// by the arena and must be returned with arena.Push once the caller is
// done decoding it.
type Packet struct {
	B     []byte
	Raddr net.UDPAddr
}

// Listen opens a UDP socket on addr:port for the given network
// ("udp4" or "udp6").
func Listen(addr string, port int, network string, log logger.DebugLogger) (*net.UDPConn, error) {
	log.Debugf("krpc: listening on %s:%d (%s)", addr, port, network)
	conn, err := net.ListenPacket(network, net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		log.Debugf("krpc: listen failed: %v", err)
		return nil, err
	}
	return conn.(*net.UDPConn), nil
}

// ReadFromSocket pulls packets off conn using buffers borrowed from
// buf, forwarding each to out until stop is closed. Run this on its own
// goroutine; it returns only once stop is closed. A read error while
// stop is still open is logged and the loop keeps reading.
func ReadFromSocket(conn *net.UDPConn, out chan<- Packet, buf arena.Arena, stop <-chan struct{}, log logger.DebugLogger) {
	for {
		b := buf.Pop()
		n, addr, err := conn.ReadFromUDP(b)
		if err != nil {
			buf.Push(b)
			select {
			case <-stop:
				return
			default:
			}
			log.Debugf("krpc: read error: %v", err)
			continue
		}
		b = b[:n]
		TotalRead.Add(int64(n))
		if n == 0 || addr == nil {
			buf.Push(b)
			continue
		}
		select {
		case out <- Packet{B: b, Raddr: *addr}:
		case <-stop:
			buf.Push(b)
			return
		}
	}
}
