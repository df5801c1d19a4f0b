// Package transport implements the single shared UDP socket LSNP sends
// and receives every message type over (spec.md §4.3): one datagram
// socket bound to 0.0.0.0:PORT with SO_REUSEADDR and SO_BROADCAST, one
// sendto per recipient, one cooperative receive loop.
package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// MaxDatagramSize is the largest UDP datagram LSNP will read, per
// spec.md §4.3.
const MaxDatagramSize = 65535

// Handler is invoked once per received datagram, synchronously, from the
// single receive loop — giving each inbound datagram dispatcher-level
// exclusivity per spec.md §5(b).
type Handler func(raw []byte, srcIP net.IP)

// Socket wraps the one UDP connection a peer process owns.
type Socket struct {
	conn  *net.UDPConn
	pconn *ipv4.PacketConn
	port  int
}

// Bind opens the shared socket on port, with SO_REUSEADDR and
// SO_BROADCAST set so the process may both receive unicast and emit
// broadcast frames, per spec.md §4.3.
func Bind(port int) (*Socket, error) {
	lc := net.ListenConfig{Control: setReuseAndBroadcast}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.Wrapf(err, "transport: bind port %d", port)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, errors.New("transport: listen packet did not return a UDP connection")
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetControlMessage(ipv4.FlagSrc, true); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "transport: enable source control messages")
	}

	boundPort := port
	if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		boundPort = udpAddr.Port
	}

	return &Socket{conn: conn, pconn: pconn, port: boundPort}, nil
}

func setReuseAndBroadcast(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Port returns the bound UDP port.
func (s *Socket) Port() int {
	return s.port
}

// SendTo transmits raw to (ip, s.Port()) — one sendto per recipient, no
// batching, per spec.md §4.3. Concurrency-safe: multiple goroutines may
// call SendTo on the same Socket (only the receive loop calls ReadFrom).
func (s *Socket) SendTo(raw []byte, ip net.IP) error {
	_, err := s.conn.WriteToUDP(raw, &net.UDPAddr{IP: ip, Port: s.port})
	return err
}

// Broadcast transmits raw to broadcastIP on s.Port().
func (s *Socket) Broadcast(raw []byte, broadcastIP net.IP) error {
	return s.SendTo(raw, broadcastIP)
}

// Listen runs the single cooperative receive loop until ctx is done,
// handing each datagram and its source IP to handle. Per spec.md §4.3,
// datagrams from our own IP are not filtered here — handlers are required
// to be idempotent under self-receipt (spec.md §9).
func (s *Socket) Listen(ctx context.Context, handle Handler, onError func(error)) {
	// Unblock a pending read once ctx is done.
	stop := context.AfterFunc(ctx, func() { s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, src, err := s.pconn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if onError != nil {
				onError(err)
			}
			continue
		}

		udpAddr, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		handle(frame, udpAddr.IP)
	}
}

// Close releases the socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}
