package transport

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// maxDatagramSize bounds a single recv; a Packet (48 bytes) or InitMessage
// easily fits, generous headroom is kept for forward compatibility.
const maxDatagramSize = 2048

// UDPTransport is a DatagramTransport backed by a bound *net.UDPConn.
//
// Grounded on other_examples/707acc0e_R2Northstar-Atlas__pkg-nspkt-listener.go.go
// for the mutex-guarded conn / idempotent Close shape, and
// other_examples/7042fdf9_WireGuard-wireguard-go__src-send.go.go for the
// retry-on-transient-send-error idiom. Go's net package already retries
// EINTR/EAGAIN internally, so no hand-rolled retry loop is needed around
// ReadFromUDP/WriteToUDP themselves.
type UDPTransport struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool

	pending    []byte
	pendingSrc wire.PeerAddress

	log *zap.Logger

	// artificialDelay, when set, is applied before every SendTo. It exists
	// only for tests exercising stall/resend behavior deterministically; not
	// reachable from production wiring.
	artificialDelay time.Duration
}

// NewUDPTransport binds a UDP socket on port, falling back to port+1 if the
// first attempt fails, and failing with ErrNoFreePort after two attempts.
func NewUDPTransport(port uint16, log *zap.Logger) (*UDPTransport, error) {
	if log == nil {
		return nil, fmt.Errorf("transport: logger is a required parameter")
	}
	candidates := []uint16{port, port + 1}
	var lastErr error
	for _, p := range candidates {
		addr := &net.UDPAddr{Port: int(p)}
		conn, err := net.ListenUDP("udp4", addr)
		if err != nil {
			lastErr = err
			log.Debug("udp bind attempt failed", zap.Uint16("port", p), zap.Error(err))
			continue
		}
		log.Info("udp transport bound", zap.Uint16("port", p))
		return &UDPTransport{conn: conn, log: log}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrNoFreePort, lastErr)
}

// WithArtificialDelay returns t configured to sleep before every SendTo.
// Test-only hook; see the artificialDelay field doc.
func (t *UDPTransport) WithArtificialDelay(d time.Duration) *UDPTransport {
	t.artificialDelay = d
	return t
}

// SendTo implements DatagramTransport.
func (t *UDPTransport) SendTo(peer wire.PeerAddress, buf []byte) error {
	if t.artificialDelay > 0 {
		time.Sleep(t.artificialDelay)
	}
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if conn == nil || closed {
		return ErrClosed
	}
	addr := hostPortToUDPAddr(peer)
	_, err := conn.WriteToUDP(buf, addr)
	return err
}

// RecvFrom implements DatagramTransport. It blocks until a datagram
// arrives, draining a packet buffered by a prior PollReady first.
func (t *UDPTransport) RecvFrom() ([]byte, wire.PeerAddress, error) {
	t.mu.Lock()
	if t.pending != nil {
		buf, src := t.pending, t.pendingSrc
		t.pending = nil
		t.mu.Unlock()
		return buf, src, nil
	}
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if conn == nil || closed {
		return nil, wire.PeerAddress{}, ErrClosed
	}
	buf := make([]byte, maxDatagramSize)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, wire.PeerAddress{}, err
	}
	return buf[:n], udpAddrToPeer(addr), nil
}

// PollReady implements DatagramTransport. It waits up to timeout for a
// datagram, buffering it for the next RecvFrom call, and auto-retries
// EINTR-equivalent interrupts (net's deadline-based timeouts distinguish a
// genuine timeout, reported as Idle, from other errors). A timeout of zero
// or less waits at most one millisecond.
func (t *UDPTransport) PollReady(timeout time.Duration) PollResult {
	t.mu.Lock()
	if t.pending != nil {
		t.mu.Unlock()
		return PollResult{Ready: true}
	}
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if conn == nil || closed {
		return PollResult{Error: ErrClosed}
	}

	// A deadline already in the past fails the read before the socket is
	// checked, so a zero timeout would never report a queued datagram.
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return PollResult{Error: err}
		}
		buf := make([]byte, maxDatagramSize)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return PollResult{Idle: true}
			}
			if time.Now().After(deadline) {
				return PollResult{Idle: true}
			}
			// transient interrupt: retry within the remaining budget.
			continue
		}
		t.mu.Lock()
		t.pending = buf[:n]
		t.pendingSrc = udpAddrToPeer(addr)
		t.mu.Unlock()
		return PollResult{Ready: true}
	}
}

// ResolveHost implements DatagramTransport.
func (t *UDPTransport) ResolveHost(host string) (uint32, bool) {
	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := net.LookupIP(host)
		if err != nil || len(addrs) == 0 {
			return 0, false
		}
		ip = addrs[0]
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3]), true
}

// LocalPort implements DatagramTransport.
func (t *UDPTransport) LocalPort() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return 0
	}
	return uint16(t.conn.LocalAddr().(*net.UDPAddr).Port)
}

// Close implements DatagramTransport. Idempotent.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func hostPortToUDPAddr(p wire.PeerAddress) *net.UDPAddr {
	ip := net.IPv4(byte(p.Host>>24), byte(p.Host>>16), byte(p.Host>>8), byte(p.Host))
	return &net.UDPAddr{IP: ip, Port: int(p.Port)}
}

func udpAddrToPeer(a *net.UDPAddr) wire.PeerAddress {
	ip4 := a.IP.To4()
	if ip4 == nil {
		return wire.PeerAddress{Port: uint16(a.Port)}
	}
	host := uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
	return wire.PeerAddress{Host: host, Port: uint16(a.Port)}
}

// HostPortString renders host[:port] for logging.
func HostPortString(p wire.PeerAddress) string {
	ip := net.IPv4(byte(p.Host>>24), byte(p.Host>>16), byte(p.Host>>8), byte(p.Host))
	return ip.String() + ":" + strconv.Itoa(int(p.Port))
}
