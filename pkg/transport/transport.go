// Package transport defines the DatagramTransport port and a UDP
// implementation. Nothing else in the core talks to the OS directly.
package transport

import (
	"errors"
	"time"

	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// Errors surfaced by a DatagramTransport. Transient conditions like
// would-block or an interrupted syscall are retried internally by
// implementations and should never escape.
var (
	ErrNoFreePort       = errors.New("transport: no free port after fallback")
	ErrUnresolvableHost = errors.New("transport: host did not resolve")
	ErrClosed           = errors.New("transport: closed")
)

// PollResult is the outcome of a bounded wait for a readable datagram.
type PollResult struct {
	Ready bool
	Idle  bool
	Error error
}

// DatagramTransport is the abstract datagram socket the lockstep core is
// built against. Implementations must auto-retry EINTR-equivalent
// interrupts inside PollReady/RecvFrom without propagating them, and
// Close must be idempotent.
type DatagramTransport interface {
	// SendTo blocks until buf has been handed to the OS for delivery to
	// peer. Loss beyond this point is expected and tolerated by the
	// protocol, not reported here.
	SendTo(peer wire.PeerAddress, buf []byte) error

	// RecvFrom blocks until a datagram arrives, returning its bytes and
	// sender. The handshake may call it directly; steady-state code calls
	// PollReady first and only reads once a datagram is ready.
	RecvFrom() ([]byte, wire.PeerAddress, error)

	// PollReady waits up to timeout for a datagram to become readable.
	PollReady(timeout time.Duration) PollResult

	// ResolveHost resolves a hostname or dotted-quad to a wire host
	// address in network byte order, or false on failure.
	ResolveHost(host string) (uint32, bool)

	// LocalPort reports the UDP port this transport is actually bound
	// to (may differ from the requested port after a fallback).
	LocalPort() uint16

	// Close releases the underlying socket. Idempotent.
	Close() error
}
