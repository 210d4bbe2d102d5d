// Package handshake implements the peer discovery / session-setup protocol:
// a server role that collects clients into a sealed Roster, and a client
// role that discovers the server and the rest of the roster. Both sides
// exchange wire.InitMessage over a transport.DatagramTransport.
package handshake

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiubinzheng/lockstep-core/pkg/roster"
	"github.com/xiubinzheng/lockstep-core/pkg/transport"
	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// Configuration errors: fatal, abort the session before any simulation
// starts.
var (
	ErrVersionMismatch = errors.New("handshake: protocol version mismatch")
	ErrLagMismatch     = errors.New("handshake: lag parameter mismatch")
	ErrUpdatesMismatch = errors.New("handshake: updates parameter mismatch")
	ErrNotEnoughSlots  = errors.New("handshake: not enough human player slots")
)

// Timing constants for handshake convergence, preserved exactly since the
// Resend/stall model past handshake assumes a session actually converged
// within these windows.
const (
	serverAckPollInterval = 500 * time.Millisecond
	clientReplyWait       = 1 * time.Second
	lateAckTail           = 3 * time.Second
)

// Params are the session parameters agreed during handshake. Lag is
// quantized to a multiple of Updates before being placed on the wire (see
// QuantizeLag).
type Params struct {
	Lag     int32
	Updates int32
}

// QuantizeLag rounds lag down to a multiple of updates: many invariants
// (frame reconstruction in particular) depend on this exact rule.
func QuantizeLag(lag, updates int32) int32 {
	if updates <= 0 {
		return lag
	}
	return (lag / updates) * updates
}

// Server runs the server side of the handshake: collect clients, assign
// player indices, seal and broadcast the roster.
type Server struct {
	transport  transport.DatagramTransport
	log        *zap.Logger
	params     Params
	netPlayers int
}

// NewServer builds a Server awaiting netPlayers total participants
// (including itself) with the given session parameters.
func NewServer(t transport.DatagramTransport, log *zap.Logger, params Params, netPlayers int) (*Server, error) {
	if log == nil {
		return nil, fmt.Errorf("handshake: logger is a required parameter")
	}
	if netPlayers < 1 {
		return nil, fmt.Errorf("handshake: netPlayers must be >= 1, got %d", netPlayers)
	}
	return &Server{transport: t, log: log, params: params, netPlayers: netPlayers}, nil
}

type serverPeer struct {
	addr  wire.PeerAddress
	acked bool
}

// Run blocks until expectedPeers have completed the handshake, assigns
// player indices by walking humanSlots (true where the simulation's
// player table holds a human player) in order and taking the first
// NetPlayers such slots, then builds and broadcasts the sealed roster.
func (s *Server) Run(humanSlots []bool) (roster.Roster, error) {
	expected := s.netPlayers - 1
	var known []serverPeer

	for len(known) < expected {
		buf, src, err := s.transport.RecvFrom()
		if err != nil {
			s.log.Debug("handshake: recv error while collecting clients", zap.Error(err))
			continue
		}
		msg, err := wire.DecodeInit(buf)
		if err != nil {
			s.log.Debug("handshake: dropping malformed init message", zap.Error(err))
			continue
		}
		if msg.Type != wire.OpInitHello {
			continue
		}
		if msg.Version != wire.NetworkProtocolVersion {
			return roster.Roster{}, ErrVersionMismatch
		}
		if msg.Lag != s.params.Lag {
			return roster.Roster{}, ErrLagMismatch
		}
		if msg.Updates != s.params.Updates {
			return roster.Roster{}, ErrUpdatesMismatch
		}

		idx := indexOfPeer(known, src)
		if idx < 0 {
			known = append(known, serverPeer{addr: src})
			s.log.Info("handshake: accepted client", zap.String("peer", transport.HostPortString(src)))
		}
		reply := wire.EncodeInit(wire.InitMessage{
			Type:    wire.OpInitReply,
			Version: wire.NetworkProtocolVersion,
			Lag:     s.params.Lag,
			Updates: s.params.Updates,
		})
		if err := s.transport.SendTo(src, reply); err != nil {
			s.log.Warn("handshake: failed to send init reply", zap.Error(err))
		}
	}

	indices, err := assignPlayerIndices(humanSlots, s.netPlayers)
	if err != nil {
		return roster.Roster{}, err
	}

	entries := make([]roster.Entry, 0, s.netPlayers)
	entries = append(entries, roster.Entry{PlayerIndex: indices[0]})
	for i, p := range known {
		entries = append(entries, roster.Entry{Peer: p.addr, PlayerIndex: indices[i+1]})
	}
	sealed, err := roster.New(entries, indices[0])
	if err != nil {
		return roster.Roster{}, err
	}

	config := buildInitConfig(s.params, indices, known)
	configBuf := wire.EncodeInit(config)
	for len(known) > 0 && !allAcked(known) {
		for i := range known {
			if known[i].acked {
				continue
			}
			if err := s.transport.SendTo(known[i].addr, configBuf); err != nil {
				s.log.Warn("handshake: failed to broadcast init config", zap.Error(err))
			}
		}
		res := s.transport.PollReady(serverAckPollInterval)
		if !res.Ready {
			continue
		}
		buf, src, err := s.transport.RecvFrom()
		if err != nil {
			continue
		}
		msg, err := wire.DecodeInit(buf)
		if err != nil || msg.Type != wire.OpInitReply {
			continue
		}
		if idx := indexOfPeer(known, src); idx >= 0 {
			known[idx].acked = true
		}
	}

	// Cover final-ack losses: a client may resend Hello or ack late.
	time.Sleep(lateAckTail)
	s.log.Info("handshake: server roster sealed", zap.Int("players", s.netPlayers))
	return sealed, nil
}

func allAcked(known []serverPeer) bool {
	for _, p := range known {
		if !p.acked {
			return false
		}
	}
	return true
}

func indexOfPeer(known []serverPeer, addr wire.PeerAddress) int {
	for i, p := range known {
		if p.addr == addr {
			return i
		}
	}
	return -1
}

// assignPlayerIndices walks humanSlots in order and returns the slot
// indices of the first count entries marked human.
func assignPlayerIndices(humanSlots []bool, count int) ([]uint8, error) {
	indices := make([]uint8, 0, count)
	for i, human := range humanSlots {
		if !human {
			continue
		}
		indices = append(indices, uint8(i))
		if len(indices) == count {
			return indices, nil
		}
	}
	return nil, ErrNotEnoughSlots
}

// buildInitConfig builds the broadcast InitConfig: Hosts[0] is the server's
// own slot, left zeroed as the sentinel (every recipient already knows the
// server's address); Hosts[1:] carry the other participants' real
// addresses in the order their Hello was accepted. Nums[i] is the player
// index assigned to Hosts[i]'s occupant (indices[0] for the server).
func buildInitConfig(params Params, indices []uint8, known []serverPeer) wire.InitMessage {
	m := wire.InitMessage{
		Type:       wire.OpInitConfig,
		Version:    wire.NetworkProtocolVersion,
		Lag:        params.Lag,
		Updates:    params.Updates,
		HostsCount: int8(1 + len(known)),
	}
	for i := range m.Nums {
		m.Nums[i] = -1
	}
	m.Nums[0] = int8(indices[0])
	for i, p := range known {
		m.Hosts[i+1] = p.addr
		m.Nums[i+1] = int8(indices[i+1])
	}
	return m
}

// Client runs the client side of the handshake: discover the server,
// receive the sealed roster, and ack it.
type Client struct {
	transport transport.DatagramTransport
	log       *zap.Logger
	params    Params
}

// NewClient builds a Client with the given session parameters, which must
// match the server's or the handshake is rejected.
func NewClient(t transport.DatagramTransport, log *zap.Logger, params Params) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("handshake: logger is a required parameter")
	}
	return &Client{transport: t, log: log, params: params}, nil
}

// Run resolves serverAddr ("host" or "host:port"), performs the discovery
// handshake, and returns the sealed roster once InitConfig has been
// received and acked.
func (c *Client) Run(serverAddr string) (roster.Roster, error) {
	host, port, err := splitHostPort(serverAddr)
	if err != nil {
		return roster.Roster{}, err
	}
	hostAddr, ok := c.transport.ResolveHost(host)
	if !ok {
		return roster.Roster{}, transport.ErrUnresolvableHost
	}
	serverPeer := wire.PeerAddress{Host: hostAddr, Port: port}

	hello := wire.EncodeInit(wire.InitMessage{
		Type:    wire.OpInitHello,
		Version: wire.NetworkProtocolVersion,
		Lag:     c.params.Lag,
		Updates: c.params.Updates,
	})

	for {
		if err := c.transport.SendTo(serverPeer, hello); err != nil {
			c.log.Warn("handshake: failed to send init hello", zap.Error(err))
		}
		res := c.transport.PollReady(clientReplyWait)
		if !res.Ready {
			continue
		}
		buf, src, err := c.transport.RecvFrom()
		if err != nil || src != serverPeer {
			continue
		}
		msg, err := wire.DecodeInit(buf)
		if err != nil || msg.Type != wire.OpInitReply {
			continue
		}
		break
	}
	c.log.Info("handshake: received init reply", zap.String("server", transport.HostPortString(serverPeer)))

	var config wire.InitMessage
	for {
		buf, src, err := c.transport.RecvFrom()
		if err != nil || src != serverPeer {
			continue
		}
		msg, err := wire.DecodeInit(buf)
		if err != nil || msg.Type != wire.OpInitConfig {
			continue
		}
		config = msg
		break
	}

	localHost, localErr := selfAddress(c.transport, hostAddr)

	ack := wire.EncodeInit(wire.InitMessage{
		Type:    wire.OpInitReply,
		Version: wire.NetworkProtocolVersion,
		Lag:     c.params.Lag,
		Updates: c.params.Updates,
	})
	if err := c.transport.SendTo(serverPeer, ack); err != nil {
		c.log.Warn("handshake: failed to ack init config", zap.Error(err))
	}

	sealed, thisPlayer, err := buildClientRoster(config, serverPeer, localHost, c.transport.LocalPort())
	if err != nil {
		return roster.Roster{}, err
	}
	if localErr != nil {
		c.log.Warn("handshake: could not determine own LAN address, falling back to elimination", zap.Error(localErr))
	}

	// Tolerate a late InitConfig arriving within the tail window: the
	// server may not have seen our first ack and will keep rebroadcasting.
	deadline := time.Now().Add(lateAckTail)
	for time.Now().Before(deadline) {
		res := c.transport.PollReady(time.Until(deadline))
		if !res.Ready {
			break
		}
		buf, src, err := c.transport.RecvFrom()
		if err != nil || src != serverPeer {
			continue
		}
		msg, err := wire.DecodeInit(buf)
		if err != nil || msg.Type != wire.OpInitConfig {
			continue
		}
		_ = c.transport.SendTo(serverPeer, ack)
	}

	return roster.New(sealed, thisPlayer)
}

// buildClientRoster turns a received InitConfig into roster entries and the
// local player's index.
//
// The zero Hosts entry is always the server's sentinel slot, replaced here
// with the already-known serverPeer address. Every other entry is a real
// peer address, one of which is this client's own: direct LAN addressing is
// assumed, so the client learns its own LAN-visible address and matches
// against it; if nothing matches, the first non-server entry is taken to be
// the local player.
func buildClientRoster(config wire.InitMessage, serverPeer wire.PeerAddress, localHost uint32, localPort uint16) ([]roster.Entry, uint8, error) {
	count := int(config.HostsCount)
	if count < 1 || count > wire.MaxPlayers {
		return nil, 0, fmt.Errorf("handshake: invalid HostsCount %d in init config", count)
	}

	entries := make([]roster.Entry, 0, count)
	selfIdx := -1
	for i := 0; i < count; i++ {
		h := config.Hosts[i]
		num := uint8(config.Nums[i])
		if h.Host == 0 && h.Port == 0 {
			entries = append(entries, roster.Entry{Peer: serverPeer, PlayerIndex: num})
			continue
		}
		if h.Host == localHost && h.Port == localPort {
			selfIdx = len(entries)
		}
		entries = append(entries, roster.Entry{Peer: h, PlayerIndex: num})
	}

	if selfIdx < 0 {
		// Elimination fallback: the local probe didn't match (e.g. the
		// outbound-IP probe failed); take the first non-server entry as
		// self, since in a direct (non-NAT) session the server fills in
		// every other client's true address and we have no independent
		// way to tell them apart without one.
		for i, e := range entries {
			if e.Peer != serverPeer {
				selfIdx = i
				break
			}
		}
	}
	if selfIdx < 0 {
		return nil, 0, fmt.Errorf("handshake: could not identify local player in init config")
	}
	return entries, entries[selfIdx].PlayerIndex, nil
}

// selfAddress best-effort determines this host's LAN-visible IPv4 address
// by opening a UDP "connection" toward the server (no packets are actually
// sent for UDP dial; it only consults routing to pick a local interface).
func selfAddress(t transport.DatagramTransport, serverHost uint32) (uint32, error) {
	ip := net.IPv4(byte(serverHost>>24), byte(serverHost>>16), byte(serverHost>>8), byte(serverHost))
	conn, err := net.Dial("udp4", ip.String()+":9")
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("handshake: unexpected local addr type")
	}
	ip4 := local.IP.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("handshake: no IPv4 local address")
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3]), nil
}

// splitHostPort parses "host" or "host:port", defaulting to
// wire.DefaultPort when no port is given.
func splitHostPort(addr string) (string, uint16, error) {
	if !strings.Contains(addr, ":") {
		return addr, wire.DefaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("handshake: %w: %v", transport.ErrUnresolvableHost, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 0xFFFF {
		return "", 0, fmt.Errorf("handshake: %w: bad port %q", transport.ErrUnresolvableHost, portStr)
	}
	return host, uint16(port), nil
}
