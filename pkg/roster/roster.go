// Package roster holds the sealed peer list a handshake produces: the
// ordered set of participants and which entry is the local player.
package roster

import (
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/xiubinzheng/lockstep-core/pkg/wire"
)

// Entry is one participant in a session: either a remote peer's address, or
// the local player's slot (Peer is unused for the local entry).
type Entry struct {
	Peer        wire.PeerAddress
	PlayerIndex uint8
}

// IPPortString renders e.Peer as "host:port".
func (e Entry) IPPortString() string {
	ip := make(net.IP, 4)
	ip[0] = byte(e.Peer.Host >> 24)
	ip[1] = byte(e.Peer.Host >> 16)
	ip[2] = byte(e.Peer.Host >> 8)
	ip[3] = byte(e.Peer.Host)
	return ip.String() + ":" + strconv.Itoa(int(e.Peer.Port))
}

// Roster is the sealed, ordered list of entries agreed by every participant
// during handshake. It is immutable once built: callers receive a value,
// never a pointer into mutable state.
type Roster struct {
	entries    []Entry
	thisPlayer uint8
	numPlayers uint8
}

// New seals entries into a Roster, sorted by PlayerIndex. thisPlayer is the
// PlayerIndex of the local participant's entry; it must be present in
// entries.
func New(entries []Entry, thisPlayer uint8) (Roster, error) {
	if len(entries) == 0 {
		return Roster{}, fmt.Errorf("roster: empty entries")
	}
	if len(entries) > wire.MaxPlayers {
		return Roster{}, fmt.Errorf("roster: %d entries exceeds MaxPlayers=%d", len(entries), wire.MaxPlayers)
	}
	found := false
	for _, e := range entries {
		if e.PlayerIndex == thisPlayer {
			found = true
			break
		}
	}
	if !found {
		return Roster{}, fmt.Errorf("roster: thisPlayer=%d not present in entries", thisPlayer)
	}
	sealed := make([]Entry, len(entries))
	copy(sealed, entries)
	sort.SliceStable(sealed, func(i, j int) bool { return sealed[i].PlayerIndex < sealed[j].PlayerIndex })
	return Roster{entries: sealed, thisPlayer: thisPlayer, numPlayers: uint8(len(sealed))}, nil
}

// NumPlayers returns the number of sealed participants.
func (r Roster) NumPlayers() uint8 { return r.numPlayers }

// ThisPlayer returns the local participant's player index.
func (r Roster) ThisPlayer() uint8 { return r.thisPlayer }

// Entries returns the sealed entries in canonical player-index order. The
// returned slice is a copy; mutating it does not affect the Roster.
func (r Roster) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// PeerOf returns the peer address of the participant at the given player
// index, and whether that index is present and not the local player.
func (r Roster) PeerOf(playerIndex uint8) (wire.PeerAddress, bool) {
	if playerIndex == r.thisPlayer {
		return wire.PeerAddress{}, false
	}
	for _, e := range r.entries {
		if e.PlayerIndex == playerIndex {
			return e.Peer, true
		}
	}
	return wire.PeerAddress{}, false
}

// Remotes returns every entry other than the local player's, in canonical
// order, for broadcast fan-out.
func (r Roster) Remotes() []Entry {
	out := make([]Entry, 0, len(r.entries)-1)
	for _, e := range r.entries {
		if e.PlayerIndex != r.thisPlayer {
			out = append(out, e)
		}
	}
	return out
}
