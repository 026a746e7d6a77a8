package tcp

import (
	"fmt"
	"net/netip"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"firestige.xyz/tapstack/internal/core"
)

// State of a handshake attempt.
type State uint8

const (
	StateAwaitingSYN State = iota
	StateSynReceived
)

func (s State) String() string {
	if s == StateSynReceived {
		return "SYN-RECEIVED"
	}
	return "AWAITING-SYN"
}

// Transition returns the state reached when a segment carrying flags
// arrives in state cur. Only a pure SYN moves anywhere; it leads to
// SynReceived from either state, a repeat being a retransmission.
func Transition(cur State, flags Flags) (State, error) {
	if !flags.IsPureSYN() {
		return cur, fmt.Errorf("tcp flags %s in state %s: %w", flags, cur, core.ErrUnsupported)
	}
	return StateSynReceived, nil
}

// Key identifies a handshake attempt.
type Key struct {
	LocalPort uint16
	Remote    netip.AddrPort
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.LocalPort, k.Remote)
}

// Attempt records a SYN we answered.
type Attempt struct {
	Key     Key
	State   State
	PeerSeq uint32
	ISN     uint32
	Seen    time.Time
}

// Table remembers answered SYNs so a retransmitted SYN gets the same ISN.
// It only observes; no connection ever progresses past SYN-RECEIVED.
// Table is safe for concurrent use.
type Table struct {
	store *gocache.Cache
}

// NewTable creates a table whose attempts are forgotten after ttl.
// A non-positive ttl keeps them for the life of the table.
func NewTable(ttl time.Duration) *Table {
	if ttl <= 0 {
		return &Table{store: gocache.New(gocache.NoExpiration, 0)}
	}
	return &Table{store: gocache.New(ttl, ttl)}
}

func (t *Table) Get(k Key) (Attempt, bool) {
	v, ok := t.store.Get(k.String())
	if !ok {
		return Attempt{}, false
	}
	return v.(Attempt), true
}

// Put stores a, replacing the attempt with the same key.
func (t *Table) Put(a Attempt) {
	t.store.SetDefault(a.Key.String(), a)
}

// Len returns the number of stored attempts, expired ones included until
// the janitor removes them.
func (t *Table) Len() int {
	return t.store.ItemCount()
}
