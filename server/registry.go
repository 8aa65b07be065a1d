package main

import (
	"errors"
	"net/netip"
	"sync"
	"time"
)

// ErrNameTaken is returned by Registry.Register when the requested display
// name is already in use by another connected participant (§4.2, §8 S2).
var ErrNameTaken = errors.New("registry: name already taken")

// ControlSender is the minimal interface the registry needs to push a
// control message to a participant's connection. Using an interface here
// (mirroring the teacher's DatagramSender) lets tests register participants
// without a real net.Conn.
type ControlSender interface {
	SendControl(msg ControlMsg)
}

// Participant is one connected session (§3). All fields are only ever
// mutated by the owning control worker under Registry.mu; other components
// (C4/C5/C6/C7) only ever read a Participant via a Registry method, never
// hold a pointer across their own operations.
type Participant struct {
	Name         string
	Conn         ControlSender
	VideoAddr    netip.AddrPort
	AudioAddr    netip.AddrPort
	Color        string
	LastActivity time.Time

	// ready is false from Register until Activate is called. Broadcast and
	// Resolve both skip non-ready participants so a newly joined connection
	// cannot be reached by another participant's chat/join/cursor_move/
	// private_chat before its own whiteboard_sync and user_list sends
	// return (§5 ordering guarantees).
	ready bool
}

// Registry is the session registry (C2): the set of connected participants,
// indexed both by connection handle and by name, plus the derived video
// endpoint set and audio endpoint map that share its lock per §5's lock
// table (clients_lock covers all three).
type Registry struct {
	mu sync.RWMutex

	byConn map[ControlSender]*Participant
	byName map[string]ControlSender

	nextColor int
}

// NewRegistry constructs an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[ControlSender]*Participant),
		byName: make(map[string]ControlSender),
	}
}

// Register inserts a new participant keyed by conn, assigning the next
// palette color. It is atomic: on NameTaken, neither index is touched.
func (r *Registry) Register(conn ControlSender, name string, videoAddr, audioAddr netip.AddrPort) (color string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return "", ErrNameTaken
	}

	color = ColorPalette[r.nextColor%len(ColorPalette)]
	r.nextColor++

	r.byConn[conn] = &Participant{
		Name:         name,
		Conn:         conn,
		VideoAddr:    videoAddr,
		AudioAddr:    audioAddr,
		Color:        color,
		LastActivity: time.Now(),
		ready:        false,
	}
	r.byName[name] = conn
	return color, nil
}

// Activate marks conn eligible to receive Broadcast/Resolve traffic. The
// caller must send the new participant's own whiteboard_sync and user_list
// replies directly via SendControl before calling Activate, so those two
// sends are guaranteed to reach the wire before any other participant's
// broadcast (§5).
func (r *Registry) Activate(conn ControlSender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byConn[conn]
	if !ok {
		return false
	}
	p.ready = true
	return true
}

// Deregister removes conn from both indices and returns the participant that
// was removed, if any. Safe to call more than once for the same conn: the
// second call simply finds nothing and returns ok=false (§8 invariant 8,
// idempotent departure).
func (r *Registry) Deregister(conn ControlSender) (p *Participant, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok = r.byConn[conn]
	if !ok {
		return nil, false
	}
	delete(r.byConn, conn)
	delete(r.byName, p.Name)
	return p, true
}

// Resolve looks up the connection handle for a display name. A participant
// that has not yet been Activate'd is not resolvable, for the same ordering
// reason Broadcast excludes it.
func (r *Registry) Resolve(name string) (ControlSender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byName[name]
	if !ok || !r.byConn[conn].ready {
		return nil, false
	}
	return conn, ok
}

// Snapshot returns the current roster as a slice safe to use after the lock
// is released.
func (r *Registry) Snapshot() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RosterEntry, 0, len(r.byConn))
	for _, p := range r.byConn {
		out = append(out, RosterEntry{Name: p.Name, Color: p.Color})
	}
	return out
}

// Broadcast sends msg to every registered participant except the one whose
// connection handle equals except (pass nil to exclude none). The lock is
// held only long enough to copy out the target slice; sends happen after
// release per §5 ("acquire to snapshot the target set, release, then send").
func (r *Registry) Broadcast(msg ControlMsg, except ControlSender) {
	r.mu.RLock()
	targets := make([]ControlSender, 0, len(r.byConn))
	for conn, p := range r.byConn {
		if conn == except || !p.ready {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	for _, t := range targets {
		t.SendControl(msg)
	}
}

// VideoTargets returns a snapshot of every (address, port) currently
// eligible to receive video datagrams (C4's endpoint set).
func (r *Registry) VideoTargets() []netip.AddrPort {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]netip.AddrPort, 0, len(r.byConn))
	for _, p := range r.byConn {
		if p.VideoAddr.IsValid() {
			out = append(out, p.VideoAddr)
		}
	}
	return out
}

// AudioTargets returns a snapshot of every (address, port) currently
// registered to receive/send audio, keyed by that endpoint (C5's endpoint
// map).
func (r *Registry) AudioTargets() map[netip.AddrPort]ControlSender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[netip.AddrPort]ControlSender, len(r.byConn))
	for _, p := range r.byConn {
		if p.AudioAddr.IsValid() {
			out[p.AudioAddr] = p.Conn
		}
	}
	return out
}

// Count returns the number of connected participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Touch updates a participant's last-activity timestamp.
func (r *Registry) Touch(conn ControlSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byConn[conn]; ok {
		p.LastActivity = time.Now()
	}
}
