package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realtuner/stage/internal/core"
	"github.com/realtuner/stage/internal/domain"
)

// PresenceEntry preserves a participant's membership while we wait to
// see whether their disconnect was transient.
type PresenceEntry struct {
	Participant    domain.Participant
	DisconnectedAt time.Time

	timer *time.Timer
}

// Presence is pure bookkeeping: which participant is on which live
// connection, plus the grace-period set of recently disconnected ones.
// Every mutation is idempotent so the coordinator can call it without
// caring about timer races.
type Presence struct {
	mu       sync.Mutex
	conns    map[domain.ParticipantID]core.SignalConnection
	debounce map[domain.ParticipantID]*time.Timer
	pending  map[domain.ParticipantID]*PresenceEntry
}

func NewPresence() *Presence {
	return &Presence{
		conns:    make(map[domain.ParticipantID]core.SignalConnection),
		debounce: make(map[domain.ParticipantID]*time.Timer),
		pending:  make(map[domain.ParticipantID]*PresenceEntry),
	}
}

// Register binds id to its current connection, replacing any prior one.
func (p *Presence) Register(id domain.ParticipantID, conn core.SignalConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[id] = conn
}

func (p *Presence) Lookup(id domain.ParticipantID) (core.SignalConnection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn, ok := p.conns[id]
	return conn, ok
}

// ConnIs reports whether id is still bound to exactly conn. A reconnect
// replaces the binding, which is how a stale disconnect detects it lost.
func (p *Presence) ConnIs(id domain.ParticipantID, conn core.SignalConnection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.conns[id]
	return ok && cur == conn
}

func (p *Presence) Remove(id domain.ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, id)
}

// ScheduleDebounce arms the short pre-eviction delay for id. An existing
// timer is replaced so only the latest disconnect counts.
func (p *Presence) ScheduleDebounce(id domain.ParticipantID, d time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.debounce[id]; ok {
		t.Stop()
	}
	p.debounce[id] = time.AfterFunc(d, fn)
}

// CancelDebounce is a no-op when no timer is armed.
func (p *Presence) CancelDebounce(id domain.ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.debounce[id]; ok {
		t.Stop()
		delete(p.debounce, id)
	}
}

// MarkDisconnected opens a grace window for id. Re-marking an id replaces
// the entry and restarts the window.
func (p *Presence) MarkDisconnected(id domain.ParticipantID, snapshot domain.Participant, grace time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.pending[id]; ok {
		old.timer.Stop()
	}
	p.pending[id] = &PresenceEntry{
		Participant:    snapshot,
		DisconnectedAt: time.Now(),
		timer:          time.AfterFunc(grace, fn),
	}
	log.Info().Str("module", "app.presence").Str("id", string(id)).Dur("grace", grace).Msg("grace window opened")
}

// CancelEviction closes the grace window, reporting whether one was open.
func (p *Presence) CancelEviction(id domain.ParticipantID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.pending[id]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(p.pending, id)
	return true
}

// TakeEvicted removes and returns the entry when the grace timer fires.
// Returns false if the window was cancelled first, making expiry and
// reconnect race-safe.
func (p *Presence) TakeEvicted(id domain.ParticipantID) (domain.Participant, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.pending[id]
	if !ok {
		return domain.Participant{}, false
	}
	delete(p.pending, id)
	return entry.Participant, true
}

// Evicting reports whether a grace window is open for id.
func (p *Presence) Evicting(id domain.ParticipantID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[id]
	return ok
}
