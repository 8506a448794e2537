package app

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/realtuner/stage/internal/core"
	"github.com/realtuner/stage/internal/domain"
)

var (
	ErrNotIdentified = errors.New("not identified")
	ErrAlreadyQueued = errors.New("already in queue or on stage")
)

// skipCompletesTurn decides whether a voluntary skip counts toward the
// completed-turn total, like a natural expiry does. A single constant so
// every code path agrees.
const skipCompletesTurn = true

type Options struct {
	TurnSeconds        int
	GracePeriod        time.Duration
	DisconnectDebounce time.Duration
}

func (o *Options) fill() {
	if o.TurnSeconds <= 0 {
		o.TurnSeconds = 30
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 30 * time.Second
	}
	if o.DisconnectDebounce <= 0 {
		o.DisconnectDebounce = time.Second
	}
}

// Coordinator owns the session aggregate: the FIFO queue, the active
// turn and its countdown, and the completed-turn counter. Every mutating
// operation serializes on one mutex; timers re-enter through exported
// methods that take it again. After each mutation the new state is
// persisted (asynchronously, latest wins) and broadcast.
type Coordinator struct {
	opts Options

	mu    sync.Mutex
	state *domain.SessionState

	presence *Presence
	timer    *TurnTimer
	relay    *AudioRelay
	store    core.SnapshotStore
	hub      core.Broadcaster

	// timerGen invalidates ticks from a replaced timer instance.
	timerGen uint64

	saveCh   chan domain.SessionState
	saveDone chan struct{}
	started  bool
	closed   bool
}

func NewCoordinator(
	opts Options,
	state *domain.SessionState,
	presence *Presence,
	timer *TurnTimer,
	relay *AudioRelay,
	store core.SnapshotStore,
	hub core.Broadcaster,
) *Coordinator {
	opts.fill()
	if state == nil {
		state = domain.NewSessionState()
	}
	state.Normalize()
	return &Coordinator{
		opts:     opts,
		state:    state,
		presence: presence,
		timer:    timer,
		relay:    relay,
		store:    store,
		hub:      hub,
		saveCh:   make(chan domain.SessionState, 1),
		saveDone: make(chan struct{}),
	}
}

// LoadState reads the persisted snapshot and merges it over defaults.
// Storage failures degrade to a fresh session; the running process is
// always authoritative.
func LoadState(store core.SnapshotStore) *domain.SessionState {
	snap, err := store.Load()
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("load snapshot, starting fresh")
		return domain.NewSessionState()
	}
	if snap == nil {
		return domain.NewSessionState()
	}
	snap.Normalize()
	return snap
}

// Start launches the saver goroutine and, when the restored state still
// has an active turn, resumes its countdown where it left off.
func (c *Coordinator) Start() {
	go c.saver()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	if c.state.Current == nil {
		return
	}
	if c.state.TimeLeft <= 0 {
		c.state.TimeLeft = c.opts.TurnSeconds
	}
	log.Info().Str("module", "app.coordinator").
		Str("id", string(c.state.Current.ID)).
		Int("time_left", c.state.TimeLeft).
		Msg("resuming active turn from snapshot")
	c.relay.SetSpeaker(c.state.Current.ID)
	c.startTimerLocked()
}

// Identify registers/refreshes the connection for a stable participant
// id, cancelling any pending debounce or grace eviction. Returns the
// current state for the unicast reply.
func (c *Coordinator) Identify(id domain.ParticipantID, conn core.SignalConnection) domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.presence.CancelDebounce(id)
	resumed := c.presence.CancelEviction(id)
	c.presence.Register(id, conn)

	log.Info().Str("module", "app.coordinator").Str("id", string(id)).Bool("resumed", resumed).Msg("identified")
	if resumed {
		// The participant kept their queue position; let everyone know.
		c.persistLocked()
		c.broadcastStateLocked()
	}
	return c.state.Clone()
}

// JoinQueue appends a new participant to the tail of the queue. If the
// session is idle their turn starts immediately.
func (c *Coordinator) JoinQueue(id domain.ParticipantID, name string) (*domain.Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.presence.Lookup(id); !ok {
		return nil, ErrNotIdentified
	}
	p, err := domain.NewParticipant(id, name)
	if err != nil {
		return nil, err
	}
	if c.state.Queued(id) || c.state.IsCurrent(id) {
		return nil, ErrAlreadyQueued
	}

	c.state.Queue = append(c.state.Queue, *p)
	log.Info().Str("module", "app.coordinator").Str("id", string(id)).Str("name", p.Name).Msg("joined queue")

	if c.state.Current == nil {
		c.advanceLocked(false)
	}
	c.persistLocked()
	c.broadcastStateLocked()
	return p, nil
}

// LeaveQueue removes id from the queue, or advances the turn when id is
// the current participant. A no-op for unknown ids. The connection stays
// identified: leaving the queue is not a disconnect, and the participant
// may rejoin on the same connection. Only the disconnect path removes
// the binding.
func (c *Coordinator) LeaveQueue(id domain.ParticipantID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Queue = lo.Filter(c.state.Queue, func(p domain.Participant, _ int) bool {
		return p.ID != id
	})
	if c.state.IsCurrent(id) {
		c.advanceLocked(false)
	}
	log.Info().Str("module", "app.coordinator").Str("id", string(id)).Msg("left queue")

	c.persistLocked()
	c.broadcastStateLocked()
}

// SkipTurn ends the current turn early. Only the participant holding the
// stage can skip.
func (c *Coordinator) SkipTurn(id domain.ParticipantID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsCurrent(id) {
		return
	}
	log.Info().Str("module", "app.coordinator").Str("id", string(id)).Msg("turn skipped")
	c.advanceLocked(skipCompletesTurn)
	c.persistLocked()
	c.broadcastStateLocked()
}

// CurrentID returns who holds the stage, or "".
func (c *Coordinator) CurrentID() domain.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Current == nil {
		return ""
	}
	return c.state.Current.ID
}

// Snapshot returns a copy of the state for read-only consumers.
func (c *Coordinator) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Disconnect is invoked by the transport when a connection drops. The
// debounce window absorbs page-refresh style reconnects before any
// presence bookkeeping happens.
func (c *Coordinator) Disconnect(id domain.ParticipantID, conn core.SignalConnection) {
	c.presence.ScheduleDebounce(id, c.opts.DisconnectDebounce, func() {
		c.ConfirmDisconnect(id, conn)
	})
}

// ConfirmDisconnect runs once the debounce elapses. If the id has
// re-identified on a newer connection the disconnect is stale and the
// whole thing is dropped.
func (c *Coordinator) ConfirmDisconnect(id domain.ParticipantID, conn core.SignalConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.presence.ConnIs(id, conn) {
		log.Info().Str("module", "app.coordinator").Str("id", string(id)).Msg("disconnect superseded by reconnect")
		return
	}
	c.presence.Remove(id)

	var snapshot *domain.Participant
	if c.state.IsCurrent(id) {
		snapshot = c.state.Current
	} else if c.state.Queued(id) {
		p, _ := lo.Find(c.state.Queue, func(p domain.Participant) bool { return p.ID == id })
		snapshot = &p
	}
	if snapshot == nil {
		return
	}
	c.presence.MarkDisconnected(id, *snapshot, c.opts.GracePeriod, func() {
		c.ExpireGrace(id)
	})
}

// ExpireGrace evicts a participant whose grace window ran out without a
// reconnect. Safe against a concurrent Identify: TakeEvicted loses the
// race when the entry is already gone.
func (c *Coordinator) ExpireGrace(id domain.ParticipantID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot, ok := c.presence.TakeEvicted(id)
	if !ok {
		return
	}
	log.Info().Str("module", "app.coordinator").Str("id", string(id)).Str("name", snapshot.Name).Msg("grace period expired, evicting")

	c.state.Queue = lo.Filter(c.state.Queue, func(p domain.Participant, _ int) bool {
		return p.ID != id
	})
	if c.state.IsCurrent(id) {
		c.advanceLocked(false)
	}
	c.persistLocked()
	c.broadcastStateLocked()
}

// tick runs once per second while a turn is active. Pure decrements emit
// only the lightweight timer event; hitting zero rotates the turn.
func (c *Coordinator) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen || !c.state.Active {
		return
	}
	if c.state.TimeLeft > 0 {
		c.state.TimeLeft--
		c.hub.Broadcast(EncodeEvent(NewTimerEvent(c.state.TimeLeft)))
		if c.state.TimeLeft > 0 {
			return
		}
	}
	c.advanceLocked(true)
	c.persistLocked()
	c.broadcastStateLocked()
}

// advanceLocked ends the current turn (counting it when completed) and
// pops the queue head into the stage. Callers persist and broadcast.
func (c *Coordinator) advanceLocked(completed bool) {
	if completed && c.state.Current != nil {
		c.state.CompletedTurns++
	}

	c.timerGen++
	c.timer.Stop()

	c.state.Current = nil
	c.state.TimeLeft = 0
	c.state.Active = false

	if len(c.state.Queue) == 0 {
		c.relay.SetSpeaker("")
		return
	}

	head := c.state.Queue[0]
	c.state.Queue = c.state.Queue[1:]
	c.state.Current = &head
	c.state.TimeLeft = c.opts.TurnSeconds
	c.state.Active = true

	log.Info().Str("module", "app.coordinator").
		Str("id", string(head.ID)).
		Str("name", head.Name).
		Msg("turn started")

	c.relay.SetSpeaker(head.ID)
	c.startTimerLocked()
}

func (c *Coordinator) startTimerLocked() {
	c.timerGen++
	gen := c.timerGen
	c.timer.Start(func() { c.tick(gen) })
}

func (c *Coordinator) broadcastStateLocked() {
	c.hub.Broadcast(EncodeEvent(NewStateEvent(c.state.Clone())))
}

// persistLocked hands a snapshot to the saver without ever blocking the
// critical section. The channel holds one pending snapshot; a newer one
// replaces it, so saves stay ordered and the latest always lands.
func (c *Coordinator) persistLocked() {
	if c.closed {
		return
	}
	snap := c.state.Clone()
	for {
		select {
		case c.saveCh <- snap:
			return
		default:
		}
		select {
		case <-c.saveCh:
		default:
		}
	}
}

func (c *Coordinator) saver() {
	defer close(c.saveDone)
	for snap := range c.saveCh {
		if err := c.store.Save(snap); err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Msg("persist snapshot")
		}
	}
}

// Shutdown stops the timer, tears down the playback sink and writes a
// final synchronous snapshot. Safe to call more than once, and safe
// when Start never ran: the saver is only drained if it was launched.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	c.timerGen++
	c.timer.Stop()
	snap := c.state.Clone()
	c.mu.Unlock()

	c.relay.Shutdown()

	if started {
		close(c.saveCh)
		<-c.saveDone
	}
	if err := c.store.Save(snap); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("final snapshot")
	}
	log.Info().Str("module", "app.coordinator").Msg("coordinator stopped")
}
