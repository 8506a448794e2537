package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/realtuner/stage/internal/core"
	"github.com/realtuner/stage/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	pcm    []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) TrySendPCM(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pcm = append(c.pcm, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

type fakeHub struct {
	mu     sync.Mutex
	frames []core.Frame
	pcm    []core.Frame
}

func (h *fakeHub) Broadcast(f core.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
}

func (h *fakeHub) BroadcastPCMExcept(_ core.SignalConnection, f core.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pcm = append(h.pcm, f)
}

// timerEvents decodes the broadcast frames and returns the timer-update ones.
func (h *fakeHub) timerEvents(t *testing.T) []TimerEvent {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []TimerEvent
	for _, f := range h.frames {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(f, &env))
		if env.Type != "timer-update" {
			continue
		}
		var ev TimerEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

type fakeStore struct {
	mu    sync.Mutex
	saves []domain.SessionState
	fail  bool
}

func (s *fakeStore) Load() (*domain.SessionState, error) { return nil, nil }

func (s *fakeStore) Save(state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk on fire")
	}
	s.saves = append(s.saves, state)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) last() (domain.SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return domain.SessionState{}, false
	}
	return s.saves[len(s.saves)-1], true
}

type fakeSink struct {
	mu      sync.Mutex
	chunks  [][]byte
	closed  bool
	failure error
}

func (s *fakeSink) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeHub, *fakeStore) {
	t.Helper()
	hub := &fakeHub{}
	st := &fakeStore{}
	relay := NewAudioRelay(hub, nil)
	// The background ticker never fires in tests; ticks are driven by hand.
	c := NewCoordinator(
		Options{TurnSeconds: 30, GracePeriod: 30 * time.Second, DisconnectDebounce: time.Millisecond},
		domain.NewSessionState(),
		NewPresence(),
		NewTurnTimer(time.Hour),
		relay,
		st,
		hub,
	)
	return c, hub, st
}

// driveTicks simulates n seconds of the live timer.
func driveTicks(c *Coordinator, n int) {
	for i := 0; i < n; i++ {
		c.mu.Lock()
		gen := c.timerGen
		c.mu.Unlock()
		c.tick(gen)
	}
}

func identifyAndJoin(t *testing.T, c *Coordinator, id, name string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	c.Identify(domain.ParticipantID(id), conn)
	_, err := c.JoinQueue(domain.ParticipantID(id), name)
	require.NoError(t, err)
	return conn
}

func assertInvariants(t *testing.T, s domain.SessionState) {
	t.Helper()
	require.Equal(t, s.Current != nil, s.Active, "active must mirror current")
	if s.Current == nil {
		require.Zero(t, s.TimeLeft, "idle session must have no countdown")
	}
	seen := map[domain.ParticipantID]struct{}{}
	if s.Current != nil {
		seen[s.Current.ID] = struct{}{}
	}
	for _, p := range s.Queue {
		_, dup := seen[p.ID]
		require.False(t, dup, "id %s appears twice", p.ID)
		seen[p.ID] = struct{}{}
	}
}
