package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/realtuner/stage/internal/core"
	"github.com/realtuner/stage/internal/domain"
)

// Outbound control events. One struct per event name; the Type field is
// the envelope tag clients switch on.

type StateEvent struct {
	Type  string              `json:"type"`
	State domain.SessionState `json:"state"`
}

type TimerEvent struct {
	Type     string `json:"type"`
	TimeLeft int    `json:"timeLeft"`
}

type QueueJoinedEvent struct {
	Type        string             `json:"type"`
	Participant domain.Participant `json:"participant"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewStateEvent(state domain.SessionState) StateEvent {
	return StateEvent{Type: "game-state-update", State: state}
}

func NewTimerEvent(timeLeft int) TimerEvent {
	return TimerEvent{Type: "timer-update", TimeLeft: timeLeft}
}

func NewQueueJoinedEvent(p domain.Participant) QueueJoinedEvent {
	return QueueJoinedEvent{Type: "queue-joined", Participant: p}
}

func NewErrorEvent(reason string) ErrorEvent {
	return ErrorEvent{Type: "error", Error: reason}
}

// EncodeEvent marshals an outbound event into a frame. A marshal failure
// is a programming error; it is logged and yields an empty frame that
// TrySend implementations treat as a no-op.
func EncodeEvent(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("encode event")
		return nil
	}
	return core.Frame(b)
}
