package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/realtuner/stage/internal/core"
	"github.com/realtuner/stage/internal/domain"
)

// AudioRelay fans the active participant's PCM chunks out to every other
// connection and pipes them to the external playback sink. It is gated by
// the coordinator through SetSpeaker but does all subprocess I/O on its
// own lock, so a slow sink never stalls queue or turn mutations.
type AudioRelay struct {
	hub     core.Broadcaster
	factory core.SinkFactory

	mu      sync.Mutex
	speaker domain.ParticipantID
	sink    core.PlaybackSink
	sinkFor domain.ParticipantID
}

// NewAudioRelay creates a relay. A nil factory disables the external
// playback path; the fan-out to other clients still works.
func NewAudioRelay(hub core.Broadcaster, factory core.SinkFactory) *AudioRelay {
	return &AudioRelay{hub: hub, factory: factory}
}

// SetSpeaker switches turn ownership. The empty id means nobody holds the
// stage. A sink spawned for the previous speaker is torn down; teardown
// runs on its own goroutine because Close may wait on the process.
func (r *AudioRelay) SetSpeaker(id domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speaker = id
	if r.sink != nil && r.sinkFor != id {
		go r.sink.Close()
		r.sink = nil
		r.sinkFor = ""
	}
}

// Forward relays one audio chunk attributed to id. Chunks from anyone but
// the current speaker are dropped silently.
func (r *AudioRelay) Forward(id domain.ParticipantID, sender core.SignalConnection, chunk core.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.speaker == "" || id != r.speaker {
		return
	}

	r.hub.BroadcastPCMExcept(sender, chunk)
	r.writeSink(id, chunk)
}

// writeSink lazily spawns the sink for the current speaker and feeds it.
// All failures degrade silently: the broadcast above already happened.
func (r *AudioRelay) writeSink(id domain.ParticipantID, chunk core.Frame) {
	if r.factory == nil {
		return
	}
	if r.sink == nil || r.sinkFor != id {
		if r.sink != nil {
			go r.sink.Close()
			r.sink = nil
		}
		sink, err := r.factory()
		if err != nil {
			log.Error().Err(err).Str("module", "app.relay").Str("id", string(id)).Msg("spawn playback sink")
			return
		}
		r.sink = sink
		r.sinkFor = id
		log.Info().Str("module", "app.relay").Str("id", string(id)).Msg("playback sink started")
	}
	if err := r.sink.Write(chunk); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("sink write failed, dropping sink")
		go r.sink.Close()
		r.sink = nil
		r.sinkFor = ""
	}
}

// Shutdown tears down any live sink. Synchronous; used on process exit.
func (r *AudioRelay) Shutdown() {
	r.mu.Lock()
	sink := r.sink
	r.sink = nil
	r.sinkFor = ""
	r.speaker = ""
	r.mu.Unlock()
	if sink != nil {
		sink.Close()
	}
}
