package core

import "github.com/realtuner/stage/internal/domain"

// Frame is a raw payload: a JSON control event or a PCM audio chunk.
type Frame []byte

// SignalConnection is one client's transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues a JSON control frame, failing fast on backpressure.
	TrySend(Frame) error
	// TrySendPCM queues a binary audio frame.
	TrySendPCM(Frame) error
	Close()
}

// Broadcaster fans frames out to every open connection.
// Implemented by the signal hub.
type Broadcaster interface {
	Broadcast(Frame)
	BroadcastPCMExcept(except SignalConnection, f Frame)
}

// SnapshotStore persists the session state between restarts.
// Load returns (nil, nil) when no snapshot has ever been written.
type SnapshotStore interface {
	Load() (*domain.SessionState, error)
	Save(domain.SessionState) error
	Close() error
}

// PlaybackSink is a running external playback process.
// Write returns an error once the process is gone; Close signals
// end-of-stream and reaps the process.
type PlaybackSink interface {
	Write(chunk []byte) error
	Close()
}

// SinkFactory spawns a fresh playback sink.
type SinkFactory func() (PlaybackSink, error)
