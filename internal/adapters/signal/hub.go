package signal

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/realtuner/stage/internal/core"
)

// Hub tracks every open connection, identified or not, and implements
// the coordinator's broadcast seam.
type Hub struct {
	mu    sync.RWMutex
	conns map[*WsConn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*WsConn]struct{})}
}

func (h *Hub) Add(c *WsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) Remove(c *WsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast queues a control frame on every connection. Slow clients
// just drop the frame; the next state broadcast catches them up.
func (h *Hub) Broadcast(f core.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for c := range h.conns {
		if err := c.TrySend(f); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		log.Debug().Str("module", "signal.hub").Int("dropped", dropped).Msg("broadcast drops")
	}
}

// BroadcastPCMExcept fans an audio frame out to everyone but the sender.
func (h *Hub) BroadcastPCMExcept(except core.SignalConnection, f core.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if c == except {
			continue
		}
		_ = c.TrySendPCM(f)
	}
}
