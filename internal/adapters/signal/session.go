package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/realtuner/stage/internal/app"
	"github.com/realtuner/stage/internal/domain"
)

func (ctl *Controller) handleIdentify(c *WsConn, data []byte) {
	type identifyPayload struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	}
	var p identifyPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad identify payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	id := domain.ParticipantID(p.UserID)
	if err := id.Validate(); err != nil {
		ctl.sendError(c, "invalid user id")
		return
	}

	c.id = id
	state := ctl.Coord.Identify(id, c)
	ctl.sendJSON(c, app.NewStateEvent(state))
}

func (ctl *Controller) handleJoinQueue(c *WsConn, data []byte) {
	type joinPayload struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	if c.id == "" {
		ctl.sendError(c, "not identified")
		return
	}

	participant, err := ctl.Coord.JoinQueue(c.id, p.Name)
	if err != nil {
		ctl.sendError(c, joinErrorReason(err))
		return
	}
	ctl.sendJSON(c, app.NewQueueJoinedEvent(*participant))
}

func joinErrorReason(err error) string {
	switch {
	case errors.Is(err, app.ErrNotIdentified):
		return "not identified"
	case errors.Is(err, domain.ErrNameEmpty), errors.Is(err, domain.ErrNameTooLong):
		return "invalid name"
	case errors.Is(err, app.ErrAlreadyQueued):
		return "already in the queue or currently playing"
	default:
		return "join failed"
	}
}

func (ctl *Controller) handleLeaveQueue(c *WsConn) {
	if c.id == "" {
		return
	}
	ctl.Coord.LeaveQueue(c.id)
}

func (ctl *Controller) handleSkipTurn(c *WsConn) {
	if c.id == "" {
		return
	}
	ctl.Coord.SkipTurn(c.id)
}

func (ctl *Controller) handlePing(c *WsConn) {
	ctl.sendJSON(c, map[string]string{"type": "pong"})
}

// handleAudio routes one binary PCM chunk through the relay. Frames from
// connections that never identified are dropped here, frames from a
// non-current participant inside the relay.
func (ctl *Controller) handleAudio(c *WsConn, data []byte) {
	if c.id == "" {
		return
	}
	ctl.Relay.Forward(c.id, c, data)
}

func (ctl *Controller) sendError(c *WsConn, reason string) {
	ctl.sendJSON(c, app.NewErrorEvent(reason))
}
