// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxParticipantIDLen = 64
	MaxNameLen          = 30
)

var (
	ErrIDEmpty     = errors.New("participant id empty")
	ErrIDTooLong   = errors.New("participant id too long")
	ErrNameEmpty   = errors.New("name empty")
	ErrNameTooLong = errors.New("name too long")
)

// ParticipantID is a stable, client-generated identity.
// It survives reconnects; the transport connection does not.
type ParticipantID string

func (id ParticipantID) Validate() error {
	if id == "" {
		return ErrIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrIDTooLong
	}
	return nil
}

type Participant struct {
	ID       ParticipantID `json:"id"`
	Name     string        `json:"name"`
	JoinedAt time.Time     `json:"joinedAt"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(id ParticipantID, name string) (*Participant, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &Participant{ID: id, Name: name, JoinedAt: time.Now().UTC()}, nil
}
