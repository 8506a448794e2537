package domain

// SessionState is the one shared aggregate: the waiting queue, whoever
// holds the stage right now, and the countdown for their turn.
// Mutated only by the app coordinator under its lock.
type SessionState struct {
	Queue          []Participant `json:"queue"`
	Current        *Participant  `json:"current"`
	TimeLeft       int           `json:"timeLeft"`
	CompletedTurns int           `json:"completedTurns"`
	Active         bool          `json:"active"`
}

func NewSessionState() *SessionState {
	return &SessionState{Queue: []Participant{}}
}

// Clone returns a deep copy safe to hand outside the lock.
func (s *SessionState) Clone() SessionState {
	out := *s
	out.Queue = make([]Participant, len(s.Queue))
	copy(out.Queue, s.Queue)
	if s.Current != nil {
		cur := *s.Current
		out.Current = &cur
	}
	return out
}

// Queued reports whether id is waiting in the queue.
func (s *SessionState) Queued(id ParticipantID) bool {
	for _, p := range s.Queue {
		if p.ID == id {
			return true
		}
	}
	return false
}

// IsCurrent reports whether id holds the stage.
func (s *SessionState) IsCurrent(id ParticipantID) bool {
	return s.Current != nil && s.Current.ID == id
}

// Normalize repairs a state loaded from storage so the in-memory
// invariants hold: no duplicate queue ids, the current participant is
// never also queued, and an empty stage means an idle session.
func (s *SessionState) Normalize() {
	if s.Queue == nil {
		s.Queue = []Participant{}
	}
	seen := make(map[ParticipantID]struct{}, len(s.Queue))
	if s.Current != nil {
		seen[s.Current.ID] = struct{}{}
	}
	queue := s.Queue[:0]
	for _, p := range s.Queue {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		queue = append(queue, p)
	}
	s.Queue = queue

	if s.Current == nil {
		s.TimeLeft = 0
		s.Active = false
		return
	}
	s.Active = true
	if s.TimeLeft < 0 {
		s.TimeLeft = 0
	}
	if s.CompletedTurns < 0 {
		s.CompletedTurns = 0
	}
}
