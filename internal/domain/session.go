package domain

import "time"

// Phase describes where a session sits in its lifecycle.
type Phase string

const (
	PhaseUndetected Phase = "undetected"
	PhaseEngaging   Phase = "engaging"
	PhaseConcluding Phase = "concluding"
	PhaseClosed     Phase = "closed"
)

// Session tracks one conversation with a suspected scammer. The session id is
// an opaque caller-supplied string; all lifecycle flags are one-way.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages,omitempty"`

	ScamDetected   bool      `json:"scamDetected"`
	ScamConfidence float64   `json:"scamConfidence"`
	DetectedAt     time.Time `json:"detectedAt,omitzero"`

	AgentEngaged bool      `json:"agentEngaged"`
	EngagedAt    time.Time `json:"engagedAt,omitzero"`
	// EngagedSeq is the sequence number of the first message counted as
	// post-engagement. Sequence comparison is used instead of receipt
	// timestamps so equal-timestamp messages cannot skew the count.
	EngagedSeq int64 `json:"engagedSeq,omitempty"`

	Concluded   bool      `json:"concluded"`
	ConcludedAt time.Time `json:"concludedAt,omitzero"`

	CallbackSent   bool      `json:"callbackSent"`
	CallbackSentAt time.Time `json:"callbackSentAt,omitzero"`

	Intelligence Bundle `json:"intelligence"`
}

// Phase derives the lifecycle phase from the session flags.
func (s *Session) Phase() Phase {
	switch {
	case s.Concluded && s.CallbackSent:
		return PhaseClosed
	case s.Concluded:
		return PhaseConcluding
	case s.AgentEngaged:
		return PhaseEngaging
	default:
		return PhaseUndetected
	}
}

// TotalMessages returns the full conversation length, both directions.
func (s *Session) TotalMessages() int { return len(s.Messages) }

// PostEngagementMessages counts messages received at or after the engagement
// point. Zero when the agent has not engaged.
func (s *Session) PostEngagementMessages() int {
	if !s.AgentEngaged {
		return 0
	}
	n := 0
	for _, m := range s.Messages {
		if m.Seq >= s.EngagedSeq {
			n++
		}
	}
	return n
}

// LastSeq returns the highest assigned message sequence number, 0 when empty.
func (s *Session) LastSeq() int64 {
	if len(s.Messages) == 0 {
		return 0
	}
	return s.Messages[len(s.Messages)-1].Seq
}

// Clone returns a deep copy so store snapshots cannot be mutated by callers.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	cp.Intelligence = s.Intelligence.Clone()
	return &cp
}
