package honeypot

import (
	"github.com/soyeahso/snare/internal/detector"
	"github.com/soyeahso/snare/internal/domain"
)

// Policy controls when the agent engages and when a session concludes.
type Policy struct {
	// DetectionThreshold is the classifier confidence that must be exceeded
	// (strictly) before the agent engages.
	DetectionThreshold float64

	// EngagementFloor is the minimum number of post-engagement messages
	// before any conclusion is considered.
	EngagementFloor int

	// MessageCeiling is the total conversation length at which the session
	// concludes regardless of what was extracted.
	MessageCeiling int
}

// DefaultPolicy returns the standard engagement policy.
func DefaultPolicy() Policy {
	return Policy{
		DetectionThreshold: 0.7,
		EngagementFloor:    8,
		MessageCeiling:     15,
	}
}

// ShouldEngage reports whether a verdict warrants engaging the persona.
// The threshold is strict, so a confidence exactly at the threshold does
// not engage.
func (p Policy) ShouldEngage(v detector.Verdict) bool {
	return v.IsScam && v.Confidence > p.DetectionThreshold
}

// ShouldConclude evaluates the exit conditions for an engaged session.
// Conclusion is sticky: a concluded session stays concluded. Otherwise the
// engagement floor must be met, after which either high-value intelligence
// or the message ceiling ends the session.
func (p Policy) ShouldConclude(s *domain.Session, highValue bool) bool {
	if s.Concluded {
		return true
	}
	if !s.AgentEngaged {
		return false
	}
	if s.PostEngagementMessages() < p.EngagementFloor {
		return false
	}
	return highValue || s.TotalMessages() >= p.MessageCeiling
}
