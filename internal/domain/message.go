package domain

import "time"

// Sender identifies which side of the conversation authored a turn.
type Sender string

const (
	SenderScammer  Sender = "scammer"
	SenderDefender Sender = "defender"
)

// Message is a single turn in a session conversation.
type Message struct {
	// Seq is a strictly monotonic per-session counter assigned at append
	// time, starting at 1.
	Seq        int64     `json:"seq"`
	Sender     Sender    `json:"sender"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Metadata carries channel context attached to an inbound message.
type Metadata struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// WithDefaults fills unset metadata fields.
func (m Metadata) WithDefaults() Metadata {
	if m.Channel == "" {
		m.Channel = "Chat"
	}
	if m.Language == "" {
		m.Language = "English"
	}
	if m.Locale == "" {
		m.Locale = "IN"
	}
	return m
}
