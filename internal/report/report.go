// Package report builds and delivers the final intelligence report for a
// concluded session.
package report

import (
	"context"
	"fmt"

	"github.com/soyeahso/snare/internal/domain"
)

// Report is the final callback payload for a concluded session.
type Report struct {
	SessionID              string       `json:"sessionId"`
	ScamDetected           bool         `json:"scamDetected"`
	TotalMessagesExchanged int          `json:"totalMessagesExchanged"`
	ExtractedIntelligence  Intelligence `json:"extractedIntelligence"`
	AgentNotes             string       `json:"agentNotes"`
}

// Intelligence is the wire shape of an intelligence bundle.
type Intelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Sink delivers final reports. Delivery is best-effort: a failed delivery is
// logged by the caller and never retried.
type Sink interface {
	Deliver(ctx context.Context, rep Report) error
}

// FromSession builds the report for a session at conclusion time.
func FromSession(s *domain.Session) Report {
	b := s.Intelligence
	return Report{
		SessionID:              s.ID,
		ScamDetected:           true,
		TotalMessagesExchanged: s.TotalMessages(),
		ExtractedIntelligence: Intelligence{
			BankAccounts:       emptyNotNil(b.BankAccounts),
			UPIIDs:             emptyNotNil(b.PaymentHandles),
			PhishingLinks:      emptyNotNil(b.Links),
			PhoneNumbers:       emptyNotNil(b.PhoneNumbers),
			SuspiciousKeywords: emptyNotNil(b.Keywords),
		},
		AgentNotes: buildNotes(s),
	}
}

func buildNotes(s *domain.Session) string {
	b := s.Intelligence
	return fmt.Sprintf(
		"Session concluded after %d messages. Scam confidence: %.2f. "+
			"Intelligence extracted: %d UPI IDs, %d phone numbers, %d links.",
		s.TotalMessages(), s.ScamConfidence,
		len(b.PaymentHandles), len(b.PhoneNumbers), len(b.Links),
	)
}

// emptyNotNil keeps JSON arrays as [] rather than null.
func emptyNotNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
