// Package detector classifies inbound messages as scam attempts using an
// LLM provider. Classification is fail-soft: provider or parse failures
// yield a negative verdict, never an error.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/snare/internal/domain"
	"github.com/soyeahso/snare/internal/llm"
	"github.com/soyeahso/snare/internal/logging"
)

// systemPrompt primes the classifier on Indian scam patterns and pins the
// expected JSON output shape.
const systemPrompt = `You are an expert scam detection AI system specializing in Indian scam patterns.

Analyze the given message and conversation history to determine if it's a scam attempt.

COMMON INDIAN SCAM PATTERNS:
- Fake KYC update requests (banking, telecom, government)
- Prize/lottery winning notifications
- Fake delivery/courier messages
- Urgent account blocking threats
- OTP/PIN requests
- Tax refund scams
- Job offer scams requiring payment
- Investment/trading scams promising high returns
- Loan approval scams requiring advance fees
- Digital arrest scams (impersonating police/CBI)
- Aadhaar/PAN update scams
- Insurance maturity scams

SCAM INDICATORS:
1. Urgency ("immediately", "within 24 hours", "account will be blocked")
2. Requests for sensitive info (OTP, PIN, CVV, password, Aadhaar number)
3. Unsolicited offers (prizes, loans, jobs)
4. Threats (legal action, account suspension, arrest)
5. Suspicious links or APK downloads
6. Impersonation of banks, government, courier services
7. Requests for payment/transfer
8. Grammatical errors, poor language
9. Unknown sender claiming to be from known organization

Respond ONLY with a JSON object:
{
  "is_scam": true/false,
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation",
  "scam_type": "KYC|Prize|Delivery|Threat|Financial|Other|None"
}`

// historyWindow limits how many prior messages are included in the
// classification context.
const historyWindow = 5

// Verdict is the structured classification result.
type Verdict struct {
	IsScam     bool    `json:"is_scam"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	ScamType   string  `json:"scam_type,omitempty"`
}

// Detector classifies messages via an LLM client.
type Detector struct {
	client  llm.Client
	timeout time.Duration
	log     *logging.Logger
}

// New creates a Detector. timeout bounds each classification call.
func New(client llm.Client, timeout time.Duration, log *logging.Logger) *Detector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Detector{
		client:  client,
		timeout: timeout,
		log:     log.Sub("detector"),
	}
}

// Classify evaluates a message in the context of its conversation. It never
// returns an error: any provider failure produces the conservative verdict
// (not a scam, zero confidence).
func (d *Detector) Classify(ctx context.Context, text string, history []domain.Message, meta domain.Metadata) Verdict {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	temp := 0.3
	resp, err := d.client.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildContext(text, history, meta)}},
		MaxTokens:   500,
		Temperature: &temp,
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("classification failed, assuming not a scam")
		return Verdict{ScamType: "None"}
	}

	return ParseVerdict(resp.Content)
}

// buildContext assembles the classification prompt: channel metadata, a
// window of prior messages, and the message under analysis.
func buildContext(text string, history []domain.Message, meta domain.Metadata) string {
	meta = meta.WithDefaults()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Channel: %s\n", meta.Channel)
	fmt.Fprintf(&sb, "Language: %s\n", meta.Language)
	fmt.Fprintf(&sb, "Locale: %s\n\n", meta.Locale)

	if len(history) > 0 {
		sb.WriteString("Previous messages:\n")
		start := len(history) - historyWindow
		if start < 0 {
			start = 0
		}
		for _, m := range history[start:] {
			fmt.Fprintf(&sb, "%s: %s\n", m.Sender, m.Text)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Current message to analyze:\n%s", text)
	return sb.String()
}

// ParseVerdict leniently parses the classifier's free-text output into a
// Verdict. It tolerates markdown code fences and prose around the JSON
// object; anything unparseable falls back to a negative verdict.
func ParseVerdict(raw string) Verdict {
	fallback := Verdict{Reasoning: "Could not parse response", ScamType: "None"}

	content := stripFences(raw)

	obj, ok := firstJSONObject(content)
	if !ok {
		return fallback
	}

	var v Verdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return fallback
	}
	return v
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	if i := strings.Index(s, "```json"); i != -1 {
		rest := s[i+len("```json"):]
		if j := strings.Index(rest, "```"); j != -1 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	if i := strings.Index(s, "```"); i != -1 {
		rest := s[i+3:]
		if j := strings.Index(rest, "```"); j != -1 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	return s
}

// firstJSONObject extracts the first balanced {...} block from s.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
