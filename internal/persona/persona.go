// Package persona generates human-like decoy replies that keep a scammer
// talking while intelligence is collected. Generation is fail-soft: any
// provider failure yields a fixed filler reply.
package persona

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/snare/internal/domain"
	"github.com/soyeahso/snare/internal/llm"
	"github.com/soyeahso/snare/internal/logging"
)

// Intent selects which kind of reply to generate.
type Intent string

const (
	// IntentInitial is the first reply after scam detection.
	IntentInitial Intent = "initial"
	// IntentOngoing is a mid-engagement reply soliciting more intelligence.
	IntentOngoing Intent = "ongoing"
	// IntentNeutral is a reply to a message not (yet) classified as a scam.
	IntentNeutral Intent = "neutral"
	// IntentFinal is the closing reply before the session concludes.
	IntentFinal Intent = "final"
)

// FillerReply is returned whenever generation fails.
const FillerReply = "Sorry, I am having network issues. Can you please repeat?"

// historyWindow limits how many prior turns are replayed into the prompt.
const historyWindow = 10

// defaultProfile describes the decoy identity. %s is the persona name.
const defaultProfile = `You are roleplaying as %s, a 58-year-old bank customer from Mumbai, India.

PERSONA TRAITS:
- Middle-class Indian, not very tech-savvy
- Polite, cooperative, but slightly confused by technical terms
- Trusting of "official" communications
- Speaks in simple, conversational English with occasional Hindi words
- Makes small grammatical mistakes typical of Indian English speakers
- Takes time to understand complex instructions
- Asks clarifying questions when confused
- Occasionally mentions family (wife, children) in context

CRITICAL RULES:
1. NEVER reveal you know this is a scam
2. NEVER accuse or confront the sender
3. NEVER use perfect grammar or technical jargon
4. Act genuinely confused when appropriate
5. Show willingness to help/comply
6. Ask questions to extract more information
7. Express concern about account safety (plays into scammer narrative)
8. Occasionally make mistakes or need clarification

ENGAGEMENT STRATEGY:
- Build trust by being cooperative
- Show concern about the "issue" mentioned
- Ask questions that elicit useful information:
  * "Which bank account exactly?"
  * "What is your employee ID?"
  * "Can you send me the official link?"
  * "What number should I call?"
  * "What details do you need from me?"
- Introduce small delays ("Let me check", "One moment")
- Create believable obstacles ("My reading glasses", "Slow internet")
- Express gratitude for "help"

INFORMATION EXTRACTION GOALS:
- UPI IDs
- Phone numbers
- Bank account numbers
- Phishing links
- Names and employee IDs
- Organization details
- Modus operandi

EXAMPLE RESPONSES:
Bad: "I don't believe you. This seems like a scam."
Good: "Oh my god, really? My account will be blocked? Please tell me what I should do sir. I am not good with these computer things."

Bad: "Please provide your credentials."
Good: "Haan haan, I will give. But first you tell me, you are calling from which branch? And what is your employee ID number?"

Respond naturally as %s would, staying in character at all times.`

// Responder generates persona replies via an LLM client.
type Responder struct {
	client  llm.Client
	name    string
	profile string
	timeout time.Duration
	log     *logging.Logger
}

// New creates a Responder. profile overrides the built-in persona
// description when non-empty.
func New(client llm.Client, name, profile string, timeout time.Duration, log *logging.Logger) *Responder {
	if name == "" {
		name = "Ramesh Kumar"
	}
	if profile == "" {
		profile = fmt.Sprintf(defaultProfile, name, name)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Responder{
		client:  client,
		name:    name,
		profile: profile,
		timeout: timeout,
		log:     log.Sub("persona"),
	}
}

// Name returns the persona display name.
func (r *Responder) Name() string { return r.name }

// Respond generates a reply for the given intent. latest is the newest
// scammer message; history is the full conversation so far. Respond never
// returns an error: failures produce FillerReply.
func (r *Responder) Respond(ctx context.Context, intent Intent, latest string, history []domain.Message, meta domain.Metadata) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	meta = meta.WithDefaults()

	system := r.profile
	if intent == IntentNeutral {
		system = "You are a helpful assistant."
	}

	temp := 0.8
	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: r.buildPrompt(intent, latest, history, meta)}},
		MaxTokens:   200,
		Temperature: &temp,
	})
	if err != nil || resp.Content == "" {
		if err != nil {
			r.log.Warn().Err(err).Str("intent", string(intent)).Msg("generation failed, using filler reply")
		}
		return FillerReply
	}
	return resp.Content
}

func (r *Responder) buildPrompt(intent Intent, latest string, history []domain.Message, meta domain.Metadata) string {
	switch intent {
	case IntentInitial:
		return fmt.Sprintf(`The scammer just sent this message:
%q

This is your FIRST response. Show concern and willingness to help, but also ask a clarifying question to extract more information. Keep it brief (2-3 sentences).

Channel: %s`, latest, meta.Channel)

	case IntentNeutral:
		return fmt.Sprintf(`You are responding as a regular Indian person to a message that might or might not be a scam.

Message: %q

Respond naturally and briefly (1-2 sentences). Be polite but don't give away any sensitive information. If it's a greeting, greet back. If it's a question, answer normally.`, latest)

	case IntentFinal:
		var sb strings.Builder
		sb.WriteString("Conversation history:\n\n")
		r.writeHistory(&sb, history, false)
		sb.WriteString("\n\nThis will be your FINAL message in this conversation. Politely end the conversation with a believable excuse (need to go, will call later, need to check with family, etc.). Stay in character as ")
		sb.WriteString(r.name)
		sb.WriteString(". Keep it brief (1-2 sentences).")
		return sb.String()

	default: // IntentOngoing
		var sb strings.Builder
		sb.WriteString("Conversation so far:\n\n")
		r.writeHistory(&sb, history, true)
		fmt.Fprintf(&sb, "\n\nChannel: %s\n", meta.Channel)
		fmt.Fprintf(&sb, "\nGenerate your next response as %s. Try to extract more specific information (phone numbers, UPI IDs, links, account details, names). Keep responses natural and believable (2-4 sentences).", r.name)
		return sb.String()
	}
}

// writeHistory appends the most recent turns. When labelSelf is set the
// defender turns are labelled with the persona name.
func (r *Responder) writeHistory(sb *strings.Builder, history []domain.Message, labelSelf bool) {
	start := len(history) - historyWindow
	if start < 0 {
		start = 0
	}
	for _, m := range history[start:] {
		switch {
		case m.Sender == domain.SenderScammer:
			fmt.Fprintf(sb, "Scammer: %s\n", m.Text)
		case labelSelf:
			fmt.Fprintf(sb, "You (%s): %s\n", r.name, m.Text)
		default:
			fmt.Fprintf(sb, "%s: %s\n", m.Sender, m.Text)
		}
	}
}
