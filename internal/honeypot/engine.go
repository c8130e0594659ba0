// Package honeypot orchestrates the scam honeypot lifecycle: classification
// of inbound messages, persona engagement, intelligence accumulation, and
// conclusion with a final report.
package honeypot

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/snare/internal/detector"
	"github.com/soyeahso/snare/internal/domain"
	"github.com/soyeahso/snare/internal/hooks"
	"github.com/soyeahso/snare/internal/intel"
	"github.com/soyeahso/snare/internal/logging"
	"github.com/soyeahso/snare/internal/persona"
	"github.com/soyeahso/snare/internal/report"
)

// Classifier decides whether a message is part of a scam.
type Classifier interface {
	Classify(ctx context.Context, text string, history []domain.Message, meta domain.Metadata) detector.Verdict
}

// Responder generates persona replies.
type Responder interface {
	Respond(ctx context.Context, intent persona.Intent, latest string, history []domain.Message, meta domain.Metadata) string
	Name() string
}

// Inbound is one message handed to the engine.
type Inbound struct {
	SessionID string
	Sender    domain.Sender
	Text      string
	SentAt    time.Time

	// History, when non-nil, replaces the stored conversation as classifier
	// and responder context. Callers that keep their own transcript (the API
	// accepts one) pass it here; channel adapters leave it nil.
	History  []domain.Message
	Metadata domain.Metadata
}

// Outcome is the engine's response to an inbound message.
type Outcome struct {
	Status  string          `json:"status"`
	Reply   string          `json:"reply"`
	Phase   domain.Phase    `json:"phase"`
	Session *domain.Session `json:"-"`
}

// StatusSuccess is the status of every processed message.
const StatusSuccess = "success"

// Engine drives sessions through the honeypot lifecycle.
type Engine struct {
	store      SessionStore
	classifier Classifier
	responder  Responder
	sink       report.Sink
	policy     Policy
	hooks      *hooks.Manager
	log        *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	reports sync.WaitGroup
}

// NewEngine wires an engine from its collaborators.
func NewEngine(store SessionStore, classifier Classifier, responder Responder, sink report.Sink, policy Policy, hookMgr *hooks.Manager, log *logging.Logger) *Engine {
	return &Engine{
		store:      store,
		classifier: classifier,
		responder:  responder,
		sink:       sink,
		policy:     policy,
		hooks:      hookMgr,
		log:        log.Sub("honeypot"),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Store exposes the session store for read-side consumers.
func (e *Engine) Store() SessionStore { return e.store }

// Wait blocks until all in-flight report deliveries finish.
func (e *Engine) Wait() { e.reports.Wait() }

// sessionLock serializes message handling per session. Distinct sessions
// proceed concurrently.
func (e *Engine) sessionLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// HandleMessage processes one inbound message and returns the persona reply.
// Replies are not appended to the session log; only posted inbound messages
// count toward the conversation totals.
func (e *Engine) HandleMessage(ctx context.Context, in Inbound) (Outcome, error) {
	lock := e.sessionLock(in.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if in.Sender == "" {
		in.Sender = domain.SenderScammer
	}
	meta := in.Metadata.WithDefaults()

	sess, created, err := e.store.GetOrCreate(in.SessionID)
	if err != nil {
		return Outcome{}, err
	}
	if created {
		e.log.Info().Str("session", in.SessionID).Str("channel", meta.Channel).Msg("session started")
		e.hooks.Emit(ctx, hooks.EventSessionStart, map[string]any{
			"session": in.SessionID,
			"channel": meta.Channel,
		})
	}

	history := in.History
	if history == nil {
		history = sess.Messages
	}

	msg := domain.Message{
		Sender: in.Sender,
		Text:   in.Text,
		SentAt: in.SentAt,
	}
	if _, err := e.store.Append(in.SessionID, msg); err != nil {
		return Outcome{}, err
	}
	e.hooks.Emit(ctx, hooks.EventMessageReceived, map[string]any{
		"session": in.SessionID,
		"sender":  string(in.Sender),
	})

	var reply string
	if !sess.AgentEngaged {
		reply, err = e.handleUndetected(ctx, in, history, meta)
	} else {
		reply, err = e.handleEngaged(ctx, in, history, meta)
	}
	if err != nil {
		return Outcome{}, err
	}

	snap, err := e.store.Get(in.SessionID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Status:  StatusSuccess,
		Reply:   reply,
		Phase:   snap.Phase(),
		Session: snap,
	}, nil
}

// handleUndetected classifies the message and, on a confident scam verdict,
// engages the persona. No intelligence is extracted on the detection turn.
func (e *Engine) handleUndetected(ctx context.Context, in Inbound, history []domain.Message, meta domain.Metadata) (string, error) {
	verdict := e.classifier.Classify(ctx, in.Text, history, meta)

	if !e.policy.ShouldEngage(verdict) {
		e.log.Debug().
			Str("session", in.SessionID).
			Bool("isScam", verdict.IsScam).
			Float64("confidence", verdict.Confidence).
			Msg("message below engagement threshold")
		return e.responder.Respond(ctx, persona.IntentNeutral, in.Text, history, meta), nil
	}

	if err := e.store.MarkDetected(in.SessionID, verdict.Confidence); err != nil {
		return "", err
	}
	if err := e.store.Engage(in.SessionID); err != nil {
		return "", err
	}
	e.log.Info().
		Str("session", in.SessionID).
		Float64("confidence", verdict.Confidence).
		Str("scamType", verdict.ScamType).
		Msg("scam detected, persona engaged")
	e.hooks.Emit(ctx, hooks.EventScamDetected, map[string]any{
		"session":    in.SessionID,
		"confidence": verdict.Confidence,
		"scamType":   verdict.ScamType,
	})

	return e.responder.Respond(ctx, persona.IntentInitial, in.Text, history, meta), nil
}

// handleEngaged evaluates the exit conditions first. If the session should
// conclude it sends the closing reply and dispatches the report exactly once.
// Otherwise it keeps the scammer talking and harvests the latest message.
func (e *Engine) handleEngaged(ctx context.Context, in Inbound, history []domain.Message, meta domain.Metadata) (string, error) {
	sess, err := e.store.Get(in.SessionID)
	if err != nil {
		return "", err
	}

	if e.policy.ShouldConclude(sess, intel.HighValue(sess.Intelligence)) {
		reply := e.responder.Respond(ctx, persona.IntentFinal, in.Text, history, meta)
		if !sess.Concluded {
			if err := e.store.MarkConcluded(in.SessionID); err != nil {
				return "", err
			}
			e.log.Info().
				Str("session", in.SessionID).
				Int("messages", sess.TotalMessages()).
				Msg("session concluded")
			e.hooks.Emit(ctx, hooks.EventSessionConcluded, map[string]any{
				"session": in.SessionID,
			})
			e.dispatchReport(in.SessionID)
		}
		return reply, nil
	}

	reply := e.responder.Respond(ctx, persona.IntentOngoing, in.Text, history, meta)

	if bundle := intel.FromMessage(in.Text); !bundle.Empty() {
		merged, err := e.store.MergeIntelligence(in.SessionID, bundle)
		if err != nil {
			return "", err
		}
		e.log.Info().
			Str("session", in.SessionID).
			Int("extracted", bundle.Total()).
			Int("total", merged.Total()).
			Msg("intelligence extracted")
		e.hooks.Emit(ctx, hooks.EventIntelligenceExtracted, map[string]any{
			"session":   in.SessionID,
			"extracted": bundle.Total(),
			"total":     merged.Total(),
		})
	}
	return reply, nil
}

// dispatchReport delivers the final report in the background. Delivery is
// best-effort: on failure the error is logged, the callback flag stays
// unset, and no retry is attempted.
func (e *Engine) dispatchReport(sessionID string) {
	e.reports.Add(1)
	go func() {
		defer e.reports.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sess, err := e.store.Get(sessionID)
		if err != nil || sess == nil {
			e.log.Error().Err(err).Str("session", sessionID).Msg("report skipped, session unavailable")
			return
		}

		rep := report.FromSession(sess)
		if err := e.sink.Deliver(ctx, rep); err != nil {
			e.log.Error().Err(err).Str("session", sessionID).Msg("report delivery failed")
			return
		}
		if err := e.store.MarkCallbackSent(sessionID); err != nil {
			e.log.Error().Err(err).Str("session", sessionID).Msg("failed to record callback")
			return
		}
		e.hooks.Emit(ctx, hooks.EventReportSent, map[string]any{
			"session": sessionID,
		})
	}()
}
