package honeypot

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/snare/internal/detector"
	"github.com/soyeahso/snare/internal/domain"
	"github.com/soyeahso/snare/internal/hooks"
	"github.com/soyeahso/snare/internal/logging"
	"github.com/soyeahso/snare/internal/persona"
	"github.com/soyeahso/snare/internal/report"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

type scriptClassifier struct {
	mu          sync.Mutex
	verdict     detector.Verdict
	calls       int
	lastHistory []domain.Message
}

func (c *scriptClassifier) Classify(_ context.Context, _ string, history []domain.Message, _ domain.Metadata) detector.Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastHistory = history
	return c.verdict
}

type scriptResponder struct {
	mu      sync.Mutex
	intents []persona.Intent
}

func (r *scriptResponder) Respond(_ context.Context, intent persona.Intent, _ string, _ []domain.Message, _ domain.Metadata) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
	return "reply:" + string(intent)
}

func (r *scriptResponder) Name() string { return "Ramesh Kumar" }

func (r *scriptResponder) last() persona.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.intents) == 0 {
		return ""
	}
	return r.intents[len(r.intents)-1]
}

type captureSink struct {
	mu      sync.Mutex
	reports []report.Report
	err     error
}

func (s *captureSink) Deliver(_ context.Context, rep report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, rep)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

type engineFixture struct {
	engine     *Engine
	store      *MemorySessionStore
	classifier *scriptClassifier
	responder  *scriptResponder
	sink       *captureSink
	hooks      *hooks.Manager
}

func newFixture(verdict detector.Verdict) *engineFixture {
	f := &engineFixture{
		store:      NewMemorySessionStore(),
		classifier: &scriptClassifier{verdict: verdict},
		responder:  &scriptResponder{},
		sink:       &captureSink{},
		hooks:      hooks.NewManager(testLogger()),
	}
	f.engine = NewEngine(f.store, f.classifier, f.responder, f.sink, DefaultPolicy(), f.hooks, testLogger())
	return f
}

func (f *engineFixture) post(t *testing.T, text string) Outcome {
	t.Helper()
	out, err := f.engine.HandleMessage(context.Background(), Inbound{
		SessionID: "s1",
		Text:      text,
	})
	require.NoError(t, err)
	return out
}

func TestLowConfidenceStaysNeutral(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.65})

	out := f.post(t, "Your KYC needs updating, click here")

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "reply:neutral", out.Reply)
	assert.Equal(t, domain.PhaseUndetected, out.Phase)
	assert.False(t, out.Session.AgentEngaged)
	assert.False(t, out.Session.ScamDetected)
}

func TestHighConfidenceEngages(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.85, ScamType: "Phishing"})

	out := f.post(t, "Your account will be blocked! Verify now")

	assert.Equal(t, "reply:initial", out.Reply)
	assert.Equal(t, domain.PhaseEngaging, out.Phase)
	assert.True(t, out.Session.AgentEngaged)
	assert.True(t, out.Session.ScamDetected)
	assert.Equal(t, 0.85, out.Session.ScamConfidence)
	assert.Equal(t, int64(2), out.Session.EngagedSeq)
}

func TestNotScamStaysNeutral(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: false, Confidence: 0.95})

	out := f.post(t, "Hi, lunch tomorrow?")
	assert.Equal(t, "reply:neutral", out.Reply)
	assert.False(t, out.Session.AgentEngaged)
}

func TestNoExtractionOnDetectionTurn(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.9})

	out := f.post(t, "Send money to victim@paytm or your account is blocked")

	assert.True(t, out.Session.AgentEngaged)
	assert.True(t, out.Session.Intelligence.Empty())
}

func TestOngoingTurnExtractsFromLatestMessage(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.9})

	f.post(t, "Your account is suspended, verify immediately")
	out := f.post(t, "Pay the fee to 9876543210@paytm right now")

	assert.Equal(t, "reply:ongoing", out.Reply)
	assert.Equal(t, []string{"9876543210@paytm"}, out.Session.Intelligence.PaymentHandles)
	// Classifier runs only on the pre-engagement message.
	assert.Equal(t, 1, f.classifier.calls)
}

func TestConcludeOnHighValueAfterFloor(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.9})

	f.post(t, "Your KYC is expiring, act now")
	var out Outcome
	for i := 0; i < 8; i++ {
		out = f.post(t, fmt.Sprintf("Transfer to 9876543210@paytm, message %d", i))
	}
	// 7 post-engagement messages processed in the loop body before the 8th;
	// intelligence was already high value, so the 8th post-engagement message
	// trips the floor.
	assert.Equal(t, "reply:final", out.Reply)
	assert.True(t, out.Session.Concluded)
	assert.Equal(t, persona.IntentFinal, f.responder.last())

	f.engine.Wait()
	assert.Equal(t, 1, f.sink.count())

	sess, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.True(t, sess.CallbackSent)
	assert.Equal(t, domain.PhaseClosed, sess.Phase())
}

func TestNoConclusionBelowFloorDespiteHighValue(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.9})

	f.post(t, "Urgent: your account is blocked")
	var out Outcome
	for i := 0; i < 7; i++ {
		out = f.post(t, "Send to scammer@ybl immediately")
	}

	assert.Equal(t, "reply:ongoing", out.Reply)
	assert.False(t, out.Session.Concluded)
	f.engine.Wait()
	assert.Equal(t, 0, f.sink.count())
}

func TestConcludeAtCeilingWithoutHighValue(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.9})

	f.post(t, "You won a lottery prize!")
	var out Outcome
	for i := 0; i < 14; i++ {
		out = f.post(t, "just checking in again")
	}

	// Message 15 in total: floor long met, ceiling reached.
	assert.Equal(t, "reply:final", out.Reply)
	assert.True(t, out.Session.Concluded)
	assert.Equal(t, 15, out.Session.TotalMessages())

	f.engine.Wait()
	assert.Equal(t, 1, f.sink.count())
}

func TestConclusionIsStickyAndReportsOnce(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.9})

	f.post(t, "Pay custom duty for your parcel")
	for i := 0; i < 8; i++ {
		f.post(t, "UPI is 9876543210@paytm")
	}
	f.engine.Wait()

	out := f.post(t, "Hello? Are you sending the money?")
	assert.Equal(t, "reply:final", out.Reply)
	assert.True(t, out.Session.Concluded)

	f.engine.Wait()
	assert.Equal(t, 1, f.sink.count())
}

func TestReportFailureLeavesCallbackUnsent(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.9})
	f.sink.err = fmt.Errorf("callback endpoint down")

	f.post(t, "Your electricity will be cut, pay now")
	for i := 0; i < 8; i++ {
		f.post(t, "Account 123456789012345 at hdfc")
	}
	f.engine.Wait()

	sess, err := f.store.Get("s1")
	require.NoError(t, err)
	assert.True(t, sess.Concluded)
	assert.False(t, sess.CallbackSent)
	assert.Equal(t, domain.PhaseConcluding, sess.Phase())
	assert.Equal(t, 0, f.sink.count())
}

func TestReportContent(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.88})

	f.post(t, "RBI notice: verify your account")
	for i := 0; i < 8; i++ {
		f.post(t, "Send fee to 9876543210@paytm and call +91 98765 43210")
	}
	f.engine.Wait()

	require.Equal(t, 1, f.sink.count())
	rep := f.sink.reports[0]
	assert.Equal(t, "s1", rep.SessionID)
	assert.True(t, rep.ScamDetected)
	assert.Equal(t, 9, rep.TotalMessagesExchanged)
	assert.Equal(t, []string{"9876543210@paytm"}, rep.ExtractedIntelligence.UPIIDs)
	assert.Equal(t, []string{"9876543210"}, rep.ExtractedIntelligence.PhoneNumbers)
	assert.Contains(t, rep.AgentNotes, "Scam confidence: 0.88")
}

func TestCallerHistoryOverridesStoredLog(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: false})

	supplied := []domain.Message{
		{Seq: 1, Sender: domain.SenderScammer, Text: "earlier turn one"},
		{Seq: 2, Sender: domain.SenderDefender, Text: "earlier turn two"},
	}
	_, err := f.engine.HandleMessage(context.Background(), Inbound{
		SessionID: "s1",
		Text:      "hello again",
		History:   supplied,
	})
	require.NoError(t, err)

	assert.Len(t, f.classifier.lastHistory, 2)
	assert.Equal(t, "earlier turn one", f.classifier.lastHistory[0].Text)
}

func TestLifecycleHooksFire(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.9})

	var mu sync.Mutex
	events := map[string]int{}
	f.hooks.OnAll("probe", func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		events[p.Event]++
		mu.Unlock()
		return nil
	})

	f.post(t, "Your PAN card is blocked, verify now")
	for i := 0; i < 8; i++ {
		f.post(t, "Pay to 9876543210@paytm")
	}
	f.engine.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, events[hooks.EventSessionStart])
	assert.Equal(t, 9, events[hooks.EventMessageReceived])
	assert.Equal(t, 1, events[hooks.EventScamDetected])
	assert.GreaterOrEqual(t, events[hooks.EventIntelligenceExtracted], 1)
	assert.Equal(t, 1, events[hooks.EventSessionConcluded])
	assert.Equal(t, 1, events[hooks.EventReportSent])
}

func TestSessionsAreIndependent(t *testing.T) {
	f := newFixture(detector.Verdict{IsScam: true, Confidence: 0.9})

	outA, err := f.engine.HandleMessage(context.Background(), Inbound{SessionID: "a", Text: "verify your account now"})
	require.NoError(t, err)
	f.classifier.verdict = detector.Verdict{IsScam: false}
	outB, err := f.engine.HandleMessage(context.Background(), Inbound{SessionID: "b", Text: "hello"})
	require.NoError(t, err)

	assert.True(t, outA.Session.AgentEngaged)
	assert.False(t, outB.Session.AgentEngaged)
}
