package persona

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/snare/internal/domain"
	"github.com/soyeahso/snare/internal/llm"
	"github.com/soyeahso/snare/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func captureResponder(t *testing.T, reply string) (*Responder, *llm.CompletionRequest) {
	t.Helper()
	var captured llm.CompletionRequest
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			captured = req
			return &llm.CompletionResponse{Content: reply}, nil
		},
	}
	return New(client, "", "", 5*time.Second, testLogger()), &captured
}

func TestRespondInitial(t *testing.T) {
	r, captured := captureResponder(t, "Oh no, blocked? What should I do sir?")

	got := r.Respond(context.Background(), IntentInitial, "Your account will be blocked today!", nil, domain.Metadata{})
	assert.Equal(t, "Oh no, blocked? What should I do sir?", got)

	assert.Contains(t, captured.System, "Ramesh Kumar")
	assert.Contains(t, captured.Messages[0].Content, "FIRST response")
	assert.Contains(t, captured.Messages[0].Content, "Your account will be blocked today!")
}

func TestRespondNeutralUsesPlainSystemPrompt(t *testing.T) {
	r, captured := captureResponder(t, "Hello, who is this?")

	got := r.Respond(context.Background(), IntentNeutral, "hi", nil, domain.Metadata{})
	assert.Equal(t, "Hello, who is this?", got)

	assert.Equal(t, "You are a helpful assistant.", captured.System)
	assert.NotContains(t, captured.Messages[0].Content, "FIRST response")
}

func TestRespondOngoingIncludesHistoryWindow(t *testing.T) {
	r, captured := captureResponder(t, "Which branch you are calling from?")

	history := make([]domain.Message, 12)
	for i := range history {
		sender := domain.SenderScammer
		if i%2 == 1 {
			sender = domain.SenderDefender
		}
		history[i] = domain.Message{Seq: int64(i + 1), Sender: sender, Text: string(rune('a' + i))}
	}

	r.Respond(context.Background(), IntentOngoing, "", history, domain.Metadata{})

	prompt := captured.Messages[0].Content
	assert.Contains(t, prompt, "Scammer: c")
	assert.NotContains(t, prompt, "Scammer: a", "only the last 10 turns are replayed")
	assert.Contains(t, prompt, "You (Ramesh Kumar):")
	assert.Contains(t, prompt, "extract more specific information")
}

func TestRespondFinal(t *testing.T) {
	r, captured := captureResponder(t, "Sorry sir, my wife is calling, I will message later.")

	history := []domain.Message{
		{Seq: 1, Sender: domain.SenderScammer, Text: "send otp"},
	}
	got := r.Respond(context.Background(), IntentFinal, "", history, domain.Metadata{})
	require.NotEmpty(t, got)

	assert.Contains(t, captured.Messages[0].Content, "FINAL message")
	assert.Contains(t, captured.Messages[0].Content, "believable excuse")
}

func TestRespondFailSoft(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, errors.New("provider down")
		},
	}
	r := New(client, "", "", 5*time.Second, testLogger())

	got := r.Respond(context.Background(), IntentOngoing, "", nil, domain.Metadata{})
	assert.Equal(t, FillerReply, got)
}

func TestRespondEmptyContentFallsBack(t *testing.T) {
	r, _ := captureResponder(t, "")
	got := r.Respond(context.Background(), IntentInitial, "hello", nil, domain.Metadata{})
	assert.Equal(t, FillerReply, got)
}

func TestCustomPersonaName(t *testing.T) {
	var captured llm.CompletionRequest
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			captured = req
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	r := New(client, "Sunita Devi", "", 5*time.Second, testLogger())
	assert.Equal(t, "Sunita Devi", r.Name())

	r.Respond(context.Background(), IntentOngoing, "", nil, domain.Metadata{})
	assert.Contains(t, captured.System, "Sunita Devi")
	assert.Contains(t, captured.Messages[0].Content, "Generate your next response as Sunita Devi")
}
