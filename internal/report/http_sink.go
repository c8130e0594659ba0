package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soyeahso/snare/internal/logging"
)

// HTTPSink POSTs final reports as JSON to a callback URL.
type HTTPSink struct {
	url       string
	authToken string
	client    *http.Client
	log       *logging.Logger
}

// NewHTTPSink creates a sink delivering to the given URL. authToken, when
// set, is sent as a bearer token.
func NewHTTPSink(url, authToken string, timeout time.Duration, log *logging.Logger) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		url:       url,
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
		log:       log.Sub("report"),
	}
}

// Deliver sends one report. A non-2xx response is an error.
func (s *HTTPSink) Deliver(ctx context.Context, rep Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("callback returned %d: %s", resp.StatusCode, string(body))
	}

	s.log.Info().
		Str("session", rep.SessionID).
		Int("messages", rep.TotalMessagesExchanged).
		Msg("final report delivered")
	return nil
}

// LogSink logs reports instead of delivering them. Used when no callback
// URL is configured.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log.Sub("report")}
}

// Deliver logs the report and always succeeds.
func (s *LogSink) Deliver(_ context.Context, rep Report) error {
	s.log.Info().
		Str("session", rep.SessionID).
		Int("messages", rep.TotalMessagesExchanged).
		Str("notes", rep.AgentNotes).
		Msg("final report (no callback URL configured)")
	return nil
}
