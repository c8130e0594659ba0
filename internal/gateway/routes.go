package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/soyeahso/snare/internal/channel"
	"github.com/soyeahso/snare/internal/domain"
	"github.com/soyeahso/snare/internal/honeypot"
)

// registerRoutes sets up all HTTP routes on the server mux. The health and
// banner endpoints are public; everything else requires the API key.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	mux.HandleFunc("POST /api/chat", s.requireAuth(s.handleChat))
	mux.HandleFunc("GET /api/sessions", s.requireAuth(s.handleSessionList))
	mux.HandleFunc("GET /api/sessions/{id}", s.requireAuth(s.handleSessionGet))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.requireAuth(s.handleSessionDelete))
	mux.HandleFunc("GET /api/channels", s.requireAuth(s.handleChannels))
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// chatMessage is one turn in the chat request payload.
type chatMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// chatRequest is the POST /api/chat payload.
type chatRequest struct {
	SessionID           string        `json:"sessionId"`
	Message             chatMessage   `json:"message"`
	ConversationHistory []chatMessage `json:"conversationHistory,omitempty"`
	Metadata            struct {
		Channel  string `json:"channel,omitempty"`
		Language string `json:"language,omitempty"`
		Locale   string `json:"locale,omitempty"`
	} `json:"metadata,omitempty"`
}

// chatResponse is the POST /api/chat reply.
type chatResponse struct {
	Status       string       `json:"status"`
	Reply        string       `json:"reply"`
	SessionID    string       `json:"sessionId"`
	Phase        domain.Phase `json:"phase"`
	ScamDetected bool         `json:"scamDetected"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if req.Message.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "message.text is required")
		return
	}

	in := honeypot.Inbound{
		SessionID: req.SessionID,
		Sender:    parseSender(req.Message.Sender),
		Text:      req.Message.Text,
		SentAt:    parseTimestamp(req.Message.Timestamp),
		History:   historyToMessages(req.ConversationHistory),
		Metadata: domain.Metadata{
			Channel:  req.Metadata.Channel,
			Language: req.Metadata.Language,
			Locale:   req.Metadata.Locale,
		},
	}

	out, err := s.engine.HandleMessage(r.Context(), in)
	if err != nil {
		s.log.Error().Err(err).Str("session", req.SessionID).Msg("message handling failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Status:       out.Status,
		Reply:        out.Reply,
		SessionID:    req.SessionID,
		Phase:        out.Phase,
		ScamDetected: out.Session.ScamDetected,
	})
}

func parseSender(sender string) domain.Sender {
	if sender == string(domain.SenderDefender) {
		return domain.SenderDefender
	}
	return domain.SenderScammer
}

// parseTimestamp accepts RFC 3339 timestamps and returns the zero time for
// anything else; the store stamps the receipt time regardless.
func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func historyToMessages(history []chatMessage) []domain.Message {
	if history == nil {
		return nil
	}
	msgs := make([]domain.Message, 0, len(history))
	for i, h := range history {
		msgs = append(msgs, domain.Message{
			Seq:    int64(i + 1),
			Sender: parseSender(h.Sender),
			Text:   h.Text,
			SentAt: parseTimestamp(h.Timestamp),
		})
	}
	return msgs
}

// sessionSummary is the list form of a session.
type sessionSummary struct {
	ID             string       `json:"id"`
	Phase          domain.Phase `json:"phase"`
	TotalMessages  int          `json:"totalMessages"`
	ScamDetected   bool         `json:"scamDetected"`
	ScamConfidence float64      `json:"scamConfidence"`
	IntelItems     int          `json:"intelItems"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func summarize(sess *domain.Session) sessionSummary {
	return sessionSummary{
		ID:             sess.ID,
		Phase:          sess.Phase(),
		TotalMessages:  sess.TotalMessages(),
		ScamDetected:   sess.ScamDetected,
		ScamConfidence: sess.ScamConfidence,
		IntelItems:     sess.Intelligence.Total(),
		UpdatedAt:      sess.UpdatedAt,
	}
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.engine.Store().List()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list sessions")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, summarize(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.engine.Store().Get(id)
	if err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("failed to load session")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sess == nil {
		writeJSONError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"phase":   sess.Phase(),
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.engine.Store().Delete(id)
	if err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("failed to delete session")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if s.channels == nil {
		writeJSON(w, http.StatusOK, map[string]any{"channels": []channel.Status{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": s.channels.Status()})
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	FeedClients   int     `json:"feedClients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		FeedClients:   s.feedCount(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "snare",
		"status":  "running",
		"version": s.version,
	})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
