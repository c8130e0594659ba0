// Package gateway exposes the honeypot over HTTP: a REST API for message
// ingestion and session inspection, plus a WebSocket feed of lifecycle
// events for monitoring.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/snare/internal/channel"
	"github.com/soyeahso/snare/internal/config"
	"github.com/soyeahso/snare/internal/honeypot"
	"github.com/soyeahso/snare/internal/hooks"
	"github.com/soyeahso/snare/internal/logging"
	"github.com/soyeahso/snare/internal/version"
)

// Server is the snare gateway HTTP + WebSocket server.
type Server struct {
	cfg     config.Config
	auth    ResolvedAuth
	log     *logging.Logger
	engine  *honeypot.Engine
	version string

	// Channel registry (optional, nil if no channels configured)
	channels *channel.Registry

	// Hook manager (optional, nil disables the event feed)
	hooks *hooks.Manager

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter

	feedMu sync.Mutex
	feed   map[*feedClient]struct{}
}

// feedClient is one WebSocket subscriber of the event feed.
type feedClient struct {
	conn *websocket.Conn
	send chan hooks.Payload
	once sync.Once
}

func (c *feedClient) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// authRateLimiter tracks failed auth attempts per IP to prevent brute-force attacks.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000 // max tracked IPs to prevent memory exhaustion
)

func newAuthRateLimiter() *authRateLimiter {
	rl := &authRateLimiter{failures: make(map[string][]time.Time)}
	go rl.periodicCleanup()
	return rl
}

// periodicCleanup removes stale entries every minute.
func (l *authRateLimiter) periodicCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-authRateWindow)
		for ip, times := range l.failures {
			filtered := times[:0]
			for _, t := range times {
				if t.After(cutoff) {
					filtered = append(filtered, t)
				}
			}
			if len(filtered) == 0 {
				delete(l.failures, ip)
			} else {
				l.failures[ip] = filtered
			}
		}
		l.mu.Unlock()
	}
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-authRateWindow)
	recent := l.failures[host]
	filtered := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		delete(l.failures, host)
		return true
	}
	l.failures[host] = filtered
	return len(filtered) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Enforce max entries cap to prevent memory exhaustion from DDoS
	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = times[0]
			}
		}
		if oldestIP != "" {
			delete(l.failures, oldestIP)
		}
	}

	l.failures[host] = append(l.failures[host], time.Now())
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithChannels sets the channel registry for channel status reporting.
func WithChannels(ch *channel.Registry) ServerOption {
	return func(s *Server) {
		s.channels = ch
	}
}

// WithHooks sets the hook manager powering the WebSocket event feed.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a new gateway server.
func New(cfg config.Config, engine *honeypot.Engine, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Server),
		log:         log.Sub("gateway"),
		engine:      engine,
		version:     version.Version,
		authLimiter: newAuthRateLimiter(),
		feed:        make(map[*feedClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.hooks != nil {
		s.hooks.OnAll("gateway-feed", s.broadcastEvent)
	}
	return s
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// If no origins are configured, only same-origin (no Origin header) or non-browser
// clients are allowed. If origins are configured, the Origin must match one of them.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Same-origin or non-browser clients
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := withMiddleware(mux, s.log, s.cfg.Server.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// Enable TLS if configured
	if s.cfg.Server.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Server.TLS.CertPath, s.cfg.Server.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, tlsCfg)
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Server.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled; the API key will be transmitted in cleartext")
	}

	if !s.auth.Enabled() {
		s.log.Warn().Msg("no API key configured, API authentication is disabled")
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Bool("auth", s.auth.Enabled()).
		Msg("gateway server ready")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{
			"addr": ln.Addr().String(),
		})
	}

	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.closeFeedClients()
		s.engine.Wait()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// handleWebSocket upgrades the connection and streams lifecycle events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	if result := Authorize(s.auth, apiKeyFrom(r)); !result.OK {
		s.authLimiter.recordFailure(r.RemoteAddr)
		writeJSONError(w, http.StatusUnauthorized, result.Reason)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(64 * 1024)

	client := &feedClient{
		conn: conn,
		send: make(chan hooks.Payload, 64),
	}
	s.addFeedClient(client)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("feed client connected")

	// Writer: pushes events until the send channel closes.
	go func() {
		for payload := range client.send {
			if err := conn.WriteJSON(payload); err != nil {
				break
			}
		}
		conn.Close()
	}()

	// Reader: the feed is one-way, so this only detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.removeFeedClient(client)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("feed client disconnected")
}

func (s *Server) addFeedClient(c *feedClient) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	s.feed[c] = struct{}{}
}

func (s *Server) removeFeedClient(c *feedClient) {
	s.feedMu.Lock()
	delete(s.feed, c)
	s.feedMu.Unlock()
	c.close()
}

func (s *Server) closeFeedClients() {
	s.feedMu.Lock()
	clients := make([]*feedClient, 0, len(s.feed))
	for c := range s.feed {
		clients = append(clients, c)
	}
	s.feed = make(map[*feedClient]struct{})
	s.feedMu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *Server) feedCount() int {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	return len(s.feed)
}

// broadcastEvent fans a hook payload out to all feed clients. Slow clients
// are dropped rather than allowed to block the emitting code path.
func (s *Server) broadcastEvent(_ context.Context, p hooks.Payload) error {
	s.feedMu.Lock()
	var stale []*feedClient
	for c := range s.feed {
		select {
		case c.send <- p:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		delete(s.feed, c)
	}
	s.feedMu.Unlock()

	for _, c := range stale {
		s.log.Warn().Msg("dropping slow feed client")
		c.close()
	}
	return nil
}
