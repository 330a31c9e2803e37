// Package api provides the HTTP shell for agenbot.
//
// It exposes the webhook endpoint the messaging gateway calls for every
// inbound customer message, health endpoints for the process, the gateway
// and the state store, and an administrative conversation reset. The shell
// is thin: payload validation and transport acknowledgments live here,
// every conversation decision lives in the flow package.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ronald-silva/agenbot/internal/flow"
	"github.com/Ronald-silva/agenbot/internal/genai"
	"github.com/Ronald-silva/agenbot/internal/messaging"
	"github.com/Ronald-silva/agenbot/internal/store"
	"github.com/Ronald-silva/agenbot/internal/util"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// DefaultTurnTimeout bounds the model and delivery calls of one webhook turn.
const DefaultTurnTimeout = 60 * time.Second

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// GatewayStatusChecker reports whether the messaging gateway instance is
// connected. Implemented by the Z-API service.
type GatewayStatusChecker interface {
	Status(ctx context.Context) (*messaging.InstanceStatus, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr         string
	MsgService   messaging.Service
	Gateway      GatewayStatusChecker
	Store        store.Store
	GenAI        genai.ClientInterface
	VoiceReplies bool
	AdminToken   string
	TurnTimeout  time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithMessagingService sets the outbound delivery service.
func WithMessagingService(m messaging.Service) Option {
	return func(o *Opts) { o.MsgService = m }
}

// WithGatewayStatus sets the gateway status checker used by /health/gateway.
func WithGatewayStatus(g GatewayStatusChecker) Option {
	return func(o *Opts) { o.Gateway = g }
}

// WithStore sets the store probed by /health/store.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithGenAI sets the GenAI client used for voice replies.
func WithGenAI(c genai.ClientInterface) Option {
	return func(o *Opts) { o.GenAI = c }
}

// WithVoiceReplies enables synthesized audio replies alongside text.
func WithVoiceReplies(enabled bool) Option {
	return func(o *Opts) { o.VoiceReplies = enabled }
}

// WithAdminToken guards the administrative endpoints with a bearer token.
func WithAdminToken(token string) Option {
	return func(o *Opts) { o.AdminToken = token }
}

// WithTurnTimeout overrides the per-turn processing timeout.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Opts) { o.TurnTimeout = d }
}

// Server hosts the HTTP endpoints over the conversation engine.
type Server struct {
	addr         string
	engine       *flow.Engine
	states       *flow.StateManager
	msgService   messaging.Service
	gateway      GatewayStatusChecker
	store        store.Store
	genAI        genai.ClientInterface
	voiceReplies bool
	adminToken   string
	turnTimeout  time.Duration
}

// NewServer creates the API server over a conversation engine and its state
// manager. Delivery, gateway probe, store probe and voice synthesis are
// optional collaborators.
func NewServer(engine *flow.Engine, states *flow.StateManager, opts ...Option) *Server {
	cfg := Opts{
		Addr:        DefaultAddr,
		TurnTimeout: DefaultTurnTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		addr:         cfg.Addr,
		engine:       engine,
		states:       states,
		msgService:   cfg.MsgService,
		gateway:      cfg.Gateway,
		store:        cfg.Store,
		genAI:        cfg.GenAI,
		voiceReplies: cfg.VoiceReplies,
		adminToken:   cfg.AdminToken,
		turnTimeout:  cfg.TurnTimeout,
	}
}

// Handler builds the routed handler with logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/health/gateway", s.gatewayHealthHandler)
	mux.HandleFunc("/health/store", s.storeHealthHandler)
	mux.HandleFunc("/conversations/", s.conversationsHandler)
	return s.recoverMiddleware(s.logMiddleware(mux))
}

// Run serves HTTP until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// recoverMiddleware converts handler panics into 500 responses so a single
// bad request never kills the process.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Server: handler panic recovered", "panic", rec, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write(fallbackErrorResponse)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// logMiddleware logs every request with a correlation ID and its duration.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := util.GenerateRequestID()
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Server: request handled",
			"request_id", requestID, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
