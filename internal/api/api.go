// Package api provides HTTP handlers and the main API server logic for Nudge.
//
// It exposes RESTful endpoints for chatting with the storefront agent and for
// inspecting, resetting, and auditing negotiation sessions. Channel webhooks
// (for example the Twilio inbound SMS callback) are mounted onto the same
// server by the caller.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/boovines/Nudge/internal/bouncer"
	"github.com/boovines/Nudge/internal/store"
)

const defaultAddr = ":8000"

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address, host:port.
	Addr string
	// Webhooks maps URL paths to channel callback handlers.
	Webhooks map[string]http.Handler
}

// Option defines a functional option for API server configuration.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithWebhook mounts a channel callback handler at the given path.
func WithWebhook(path string, h http.Handler) Option {
	return func(o *Opts) {
		if o.Webhooks == nil {
			o.Webhooks = make(map[string]http.Handler)
		}
		o.Webhooks[path] = h
	}
}

// Server holds dependencies for the API handlers.
type Server struct {
	agent    *bouncer.Agent
	st       store.Store
	addr     string
	webhooks map[string]http.Handler
}

// NewServer creates an API server around a conversation agent. The store is
// used for read-side audit endpoints and may be nil when persistence is
// disabled.
func NewServer(agent *bouncer.Agent, st store.Store, opts ...Option) *Server {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = defaultAddr
	}
	return &Server{agent: agent, st: st, addr: o.Addr, webhooks: o.Webhooks}
}

// Handler builds the full route table. It is exported so tests and embedding
// servers can drive the API without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.chatHandler)
	mux.HandleFunc("/api/sessions/", s.sessionsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	for path, h := range s.webhooks {
		mux.Handle(path, h)
	}
	return corsMiddleware(mux)
}

// Run starts the HTTP server and blocks until the context is canceled or the
// listener fails. Cancellation triggers a graceful shutdown so in-flight chat
// turns finish before the process exits.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // chat turns wait on the model
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("Server.Run: starting API server", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("Server.Run: shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware allows browser storefront widgets on any origin to call the
// chat API, and answers preflight requests directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
