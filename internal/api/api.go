// Package api exposes the HTTP surface of FitPulse.
//
// It serves the Twilio inbound webhook, operational endpoints for health and
// scheduler inspection, and a direct send endpoint for operators. Inbound
// messages are acknowledged immediately and processed on the task runner so a
// slow model call never blocks the transport.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/FitPulse/internal/messaging"
	"github.com/BTreeMap/FitPulse/internal/onboarding"
	"github.com/BTreeMap/FitPulse/internal/scheduler"
	"github.com/BTreeMap/FitPulse/internal/tasks"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Server wires the messaging service, scheduler and conversation coordinator
// behind an HTTP listener.
type Server struct {
	msgService  messaging.Service
	engine      *scheduler.Engine
	coordinator *onboarding.Coordinator
	runner      *tasks.Runner
	webhook     http.HandlerFunc
	addr        string
	httpServer  *http.Server
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr    string
	Webhook http.HandlerFunc
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithWebhook mounts an inbound webhook handler at POST /webhook/twilio.
func WithWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) { o.Webhook = h }
}

// NewServer creates an API server. The webhook is optional: transports that
// push inbound messages over their own connection (WhatsApp) do not need one.
func NewServer(msg messaging.Service, engine *scheduler.Engine, coordinator *onboarding.Coordinator, runner *tasks.Runner, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		msgService:  msg,
		engine:      engine,
		coordinator: coordinator,
		runner:      runner,
		webhook:     cfg.Webhook,
		addr:        cfg.Addr,
	}
}

// Handler returns the fully routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/scheduler/status", s.schedulerStatusHandler)
	mux.HandleFunc("/send", s.sendHandler)
	if s.webhook != nil {
		mux.HandleFunc("/webhook/twilio", s.webhookHandler)
	}
	return requestIDMiddleware(mux)
}

// Run starts the response consumer and the HTTP listener, and blocks until
// the context is canceled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.consumeResponses(ctx)
	go s.consumeReceipts(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down API server: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// consumeResponses drains the messaging service's inbound channel and hands
// each message to the conversation coordinator on the task runner. Replies go
// back out through the same service, chunked when they exceed the transport
// limit.
func (s *Server) consumeResponses(ctx context.Context) {
	responses := s.msgService.Responses()
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-responses:
			if !ok {
				slog.Info("Server.consumeResponses: response channel closed")
				return
			}
			s.dispatchResponse(ctx, resp.From, resp.Body)
		}
	}
}

// consumeReceipts drains delivery-status events so the transport's receipt
// buffer can never fill up and stall senders.
func (s *Server) consumeReceipts(ctx context.Context) {
	receipts := s.msgService.Receipts()
	if receipts == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case receipt, ok := <-receipts:
			if !ok {
				slog.Info("Server.consumeReceipts: receipt channel closed")
				return
			}
			slog.Debug("Server.consumeReceipts: delivery status", "to", receipt.To, "status", receipt.Status)
		}
	}
}

func (s *Server) dispatchResponse(ctx context.Context, from, body string) {
	name := "handle_message:" + from
	err := s.runner.Submit(ctx, name, func(taskCtx context.Context) error {
		reply, err := s.coordinator.HandleMessage(taskCtx, from, body)
		if err != nil {
			return fmt.Errorf("failed to handle message from %s: %w", from, err)
		}
		if reply == "" {
			return nil
		}
		return messaging.SendChunked(taskCtx, s.msgService, from, reply)
	})
	if err != nil {
		slog.Error("Server.dispatchResponse: failed to submit task", "error", err, "from", from)
	}
}

// requestIDMiddleware tags every request with a UUID for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		slog.Debug("Server.requestIDMiddleware: request received", "request_id", requestID, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
