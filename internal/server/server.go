// Package server exposes the shop assistant to browser clients: one
// websocket per visitor, each backed by its own realtime session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/codewandler/shopassist-go"
	"github.com/codewandler/shopassist-go/internal/controller"
	"github.com/codewandler/shopassist-go/internal/sessions"
	"github.com/codewandler/shopassist-go/tool"
	"github.com/gorilla/websocket"
)

const (
	bufferSize      = 64 * 1024
	shutdownTimeout = 10 * time.Second
)

// SessionFactory creates the realtime session for a new visitor.
type SessionFactory func(ctx context.Context) (controller.Session, error)

// RealtimeSessions returns a factory for shopassist sessions carrying opts
// and the given tools. Every session gets its own tool state.
func RealtimeSessions(bindings []tool.Binding, opts ...shopassist.Option) SessionFactory {
	return func(ctx context.Context) (controller.Session, error) {
		s := shopassist.New(opts...)
		if err := s.AddTools(ctx, bindings...); err != nil {
			return nil, err
		}
		return s, nil
	}
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	Greeting       string
}

type Server struct {
	cfg        Config
	sessions   SessionFactory
	manager    *sessions.Manager
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

func New(cfg Config, factory SessionFactory, manager *sessions.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg:      cfg,
		sessions: factory,
		manager:  manager,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  bufferSize,
			WriteBufferSize: bufferSize,
			CheckOrigin:     allowOrigins(cfg.AllowedOrigins),
		},
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func allowOrigins(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run serves until ctx is done, then closes all sessions and shuts down.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", s.cfg.Addr))
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.manager.Shutdown(shutdownCtx)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := controller.NewConn(ws, s.logger)
	rt, err := s.sessions(ctx)
	if err != nil {
		s.logger.Error("failed to create realtime session", slog.Any("err", err))
		_ = conn.Send(controller.ServerMessage{Type: controller.TypeError, Text: "Failed to start a session."})
		conn.Close()
		return
	}
	ctrl := controller.New(rt, conn, s.logger)

	entry, err := s.manager.Create(ctx, sessions.CloserFunc(func(ctx context.Context) error {
		cancel()
		conn.Close()
		return ctrl.Close(ctx)
	}))
	if err != nil {
		s.logger.Warn("rejecting session", slog.Any("err", err))
		_ = ctrl.ReportError("The assistant is busy, please try again later.")
		conn.Close()
		return
	}

	logger := s.logger.With(slog.String("session", entry.ID))
	logger.Info("session created")

	if err := ctrl.Greet(s.cfg.Greeting); err != nil {
		logger.Warn("failed to greet", slog.Any("err", err))
	}

	conn.Serve(ctx, controller.HandlerFunc(func(ctx context.Context, msg controller.ClientMessage) error {
		s.manager.Touch(ctx, entry.ID)
		return ctrl.Handle(ctx, msg)
	}))

	if err := s.manager.Remove(context.WithoutCancel(ctx), entry.ID); err != nil {
		logger.Warn("failed to close session", slog.Any("err", err))
	}
	logger.Info("session closed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.manager.Count(),
	})
}

var _ controller.Session = (*shopassist.Session)(nil)
