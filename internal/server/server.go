// Package server exposes the chat assistant over HTTP.
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/user/emrchat/internal/config"
	"github.com/user/emrchat/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front end
type Server struct {
	echo        *echo.Echo
	handler     http.Handler
	cfg         config.ServerConfig
	chatService ChatService
	logger      *logging.Logger
	now         func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithTracing wraps the handler with OpenTelemetry HTTP instrumentation
func WithTracing(serviceName string) Option {
	return func(s *Server) {
		s.handler = otelhttp.NewHandler(s.echo, serviceName)
	}
}

// WithClock overrides the time source used by /health
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New builds the echo instance, middleware chain and routes
func New(cfg config.ServerConfig, chatService ChatService, logger *logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:        e,
		handler:     e,
		cfg:         cfg,
		chatService: chatService,
		logger:      logger.Named("server"),
		now:         time.Now,
	}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(Recovery(s.logger))
	e.Use(RequestID())
	e.Use(AccessLog(s.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowCredentials: true,
	}))
	e.Use(RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", s.health)
	e.POST("/api/chat", s.chat)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the root http.Handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on the configured address until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", logging.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
