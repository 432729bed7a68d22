// Package server exposes the marketplace over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/server/handler"
	"github.com/alanyoungcy/promiseland/internal/server/middleware"
	"github.com/alanyoungcy/promiseland/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// RateLimit is the number of requests per RateWindow allowed per client
	// IP; 0 disables rate limiting.
	RateLimit  int
	RateWindow time.Duration

	// SignatureMaxAge bounds the age of a signed request.
	SignatureMaxAge time.Duration

	// Limiter and Nonces default to in-process implementations when nil.
	Limiter domain.RateLimiter
	Nonces  domain.NonceStore
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Market   *handler.MarketHandler
	Nfts     *handler.NftHandler
	Accounts *handler.AccountHandler
	Admin    *handler.AdminHandler
	Events   *handler.EventHandler
}

// Server is the HTTP + WebSocket API server of the marketplace.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes and middleware registered.
// wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	// --- Register routes ---

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/market", handlers.Market.GetSettings)
	mux.HandleFunc("GET /api/abi", handlers.Market.GetABI)

	mux.HandleFunc("GET /api/nfts", handlers.Nfts.ListNfts)
	mux.HandleFunc("GET /api/nfts/listed", handlers.Nfts.ListListed)
	mux.HandleFunc("GET /api/nfts/{id}", handlers.Nfts.GetNft)
	mux.HandleFunc("GET /api/nfts/{id}/uri", handlers.Nfts.GetTokenURI)
	mux.HandleFunc("POST /api/nfts", handlers.Nfts.CreateToken)
	mux.HandleFunc("POST /api/nfts/{id}/listing", handlers.Nfts.UpdateListing)
	mux.HandleFunc("POST /api/nfts/{id}/sale", handlers.Nfts.ExecuteSale)
	mux.HandleFunc("POST /api/nfts/{id}/like", handlers.Nfts.Like)
	mux.HandleFunc("POST /api/nfts/{id}/dislike", handlers.Nfts.Dislike)

	mux.HandleFunc("GET /api/accounts/{address}", handlers.Accounts.GetBalance)
	mux.HandleFunc("POST /api/accounts/withdraw", handlers.Accounts.Withdraw)

	mux.HandleFunc("POST /api/admin/deposit", handlers.Admin.Deposit)
	mux.HandleFunc("PUT /api/admin/fees", handlers.Admin.UpdateFees)

	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.SignatureAuth(middleware.AuthConfig{
		MaxAge: cfg.SignatureMaxAge,
		Nonces: cfg.Nonces,
		Logger: logger,
	})(h)
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, window, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
