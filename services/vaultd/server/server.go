package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"defipool/core/events"
	"defipool/gateway/middleware"
	"defipool/services/vaultd/executor"
	"defipool/services/vaultd/export"
	"defipool/services/vaultd/journal"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Executor      *executor.Executor
	Auth          *middleware.Authenticator
	Limiter       *middleware.RateLimiter
	Observability *middleware.Observability
	Broadcaster   *events.Broadcaster
	Journal       *journal.Journal
	Exporter      *export.Exporter
	Metrics       http.Handler
	Logger        *slog.Logger
	// DevMode enables the simulated token bridge credit endpoint.
	DevMode bool
}

// Server is the vaultd HTTP API.
type Server struct {
	exec        *executor.Executor
	auth        *middleware.Authenticator
	limiter     *middleware.RateLimiter
	obs         *middleware.Observability
	broadcaster *events.Broadcaster
	journal     *journal.Journal
	exporter    *export.Exporter
	metrics     http.Handler
	logger      *slog.Logger
	devMode     bool
	started     time.Time

	router http.Handler
}

// New constructs the router.
func New(cfg Config) (*Server, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("server: executor required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("server: authenticator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = middleware.NewRateLimiter(nil, cfg.Logger)
	}
	if cfg.Observability == nil {
		cfg.Observability = middleware.NewObservability(nil, cfg.Logger)
	}
	s := &Server{
		exec:        cfg.Executor,
		auth:        cfg.Auth,
		limiter:     cfg.Limiter,
		obs:         cfg.Observability,
		broadcaster: cfg.Broadcaster,
		journal:     cfg.Journal,
		exporter:    cfg.Exporter,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		devMode:     cfg.DevMode,
		started:     time.Now(),
	}
	s.router = otelhttp.NewHandler(s.buildRouter(), "vaultd")
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(public chi.Router) {
			public.Use(s.obs.Middleware("public"), s.limiter.Middleware("public"))
			public.Get("/vault", s.handleVault)
			public.Get("/rounds/{kind}/{id}", s.handleRound)
			public.Get("/rounds/{kind}/{id}/participants", s.handleParticipants)
			public.Get("/accounts/{address}", s.handleAccount)
			public.Get("/events", s.handleEvents)
			public.Get("/events/ws", s.handleEventsWS)
		})

		v1.Group(func(user chi.Router) {
			user.Use(s.obs.Middleware("user"), s.auth.Middleware(), s.limiter.Middleware("user"))
			user.Post("/deposit", s.handleDeposit)
			user.Post("/mint", s.handleMint)
			user.Post("/deposit/cancel", s.handleCancelDeposit)
			user.Post("/redeem", s.handleRedeem)
			user.Post("/withdraw", s.handleWithdraw)
			user.Post("/withdraw/cancel", s.handleCancelWithdraw)
			user.Post("/token/approve", s.handleApprove)
		})

		v1.Group(func(op chi.Router) {
			op.Use(s.obs.Middleware("operator"), s.auth.Middleware(middleware.ScopeOperator), s.limiter.Middleware("operator"))
			op.Post("/operator/bridge-deposits", s.handleBridgeDeposits)
			op.Post("/operator/bridge-withdrawals", s.handleBridgeWithdrawals)
			op.Post("/operator/remote", s.handleUpdateRemote)
			op.Post("/operator/distribute-share", s.handleDistributeShare)
			op.Post("/operator/distribute-asset", s.handleDistributeAsset)
			op.Post("/operator/pause", s.handlePause)
			op.Post("/operator/export", s.handleExport)
			if s.devMode {
				op.Post("/bridge/credit", s.handleBridgeCredit)
			}
		})

		v1.Group(func(relayer chi.Router) {
			relayer.Use(s.obs.Middleware("relayer"), s.auth.Middleware(middleware.ScopeRelayer), s.limiter.Middleware("relayer"))
			relayer.Get("/bridge/outbox", s.handleOutbox)
			relayer.Post("/bridge/inbound", s.handleInbound)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
