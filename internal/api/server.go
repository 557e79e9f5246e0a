// Package api provides the HTTP REST API and WebSocket server for the
// authorisation service.
//
// It exposes login, access-code lifecycle, principal management,
// deliberation membership and audit log endpoints, plus a live
// security-event feed over WebSocket for administrators.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openagora/agora-core/internal/accesscode"
	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/identity"
	"github.com/openagora/agora-core/internal/infrastructure/config"
	"github.com/openagora/agora-core/internal/infrastructure/logging"
	"github.com/openagora/agora-core/internal/policy"
	"github.com/openagora/agora-core/internal/principal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	WS            config.WebSocketConfig
	Logger        *logging.Logger
	Identity      *identity.Chain
	Login         *identity.LoginService
	Evaluator     *policy.Evaluator
	Codes         *accesscode.Manager
	CodesRepo     accesscode.Repository
	Principals    principal.Repository
	Deliberations deliberation.Repository
	Resources     *deliberation.ResourceStore
	Events        audit.Repository
	Recorder      *audit.Recorder
	Version       string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// hub carrying the live security-event feed. The server is created with
// New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	logger        *logging.Logger
	identity      *identity.Chain
	login         *identity.LoginService
	evaluator     *policy.Evaluator
	codes         *accesscode.Manager
	codesRepo     accesscode.Repository
	principals    principal.Repository
	deliberations deliberation.Repository
	resources     *deliberation.ResourceStore
	events        audit.Repository
	recorder      *audit.Recorder
	version       string
	server        *http.Server
	hub           *Hub
	tickets       *ticketStore
	cancel        context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Identity == nil {
		return nil, fmt.Errorf("identity chain is required")
	}
	if deps.Evaluator == nil {
		return nil, fmt.Errorf("policy evaluator is required")
	}
	if deps.Principals == nil {
		return nil, fmt.Errorf("principal repository is required")
	}

	return &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		logger:        deps.Logger,
		identity:      deps.Identity,
		login:         deps.Login,
		evaluator:     deps.Evaluator,
		codes:         deps.Codes,
		codesRepo:     deps.CodesRepo,
		principals:    deps.Principals,
		deliberations: deps.Deliberations,
		resources:     deps.Resources,
		events:        deps.Events,
		recorder:      deps.Recorder,
		version:       deps.Version,
		tickets:       newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to the
// audit recorder for the live security-event feed, and launches the
// HTTP listener in a background goroutine. The server is stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Periodic ticket cleanup prevents the store growing unbounded.
	go s.cleanTicketsLoop(srvCtx)

	s.subscribeSecurityEvents()

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// subscribeSecurityEvents relays committed high-risk events to
// WebSocket clients subscribed to the "security.event" channel.
func (s *Server) subscribeSecurityEvents() {
	if s.recorder == nil {
		return
	}
	s.recorder.Subscribe(func(event audit.SecurityEvent) {
		s.hub.Broadcast(channelSecurityEvent, event)
	})
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
