package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platterhq/platter/pkg/middleware"
	"github.com/platterhq/platter/pkg/observability"
	"github.com/platterhq/platter/pkg/payfast"
	"github.com/platterhq/platter/pkg/subscription"
)

// SubscriptionService is the slice of the billing core the API exposes.
type SubscriptionService interface {
	Cancel(ctx context.Context, userID string) (*subscription.Outcome, error)
	Pause(ctx context.Context, userID string, cycles int) (*subscription.Outcome, error)
	Resume(ctx context.Context, userID string) (*subscription.Outcome, error)
	Update(ctx context.Context, userID string, params payfast.UpdateParams) (*subscription.Outcome, error)
	Fetch(ctx context.Context, userID string) (*subscription.Subscription, error)
}

// Server is the authenticated HTTP surface over the subscription service.
type Server struct {
	service SubscriptionService
	router  *mux.Router
	logger  *observability.Logger
}

// NewServer wires the routes and the middleware chain. The rate limiter is
// optional; passing nil disables limiting (tests, single-instance dev).
func NewServer(service SubscriptionService, verifier middleware.Verifier, limiter *middleware.RateLimiter, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		service: service,
		router:  mux.NewRouter(),
		logger:  logger,
	}
	s.setupRoutes(verifier, limiter, metrics)
	return s
}

func (s *Server) setupRoutes(verifier middleware.Verifier, limiter *middleware.RateLimiter, metrics *observability.Metrics) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recover(s.logger))
	if metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(verifier, s.logger))
	if limiter != nil {
		api.Use(limiter.Handler)
	}

	api.HandleFunc("/subscription", s.getSubscription).Methods(http.MethodGet)
	api.HandleFunc("/subscription/cancel", s.cancelSubscription).Methods(http.MethodPost)
	api.HandleFunc("/subscription/pause", s.pauseSubscription).Methods(http.MethodPost)
	api.HandleFunc("/subscription/resume", s.resumeSubscription).Methods(http.MethodPost)
	api.HandleFunc("/subscription/update", s.updateSubscription).Methods(http.MethodPost)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
