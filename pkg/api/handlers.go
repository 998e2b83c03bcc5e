package api

import (
	"net/http"

	"github.com/platterhq/platter/pkg/apperrors"
	"github.com/platterhq/platter/pkg/httputil"
	"github.com/platterhq/platter/pkg/observability"
	"github.com/platterhq/platter/pkg/payfast"
	"github.com/platterhq/platter/pkg/subscription"
)

type pauseRequest struct {
	Cycles int `json:"cycles"`
}

type updateRequest struct {
	Amount    *int64  `json:"amount"`
	Frequency *int    `json:"frequency"`
	Cycles    *int    `json:"cycles"`
	RunDate   *string `json:"runDate"`
}

// getSubscription handles GET /api/v1/subscription
func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	sub, err := s.service.Fetch(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	_ = httputil.WriteSuccess(w, "subscription fetched", sub)
}

// cancelSubscription handles POST /api/v1/subscription/cancel
func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	outcome, err := s.service.Cancel(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.writeOutcome(w, outcome, "subscription cancelled")
}

// pauseSubscription handles POST /api/v1/subscription/pause
func (s *Server) pauseSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	req := pauseRequest{Cycles: 1}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	outcome, err := s.service.Pause(r.Context(), userID, req.Cycles)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.writeOutcome(w, outcome, "subscription paused")
}

// resumeSubscription handles POST /api/v1/subscription/resume
func (s *Server) resumeSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	outcome, err := s.service.Resume(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.writeOutcome(w, outcome, "subscription resumed")
}

// updateSubscription handles POST /api/v1/subscription/update
func (s *Server) updateSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	outcome, err := s.service.Update(r.Context(), userID, payfast.UpdateParams{
		Amount:    req.Amount,
		Frequency: req.Frequency,
		Cycles:    req.Cycles,
		RunDate:   req.RunDate,
	})
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.writeOutcome(w, outcome, "subscription updated")
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := observability.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteAppError(w, apperrors.New(apperrors.CodeUnauthenticated, "missing user identity"))
		return "", false
	}
	return userID, true
}

func (s *Server) writeOutcome(w http.ResponseWriter, outcome *subscription.Outcome, fallback string) {
	message := outcome.Message
	if message == "" {
		message = fallback
	}
	_ = httputil.WriteSuccess(w, message, outcome.Subscription)
}
