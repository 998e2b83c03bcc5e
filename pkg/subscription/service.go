package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platterhq/platter/pkg/apperrors"
	"github.com/platterhq/platter/pkg/audit"
	"github.com/platterhq/platter/pkg/docstore"
	"github.com/platterhq/platter/pkg/observability"
	"github.com/platterhq/platter/pkg/payfast"
	"github.com/platterhq/platter/pkg/retry"
)

// ProviderClient is the slice of the billing provider the service needs.
type ProviderClient interface {
	Cancel(ctx context.Context, token string) (*payfast.Result, error)
	Pause(ctx context.Context, token string, cycles int) (*payfast.Result, error)
	Unpause(ctx context.Context, token string) (*payfast.Result, error)
	Update(ctx context.Context, token string, params payfast.UpdateParams) (*payfast.Result, error)
	Fetch(ctx context.Context, token string) (*payfast.Result, error)
}

// Outcome is what a mutating operation hands back to the transport layer:
// the updated local view plus the provider's acknowledgement message.
type Outcome struct {
	Subscription *Subscription `json:"subscription"`
	Message      string        `json:"-"`
}

// Service coordinates provider calls with the document store. Every
// mutation snapshots the affected documents first, calls the provider with
// retries, commits the local change and the user mirror in one batch, and
// rolls the snapshots back if anything after the snapshot fails.
type Service struct {
	store    docstore.Store
	provider ProviderClient
	resolver *TokenResolver
	audit    *audit.Dispatcher
	retry    retry.Policy
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewService(store docstore.Store, provider ProviderClient, resolver *TokenResolver, dispatcher *audit.Dispatcher, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:    store,
		provider: provider,
		resolver: resolver,
		audit:    dispatcher,
		retry:    retry.DefaultPolicy(),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Cancel terminates the user's subscription. Allowed from active or paused;
// cancelled is terminal.
func (s *Service) Cancel(ctx context.Context, userID string) (*Outcome, error) {
	return s.mutate(ctx, userID, audit.ActionCancel, func(sub *Subscription) error {
		if sub.Status != StatusActive && sub.Status != StatusPaused {
			return apperrors.Newf(apperrors.CodeFailedPrecondition, "cannot cancel a %s subscription", sub.Status)
		}
		return nil
	}, func(ctx context.Context, token string) (*payfast.Result, error) {
		return s.provider.Cancel(ctx, token)
	}, func(sub *Subscription, _ *payfast.Result, now time.Time) map[string]interface{} {
		sub.Status = StatusCancelled
		sub.CancelledAt = &now
		return map[string]interface{}{
			fieldStatus:      string(StatusCancelled),
			fieldCancelledAt: now,
		}
	})
}

// Pause suspends billing for the given number of cycles. Allowed from
// active only.
func (s *Service) Pause(ctx context.Context, userID string, cycles int) (*Outcome, error) {
	if cycles < 1 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "cycles must be at least 1")
	}
	return s.mutate(ctx, userID, audit.ActionPause, func(sub *Subscription) error {
		if sub.Status != StatusActive {
			return apperrors.Newf(apperrors.CodeFailedPrecondition, "cannot pause a %s subscription", sub.Status)
		}
		return nil
	}, func(ctx context.Context, token string) (*payfast.Result, error) {
		return s.provider.Pause(ctx, token, cycles)
	}, func(sub *Subscription, _ *payfast.Result, now time.Time) map[string]interface{} {
		sub.Status = StatusPaused
		sub.PausedAt = &now
		sub.RemainingCycles = cycles
		return map[string]interface{}{
			fieldStatus:   string(StatusPaused),
			fieldPausedAt: now,
			fieldCycles:   cycles,
		}
	})
}

// Resume reactivates a paused subscription and clears the pause marker.
func (s *Service) Resume(ctx context.Context, userID string) (*Outcome, error) {
	return s.mutate(ctx, userID, audit.ActionResume, func(sub *Subscription) error {
		if sub.Status != StatusPaused {
			return apperrors.Newf(apperrors.CodeFailedPrecondition, "cannot resume a %s subscription", sub.Status)
		}
		return nil
	}, func(ctx context.Context, token string) (*payfast.Result, error) {
		return s.provider.Unpause(ctx, token)
	}, func(sub *Subscription, _ *payfast.Result, now time.Time) map[string]interface{} {
		sub.Status = StatusActive
		sub.PausedAt = nil
		return map[string]interface{}{
			fieldStatus:   string(StatusActive),
			fieldPausedAt: docstore.DeleteField,
		}
	})
}

// Update changes billing terms on an active subscription. At least one
// field must be provided; the plan label is recomputed whenever the amount
// or frequency changes.
func (s *Service) Update(ctx context.Context, userID string, params payfast.UpdateParams) (*Outcome, error) {
	if params.IsEmpty() {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "at least one field must be provided")
	}
	return s.mutate(ctx, userID, audit.ActionUpdate, func(sub *Subscription) error {
		if sub.Status != StatusActive {
			return apperrors.Newf(apperrors.CodeFailedPrecondition, "cannot update a %s subscription", sub.Status)
		}
		return nil
	}, func(ctx context.Context, token string) (*payfast.Result, error) {
		return s.provider.Update(ctx, token, params)
	}, func(sub *Subscription, _ *payfast.Result, now time.Time) map[string]interface{} {
		updates := map[string]interface{}{}
		if params.Amount != nil {
			sub.RecurringAmount = *params.Amount
			updates[fieldRecurringAmount] = *params.Amount
		}
		if params.Frequency != nil {
			sub.BillingFrequency = *params.Frequency
			updates[fieldFrequency] = *params.Frequency
		}
		if params.Cycles != nil {
			sub.RemainingCycles = *params.Cycles
			updates[fieldCycles] = *params.Cycles
		}
		if params.RunDate != nil {
			sub.NextRunDate = *params.RunDate
			updates[fieldNextRunDate] = *params.RunDate
		}
		if params.Amount != nil || params.Frequency != nil {
			sub.PlanLabel = PlanLabel(sub.BillingFrequency, sub.RecurringAmount)
			updates[fieldPlanLabel] = sub.PlanLabel
		}
		return updates
	})
}

// Fetch returns the subscription with live provider data overlaid on the
// stored record. Provider failures degrade to the stored record alone, so
// a read never fails because the provider is down.
func (s *Service) Fetch(ctx context.Context, userID string) (*Subscription, error) {
	done := s.observeOperation(string(audit.ActionFetch))

	fail := func(subID string, err error) (*Subscription, error) {
		done(err)
		s.dispatchAudit(audit.NewEntry(audit.ActionFetch, userID, subID, audit.ResultFailure).WithError(err))
		return nil, err
	}

	token, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return fail("", err)
	}

	local, err := s.findCurrent(ctx, userID)
	if err != nil && !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return fail("", err)
	}
	if local == nil {
		// Legacy account: token lives on the user document and no
		// subscription record exists yet.
		local = &Subscription{Owner: userID, Token: token}
	}

	result, err := s.callProvider(ctx, string(audit.ActionFetch), token, func(ctx context.Context) (*payfast.Result, error) {
		return s.provider.Fetch(ctx, token)
	})
	if err != nil {
		s.logger.WithError(err).WithField("userId", userID).Warn("provider fetch failed, serving stored subscription data")
		done(nil)
		s.dispatchAudit(audit.NewEntry(audit.ActionFetch, userID, local.ID, audit.ResultSuccess).WithMetadata(map[string]interface{}{
			"source": "local",
		}))
		return local, nil
	}

	overlayRemote(local, result.Fields)
	done(nil)
	s.dispatchAudit(audit.NewEntry(audit.ActionFetch, userID, local.ID, audit.ResultSuccess).WithMetadata(map[string]interface{}{
		"source": "remote",
	}))
	return local, nil
}

// mutationFn applies the provider result to the local view and returns the
// document fields to persist.
type mutationFn func(sub *Subscription, result *payfast.Result, now time.Time) map[string]interface{}

func (s *Service) mutate(ctx context.Context, userID string, action audit.Action, precondition func(*Subscription) error, call func(context.Context, string) (*payfast.Result, error), apply mutationFn) (*Outcome, error) {
	done := s.observeOperation(string(action))
	log := s.logger.WithFields(map[string]interface{}{
		"userId": userID,
		"action": string(action),
	})

	fail := func(subID string, err error) (*Outcome, error) {
		done(err)
		s.dispatchAudit(audit.NewEntry(action, userID, subID, audit.ResultFailure).WithError(err))
		return nil, err
	}

	token, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return fail("", err)
	}

	sub, err := s.findCurrent(ctx, userID)
	if err != nil {
		return fail("", err)
	}
	if err := precondition(sub); err != nil {
		return fail(sub.ID, err)
	}

	txlog := NewTxLog(s.store, log)
	if err := txlog.Snapshot(ctx, CollectionSubscriptions, sub.ID); err != nil {
		return fail(sub.ID, apperrors.Wrap(apperrors.CodeInternal, "snapshotting subscription", err))
	}
	if err := txlog.Snapshot(ctx, CollectionUsers, userID); err != nil {
		return fail(sub.ID, apperrors.Wrap(apperrors.CodeInternal, "snapshotting user", err))
	}

	result, err := s.callProvider(ctx, string(action), token, func(ctx context.Context) (*payfast.Result, error) {
		return call(ctx, token)
	})
	if err != nil {
		s.rollback(ctx, txlog, string(action), log)
		return fail(sub.ID, translateProviderError(err))
	}

	now := s.now().UTC()
	updates := apply(sub, result, now)
	updates[fieldUpdatedAt] = now
	sub.UpdatedAt = now

	batch := s.store.NewBatch()
	batch.SetMerge(CollectionSubscriptions, sub.ID, updates)
	batch.SetMerge(CollectionUsers, userID, map[string]interface{}{
		fieldStatus: string(sub.Status),
	})
	if err := batch.Commit(ctx); err != nil {
		s.rollback(ctx, txlog, string(action), log)
		return fail(sub.ID, apperrors.Wrap(apperrors.CodeInternal, "persisting subscription change", err))
	}
	txlog.Clear()
	s.resolver.Invalidate(userID)

	done(nil)
	s.dispatchAudit(audit.NewEntry(action, userID, sub.ID, audit.ResultSuccess).WithMetadata(map[string]interface{}{
		"status": string(sub.Status),
	}))
	log.WithField("subscriptionId", sub.ID).Info("subscription updated")

	return &Outcome{Subscription: sub, Message: result.Message}, nil
}

// findCurrent loads the user's most recently updated subscription record.
func (s *Service) findCurrent(ctx context.Context, userID string) (*Subscription, error) {
	docs, err := queryByOwner(ctx, s.store, s.logger, userID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "no subscription found for user %s", userID)
	}
	return subscriptionFromDoc(docs[0]), nil
}

// callProvider runs one provider action under the retry policy, recording
// a request metric per attempt and a retry metric per re-attempt.
func (s *Service) callProvider(ctx context.Context, action, token string, fn func(context.Context) (*payfast.Result, error)) (*payfast.Result, error) {
	var result *payfast.Result
	attempts := 0
	err := s.retry.Do(ctx, s.logger, action, func(ctx context.Context) error {
		attempts++
		if attempts > 1 && s.metrics != nil {
			s.metrics.RetriesTotal.WithLabelValues(action).Inc()
		}
		start := time.Now()
		res, err := fn(ctx)
		if s.metrics != nil {
			s.metrics.ProviderRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
			s.metrics.ProviderRequestsTotal.WithLabelValues(action, outcomeLabel(err)).Inc()
		}
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// rollback restores snapshots after a failed mutation. Its own failure is
// logged and counted but never replaces the original error.
func (s *Service) rollback(ctx context.Context, txlog *TxLog, action string, log *observability.Logger) {
	err := txlog.Rollback(ctx)
	if s.metrics != nil {
		s.metrics.RollbacksTotal.WithLabelValues(action, outcomeLabel(err)).Inc()
	}
	if err != nil {
		log.WithError(err).Error("rollback failed, documents may be inconsistent")
	}
}

func (s *Service) dispatchAudit(entry *audit.Entry) {
	if s.audit != nil {
		s.audit.Dispatch(entry)
	}
}

// observeOperation starts the operation timer and returns the closure that
// finalizes the counters for the eventual outcome.
func (s *Service) observeOperation(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		if s.metrics == nil {
			return
		}
		s.metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		s.metrics.OperationsTotal.WithLabelValues(operation, outcomeLabel(err)).Inc()
	}
}

func outcomeLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// translateProviderError maps provider failures onto application errors. A
// business rejection keeps the provider's message; transport failures that
// exhausted the retry budget surface as unavailable; anything else that
// survived the retry policy is internal.
func translateProviderError(err error) error {
	var be *payfast.BusinessError
	if errors.As(err, &be) {
		return apperrors.New(apperrors.CodeRemoteBusiness, be.Message)
	}
	if appErr := apperrors.AsError(err); appErr != nil {
		return err
	}
	if retry.IsRetryable(err) {
		return apperrors.Wrap(apperrors.CodeUnavailable, "billing provider unreachable", err)
	}
	return apperrors.Wrap(apperrors.CodeInternal, "billing provider request failed", err)
}

// overlayRemote folds the provider's live view of a subscription onto the
// stored record, normalizing the provider's conventions as it goes.
func overlayRemote(sub *Subscription, fields map[string]interface{}) {
	if v, ok := fields["status_text"]; ok {
		sub.Status = NormalizeStatus(asString(v))
	} else if v, ok := fields["status"]; ok {
		sub.Status = NormalizeStatus(fmt.Sprintf("%v", v))
	}
	if v, ok := fields["amount"]; ok {
		sub.RecurringAmount = NormalizeAmountCents(asInt64(v))
	}
	if v, ok := fields["recurring_amount"]; ok {
		sub.RecurringAmount = NormalizeAmountCents(asInt64(v))
	}
	if v, ok := fields["frequency"]; ok {
		sub.BillingFrequency = int(asInt64(v))
	}
	if v, ok := fields["cycles"]; ok {
		sub.RemainingCycles = int(asInt64(v))
	}
	if v, ok := fields["run_date"]; ok {
		sub.NextRunDate = asString(v)
	}
	if v, ok := fields["token"]; ok {
		if token := asString(v); token != "" {
			sub.Token = token
		}
	}
	if sub.BillingFrequency != 0 && sub.RecurringAmount != 0 {
		sub.PlanLabel = PlanLabel(sub.BillingFrequency, sub.RecurringAmount)
	}
}
