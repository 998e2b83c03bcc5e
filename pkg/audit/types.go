package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action identifies the billing operation an entry records.
type Action string

const (
	ActionCancel    Action = "cancelSubscription"
	ActionPause     Action = "pauseSubscription"
	ActionResume    Action = "resumeSubscription"
	ActionUpdate    Action = "updateSubscription"
	ActionFetch     Action = "fetchSubscription"
	ActionReconcile Action = "reconcileSubscription"
)

// Result is the outcome of the recorded operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// UnknownSubscriptionID is recorded when an operation failed before a
// subscription could be resolved.
const UnknownSubscriptionID = "unknown"

// Entry is a single audit record.
type Entry struct {
	ID             string                 `json:"id"`
	Action         Action                 `json:"action"`
	UserID         string                 `json:"userId"`
	SubscriptionID string                 `json:"subscriptionId"`
	Result         Result                 `json:"result"`
	ErrorMessage   string                 `json:"errorMessage,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// NewEntry builds an entry with a fresh ID and the current time. An empty
// subscription ID becomes UnknownSubscriptionID.
func NewEntry(action Action, userID, subscriptionID string, result Result) *Entry {
	if subscriptionID == "" {
		subscriptionID = UnknownSubscriptionID
	}
	return &Entry{
		ID:             uuid.NewString(),
		Action:         action,
		UserID:         userID,
		SubscriptionID: subscriptionID,
		Result:         result,
		Timestamp:      time.Now().UTC(),
	}
}

// WithError attaches the failure message to the entry.
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}

// WithMetadata attaches free-form details to the entry.
func (e *Entry) WithMetadata(metadata map[string]interface{}) *Entry {
	e.Metadata = metadata
	return e
}
