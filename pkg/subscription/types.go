package subscription

import (
	"time"

	"github.com/platterhq/platter/pkg/docstore"
)

// Status is the lifecycle state of a subscription. Cancelled is terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Document collections.
const (
	CollectionSubscriptions = "subscriptions"
	CollectionUsers         = "users"
)

// Subscription document field names.
const (
	fieldOwner           = "owner"
	fieldToken           = "payfastToken"
	fieldStatus          = "subscriptionStatus"
	fieldRecurringAmount = "recurringAmount"
	fieldFrequency       = "billingFrequency"
	fieldCycles          = "remainingCycles"
	fieldNextRunDate     = "nextRunDate"
	fieldPlanLabel       = "planLabel"
	fieldPausedAt        = "pausedAt"
	fieldCancelledAt     = "cancelledAt"
	fieldUpdatedAt       = "updatedAt"
)

// Subscription is one billing relationship. RecurringAmount is in minor
// units (cents).
type Subscription struct {
	ID               string     `json:"id"`
	Owner            string     `json:"owner"`
	Token            string     `json:"token,omitempty"`
	Status           Status     `json:"status"`
	RecurringAmount  int64      `json:"recurringAmount"`
	BillingFrequency int        `json:"billingFrequency"`
	RemainingCycles  int        `json:"remainingCycles"`
	NextRunDate      string     `json:"nextRunDate,omitempty"`
	PlanLabel        string     `json:"planLabel,omitempty"`
	PausedAt         *time.Time `json:"pausedAt,omitempty"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// User is the denormalized mirror read by the rest of the platform. It may
// carry the provider token directly for accounts predating the
// subscriptions collection.
type User struct {
	ID                 string
	Token              string
	SubscriptionStatus Status
}

func subscriptionFromDoc(doc *docstore.Document) *Subscription {
	sub := &Subscription{
		ID:               doc.ID,
		Owner:            asString(doc.Data[fieldOwner]),
		Token:            asString(doc.Data[fieldToken]),
		Status:           NormalizeStatus(asString(doc.Data[fieldStatus])),
		RecurringAmount:  asInt64(doc.Data[fieldRecurringAmount]),
		BillingFrequency: int(asInt64(doc.Data[fieldFrequency])),
		RemainingCycles:  int(asInt64(doc.Data[fieldCycles])),
		NextRunDate:      asString(doc.Data[fieldNextRunDate]),
		PlanLabel:        asString(doc.Data[fieldPlanLabel]),
		UpdatedAt:        asTime(doc.Data[fieldUpdatedAt]),
	}
	if ts := asTime(doc.Data[fieldPausedAt]); !ts.IsZero() {
		sub.PausedAt = &ts
	}
	if ts := asTime(doc.Data[fieldCancelledAt]); !ts.IsZero() {
		sub.CancelledAt = &ts
	}
	return sub
}

func userFromDoc(doc *docstore.Document) *User {
	return &User{
		ID:                 doc.ID,
		Token:              asString(doc.Data[fieldToken]),
		SubscriptionStatus: NormalizeStatus(asString(doc.Data[fieldStatus])),
	}
}

// Document values arrive as whatever the store's decoder produced, so the
// numeric coercions accept every width seen in practice.

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch tv := v.(type) {
	case int64:
		return tv
	case int:
		return int64(tv)
	case float64:
		return int64(tv)
	case float32:
		return int64(tv)
	default:
		return 0
	}
}

func asTime(v interface{}) time.Time {
	switch tv := v.(type) {
	case time.Time:
		return tv
	case string:
		if ts, err := time.Parse(time.RFC3339, tv); err == nil {
			return ts
		}
	}
	return time.Time{}
}
