package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrequencyName(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{1, "daily"},
		{2, "weekly"},
		{3, "monthly"},
		{4, "quarterly"},
		{5, "biannual"},
		{6, "annual"},
		{9, "every-9"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FrequencyName(tt.code))
	}
}

func TestPlanLabel(t *testing.T) {
	assert.Equal(t, "monthly-99", PlanLabel(3, 9900))
	assert.Equal(t, "annual-999", PlanLabel(6, 99900))
	assert.Equal(t, "daily-0", PlanLabel(1, 50))
}

func TestNormalizeAmountCents(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		want   int64
	}{
		{"major units converted", 99, 9900},
		{"boundary value treated as major units", 999, 99900},
		{"minor units kept", 9900, 9900},
		{"exactly one thousand kept", 1000, 1000},
		{"zero kept", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAmountCents(tt.amount))
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"active", StatusActive},
		{"ACTIVE", StatusActive},
		{" Active ", StatusActive},
		{"1", StatusActive},
		{"paused", StatusPaused},
		{"PAUSE", StatusPaused},
		{"cancelled", StatusCancelled},
		{"canceled", StatusCancelled},
		{"CANCEL", StatusCancelled},
		{"frozen", Status("frozen")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeStatus(tt.raw))
	}
}
