package workflow

import (
	"testing"
	"time"

	"bitbucket.org/serviconsa/portal_backend/models"
)

func TestIdempotencyDecision(t *testing.T) {
	now := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		status     models.IdempotencyStatus
		updatedAt  time.Time
		skip       bool
		retryLater bool
	}{
		{
			name:      "succeeded skips the redelivery",
			status:    models.IdempotencyStatusSucceeded,
			updatedAt: now.Add(-time.Hour),
			skip:      true,
		},
		{
			name:       "fresh started backs off for pubsub retry",
			status:     models.IdempotencyStatusStarted,
			updatedAt:  now.Add(-time.Minute),
			retryLater: true,
		},
		{
			name:      "stale started is reclaimed",
			status:    models.IdempotencyStatusStarted,
			updatedAt: now.Add(-10 * time.Minute),
		},
		{
			name:      "failed is reprocessed",
			status:    models.IdempotencyStatusFailed,
			updatedAt: now.Add(-time.Minute),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			existing := &models.IdempotencyKey{Status: tc.status, UpdatedAt: tc.updatedAt}
			skip, retryLater := idempotencyDecision(existing, now)
			if skip != tc.skip {
				t.Fatalf("skip = %v, want %v", skip, tc.skip)
			}
			if retryLater != tc.retryLater {
				t.Fatalf("retryLater = %v, want %v", retryLater, tc.retryLater)
			}
		})
	}
}
