package workflow

import (
	"context"
	"math"
	"testing"
	"time"

	"bitbucket.org/serviconsa/portal_backend/models"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestDurationHours(t *testing.T) {
	start := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)

	if got := DurationHours(start, start.Add(90*time.Minute)); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("DurationHours = %f, want 1.5", got)
	}
	if got := DurationHours(start, start.Add(-time.Hour)); got >= 0 {
		t.Fatalf("reversed interval must be negative, got %f", got)
	}
}

func TestRecordAccrual(t *testing.T) {
	start := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		record models.TimeRecord
		hours  float64
		ok     bool
	}{
		{
			name:   "completed interval accrues",
			record: models.TimeRecord{ProjectId: 1, FechaInicio: timePtr(start), FechaFin: timePtr(start.Add(2 * time.Hour))},
			hours:  2,
			ok:     true,
		},
		{
			name:   "in progress skipped",
			record: models.TimeRecord{ProjectId: 1, FechaInicio: timePtr(start)},
			ok:     false,
		},
		{
			name:   "missing project skipped",
			record: models.TimeRecord{FechaInicio: timePtr(start), FechaFin: timePtr(start.Add(time.Hour))},
			ok:     false,
		},
		{
			name:   "missing start skipped",
			record: models.TimeRecord{ProjectId: 1, FechaFin: timePtr(start)},
			ok:     false,
		},
		{
			name:   "zero duration skipped",
			record: models.TimeRecord{ProjectId: 1, FechaInicio: timePtr(start), FechaFin: timePtr(start)},
			ok:     false,
		},
		{
			name:   "clock skew never decrements",
			record: models.TimeRecord{ProjectId: 1, FechaInicio: timePtr(start), FechaFin: timePtr(start.Add(-time.Minute))},
			ok:     false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := tc.record
			hours, ok := RecordAccrual(&rec)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && math.Abs(hours-tc.hours) > 1e-9 {
				t.Fatalf("hours = %f, want %f", hours, tc.hours)
			}
		})
	}
}

func TestRecordAccrual_SumOfSessions(t *testing.T) {
	start := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)
	durations := []time.Duration{45 * time.Minute, 2 * time.Hour, 20 * time.Minute}

	var total float64
	for _, d := range durations {
		rec := models.TimeRecord{ProjectId: 7, FechaInicio: timePtr(start), FechaFin: timePtr(start.Add(d))}
		hours, ok := RecordAccrual(&rec)
		if !ok {
			t.Fatalf("session of %s skipped", d)
		}
		total += hours
	}

	want := (45*time.Minute + 2*time.Hour + 20*time.Minute).Hours()
	if math.Abs(total-want) > 1e-9 {
		t.Fatalf("accumulated hours = %f, want %f", total, want)
	}
}

func TestProcessPresenceOffline_GuardsSkipWithoutWrites(t *testing.T) {
	// Each of these must return before touching the DB; passing nil for the
	// transaction proves no write was attempted.
	start := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)
	projectId := 3

	cases := []struct {
		name    string
		old     *models.PresenceStatus
		updated *models.PresenceStatus
	}{
		{
			name:    "still online",
			updated: &models.PresenceStatus{UserId: 5, State: models.PresenceStateOnline, ActiveProjectId: &projectId, ActiveTaskStart: timePtr(start)},
		},
		{
			name:    "already offline",
			old:     &models.PresenceStatus{UserId: 5, State: models.PresenceStateOffline},
			updated: &models.PresenceStatus{UserId: 5, State: models.PresenceStateOffline, ActiveProjectId: &projectId, ActiveTaskStart: timePtr(start)},
		},
		{
			name:    "no active project",
			updated: &models.PresenceStatus{UserId: 5, State: models.PresenceStateOffline, ActiveTaskStart: timePtr(start)},
		},
		{
			name:    "no task start",
			updated: &models.PresenceStatus{UserId: 5, State: models.PresenceStateOffline, ActiveProjectId: &projectId},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ProcessPresenceOffline(context.Background(), nil, nil, tc.old, tc.updated); err != nil {
				t.Fatal(err)
			}
		})
	}
}
