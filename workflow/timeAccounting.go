package workflow

import (
	"context"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DurationHours is the elapsed time between two instants in hours.
func DurationHours(start time.Time, end time.Time) float64 {
	return end.Sub(start).Hours()
}

// RecordAccrual decides what a written time record contributes to the hour
// accumulator. ok is false when the record must be skipped: incomplete input,
// an in-progress interval, or a non-positive duration (clock skew must never
// decrement the accumulator).
func RecordAccrual(record *models.TimeRecord) (float64, bool) {
	if record.ProjectId == 0 || record.FechaInicio == nil {
		return 0, false
	}
	if record.FechaFin == nil {
		return 0, false
	}
	hours := DurationHours(*record.FechaInicio, *record.FechaFin)
	if hours <= 0 {
		return 0, false
	}
	return hours, true
}

// ProcessTimeRecordWritten accrues a completed time record onto the owning
// project. This is an asynchronous trigger: malformed input is logged and
// ignored, never surfaced to a caller.
func ProcessTimeRecordWritten(tx *gorm.DB, logger *logrus.Logger, record *models.TimeRecord) error {
	if record.ProjectId == 0 || record.FechaInicio == nil {
		config.LogSkip(logger, "timeAccounting.go", "ProcessTimeRecordWritten", "time record missing project or start time", record.ID)
		return nil
	}
	if record.FechaFin == nil {
		// In progress. Processed again once the end time is written.
		return nil
	}

	hours, ok := RecordAccrual(record)
	if !ok {
		// Clock skew or bad input. Must never decrement the accumulator.
		config.LogSkip(logger, "timeAccounting.go", "ProcessTimeRecordWritten", "non-positive duration", record.ID)
		return nil
	}

	if err := models.IncrementRecordedHours(tx, record.ProjectId, hours); err != nil {
		config.LogError(logger, "timeAccounting.go", "ProcessTimeRecordWritten", "IncrementRecordedHours", record.ProjectId, err)
	}
	return nil
}

// ProcessPresenceOffline handles a disconnect-while-active: it synthesizes
// the time record the technician never clocked out, accrues the hours, and
// clears the active-task marker. The three writes are independent; a failure
// in one is logged and the rest are still attempted.
func ProcessPresenceOffline(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, old *models.PresenceStatus, updated *models.PresenceStatus) error {
	if updated.State != models.PresenceStateOffline {
		return nil
	}
	if old != nil && old.State == models.PresenceStateOffline {
		// Not a transition.
		return nil
	}
	if updated.ActiveProjectId == nil || updated.ActiveTaskStart == nil {
		return nil
	}

	record := models.TimeRecord{
		TechnicianId: updated.UserId,
		ProjectId:    *updated.ActiveProjectId,
		FechaInicio:  updated.ActiveTaskStart,
		FechaFin:     &updated.LastChanged,
	}
	if err := models.InsertSynthesizedTimeRecord(tx, &record); err != nil {
		config.LogError(logger, "timeAccounting.go", "ProcessPresenceOffline", "InsertSynthesizedTimeRecord", updated.UserId, err)
	}

	// The increment is a second independent write, not derived from the
	// record above.
	hours := DurationHours(*updated.ActiveTaskStart, updated.LastChanged)
	if hours > 0 {
		if err := models.IncrementRecordedHours(tx, *updated.ActiveProjectId, hours); err != nil {
			config.LogError(logger, "timeAccounting.go", "ProcessPresenceOffline", "IncrementRecordedHours", *updated.ActiveProjectId, err)
		}
	}

	if err := models.ClearActiveTask(updated.UserId); err != nil {
		config.LogError(logger, "timeAccounting.go", "ProcessPresenceOffline", "ClearActiveTask", updated.UserId, err)
	}
	if err := models.ClearPresenceActiveFields(updated.UserId); err != nil {
		config.LogError(logger, "timeAccounting.go", "ProcessPresenceOffline", "ClearPresenceActiveFields", updated.UserId, err)
	}
	return nil
}
