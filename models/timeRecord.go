package models

import (
	"context"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
	"gorm.io/gorm"
)

// TimeRecord is one technician work interval on a project. Immutable once
// written; each record contributes exactly once to the project's
// recorded_hours accumulator.
type TimeRecord struct {
	ID           int        `gorm:"primary_key" json:"id"`
	TechnicianId int        `gorm:"index;not null" json:"technician_id"`
	ProjectId    int        `gorm:"index;not null" json:"project_id"`
	FechaInicio  *time.Time `json:"fecha_inicio,omitempty"`
	FechaFin     *time.Time `json:"fecha_fin,omitempty"`
	// Synthesized records come from a disconnect event instead of an
	// explicit clock-out.
	Synthesized bool      `gorm:"not null;default:false" json:"synthesized"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewTimeRecord struct {
	TechnicianId int        `json:"technician_id" binding:"required"`
	ProjectId    int        `json:"project_id" binding:"required"`
	FechaInicio  *time.Time `json:"fecha_inicio" binding:"required"`
	FechaFin     *time.Time `json:"fecha_fin"`
}

// CreateTimeRecord writes an explicit clock-out record. A record without
// FechaFin is in progress; the accrual trigger skips it until the UI writes
// the end time and re-triggers.
func CreateTimeRecord(ctx context.Context, input *NewTimeRecord) (*TimeRecord, error) {
	db := config.GetDB()

	record := TimeRecord{
		TechnicianId: input.TechnicianId,
		ProjectId:    input.ProjectId,
		FechaInicio:  input.FechaInicio,
		FechaFin:     input.FechaFin,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	// Keep the active-task marker in step with the record: a clock-in sets
	// it, a clock-out clears it. Best-effort; the marker only feeds the
	// disconnect synthesis.
	if record.FechaFin == nil && record.FechaInicio != nil {
		task := ActiveTask{ProjectId: record.ProjectId, StartedAt: *record.FechaInicio}
		if err := SetActiveTask(record.TechnicianId, &task); err != nil {
			config.LogError(config.GetLogger(), "timeRecord.go", "CreateTimeRecord", "SetActiveTask", record.TechnicianId, err)
		}
	} else {
		if err := ClearActiveTask(record.TechnicianId); err != nil {
			config.LogError(config.GetLogger(), "timeRecord.go", "CreateTimeRecord", "ClearActiveTask", record.TechnicianId, err)
		}
	}

	PublishTrigger(ctx, CollectionTimeRecords, record.ID, config.TriggerActionCreate, nil, &record)
	return &record, nil
}

// InsertSynthesizedTimeRecord persists a record built from a disconnect
// event. It does NOT publish a trigger: the disconnect handler increments
// the hour accumulator itself, and a trigger here would double count.
func InsertSynthesizedTimeRecord(tx *gorm.DB, record *TimeRecord) error {
	record.Synthesized = true
	return tx.Create(record).Error
}

// DurationHours is the elapsed time of a closed record in hours.
func (r *TimeRecord) DurationHours() float64 {
	if r.FechaInicio == nil || r.FechaFin == nil {
		return 0
	}
	return r.FechaFin.Sub(*r.FechaInicio).Hours()
}
