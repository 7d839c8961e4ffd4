package workflow

import (
	"context"
	"encoding/json"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessTriggerEvent routes one document-change event to its processor.
// Returning an error nacks the message for Pub/Sub redelivery; malformed
// payloads and unknown collections are acked and dropped.
func ProcessTriggerEvent(ctx context.Context, logger *logrus.Logger, event config.TriggerEvent) error {
	db := config.GetDB()
	return processTriggerEvent(ctx, db, logger, DefaultMessagingGateway(), DefaultObjectStore(), event)
}

func processTriggerEvent(ctx context.Context, db *gorm.DB, logger *logrus.Logger, gw MessagingGateway, store ObjectStore, event config.TriggerEvent) error {
	switch event.Collection {
	case models.CollectionLogs:
		if event.Action != config.TriggerActionCreate {
			return nil
		}
		var entry models.LogEntry
		if err := json.Unmarshal(event.NewObj, &entry); err != nil {
			config.LogError(logger, "mainWorkflow.go", "processTriggerEvent", "Unmarshal log entry", event.NewObj, err)
			return nil
		}
		return ProcessLogCreated(ctx, db, logger, gw, &entry)

	case models.CollectionProjects:
		if event.Action != config.TriggerActionUpdate {
			return nil
		}
		var old, updated models.Project
		if err := json.Unmarshal(event.OldObj, &old); err != nil {
			config.LogError(logger, "mainWorkflow.go", "processTriggerEvent", "Unmarshal old project", event.OldObj, err)
			return nil
		}
		if err := json.Unmarshal(event.NewObj, &updated); err != nil {
			config.LogError(logger, "mainWorkflow.go", "processTriggerEvent", "Unmarshal new project", event.NewObj, err)
			return nil
		}
		return ProcessProjectUpdated(ctx, db, logger, gw, store, &old, &updated)

	case models.CollectionTimeRecords:
		if event.Action != config.TriggerActionCreate && event.Action != config.TriggerActionUpdate {
			return nil
		}
		var record models.TimeRecord
		if err := json.Unmarshal(event.NewObj, &record); err != nil {
			config.LogError(logger, "mainWorkflow.go", "processTriggerEvent", "Unmarshal time record", event.NewObj, err)
			return nil
		}
		return runOnce(db, "time-accounting", event.EventId, func(tx *gorm.DB) error {
			return ProcessTimeRecordWritten(tx, logger, &record)
		})

	case models.CollectionPresence:
		if event.Action != config.TriggerActionUpdate {
			return nil
		}
		var old *models.PresenceStatus
		if len(event.OldObj) > 0 {
			old = &models.PresenceStatus{}
			if err := json.Unmarshal(event.OldObj, old); err != nil {
				config.LogError(logger, "mainWorkflow.go", "processTriggerEvent", "Unmarshal old presence", event.OldObj, err)
				old = nil
			}
		}
		var updated models.PresenceStatus
		if err := json.Unmarshal(event.NewObj, &updated); err != nil {
			config.LogError(logger, "mainWorkflow.go", "processTriggerEvent", "Unmarshal new presence", event.NewObj, err)
			return nil
		}
		return runOnce(db, "presence-offline", event.EventId, func(tx *gorm.DB) error {
			return ProcessPresenceOffline(ctx, tx, logger, old, &updated)
		})

	case models.CollectionNotifications:
		if event.Action != config.TriggerActionUpdate {
			return nil
		}
		var notification models.Notification
		if err := json.Unmarshal(event.NewObj, &notification); err != nil {
			config.LogError(logger, "mainWorkflow.go", "processTriggerEvent", "Unmarshal notification", event.NewObj, err)
			return nil
		}
		if !notification.Read {
			return nil
		}
		if err := models.DeleteNotification(db, notification.ID); err != nil {
			config.LogError(logger, "mainWorkflow.go", "processTriggerEvent", "DeleteNotification", notification.ID, err)
		}
		return nil

	default:
		logger.WithFields(logrus.Fields{
			"module":     "mainWorkflow.go",
			"collection": event.Collection,
			"action":     event.Action,
		}).Warn("unknown trigger collection; dropping")
		return nil
	}
}

// runOnce wraps a non-idempotent processor in a transaction guarded by a
// durable idempotency key: Pub/Sub delivery is at-least-once, and a
// redelivered accrual event must not increment twice. Events without an id
// (older producers) run unguarded.
func runOnce(db *gorm.DB, handlerName string, eventId string, fn func(tx *gorm.DB) error) error {
	if eventId == "" {
		return fn(db)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		skip, err := BeginIdempotency(tx, handlerName, eventId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		if err := fn(tx); err != nil {
			_ = MarkIdempotencyFailed(tx, handlerName, eventId, err)
			return err
		}
		return MarkIdempotencySucceeded(tx, handlerName, eventId)
	})
}

// ProcessProjectUpdated runs the full project-updated trigger: notification
// fanout first, then the lifecycle side effects. Notification failures never
// roll back or block the side effects.
func ProcessProjectUpdated(ctx context.Context, db *gorm.DB, logger *logrus.Logger, gw MessagingGateway, store ObjectStore, old *models.Project, updated *models.Project) error {
	notices := PlanProjectNotices(old, updated)
	SendProjectNotices(ctx, db, logger, gw, updated, notices)

	plan := PlanLifecycleEffects(old, updated)
	ApplyLifecycleEffects(ctx, db, logger, store, updated, plan)
	return nil
}
