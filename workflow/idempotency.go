package workflow

import (
	"errors"
	"time"

	"bitbucket.org/serviconsa/portal_backend/models"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"gorm.io/gorm"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// A STARTED row older than this is treated as abandoned and reclaimed.
const idempotencyStaleAfter = 5 * time.Minute

// BeginIdempotency inserts STARTED for (handlerName, eventId). If SUCCEEDED
// exists, returns (true, nil) meaning "skip safely". A fresh STARTED row from
// another worker returns ErrIdempotencyInProgress so Pub/Sub retries later.
func BeginIdempotency(tx *gorm.DB, handlerName, eventId string) (skip bool, err error) {
	key := models.IdempotencyKey{
		HandlerName: handlerName,
		EventId:     eventId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !utils.IsDuplicateEntry(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("handler_name = ? AND event_id = ?", handlerName, eventId).
		First(&existing).Error; err != nil {
		return false, err
	}

	skip, retryLater := idempotencyDecision(&existing, time.Now())
	if skip {
		return true, nil
	}
	if retryLater {
		return false, ErrIdempotencyInProgress
	}
	// FAILED or stale STARTED: reclaim the row and reprocess.
	return false, tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
}

// idempotencyDecision classifies an existing key: skip a completed one, back
// off a fresh in-flight one, reclaim anything else.
func idempotencyDecision(existing *models.IdempotencyKey, now time.Time) (skip bool, retryLater bool) {
	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, false
	case models.IdempotencyStatusStarted:
		if now.Sub(existing.UpdatedAt) < idempotencyStaleAfter {
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

func MarkIdempotencySucceeded(tx *gorm.DB, handlerName, eventId string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND event_id = ?", handlerName, eventId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

func MarkIdempotencyFailed(tx *gorm.DB, handlerName, eventId string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND event_id = ?", handlerName, eventId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
