package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"github.com/google/uuid"
)

// PublishTrigger emits a document-change event onto the trigger topic after a
// committed write. The write is the source of truth: a publish failure is
// logged and swallowed, never rolled back.
func PublishTrigger(ctx context.Context, collection string, documentId int, action string, oldObj interface{}, newObj interface{}) {
	logger := config.GetLogger()

	var oldInByte, newInByte []byte
	var err error
	if oldObj != nil {
		oldInByte, err = json.Marshal(oldObj)
		if err != nil {
			config.LogError(logger, "base.go", "PublishTrigger", "Marshal oldObj", collection, err)
			return
		}
	}
	if newObj != nil {
		newInByte, err = json.Marshal(newObj)
		if err != nil {
			config.LogError(logger, "base.go", "PublishTrigger", "Marshal newObj", collection, err)
			return
		}
	}

	event := config.TriggerEvent{
		EventId:       uuid.NewString(),
		Collection:    collection,
		DocumentId:    documentId,
		Action:        action,
		OldObj:        oldInByte,
		NewObj:        newInByte,
		OccurredAt:    time.Now().UTC(),
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	if _, err := config.PublishTriggerEvent(ctx, event); err != nil {
		config.LogError(logger, "base.go", "PublishTrigger", "PublishTriggerEvent", event.Collection, err)
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
