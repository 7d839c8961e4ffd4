package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"bitbucket.org/serviconsa/portal_backend/workflow"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

var (
	documentMutexMap = make(map[string]*sync.Mutex)
	globalMutex      = &sync.Mutex{}
)

// RunTriggerWorkflow starts the streaming trigger subscriber. Each event is
// handled independently; the only serialization is per document, so two
// events for the same project never interleave within this instance.
func RunTriggerWorkflow() error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	// Number of concurrent trigger invocations.
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		event := config.TriggerEvent{}
		err := json.Unmarshal(msg.Data, &event)
		if err != nil {
			config.LogError(logger, "portalTriggers.go", "RunTriggerWorkflow", "Unmarshaling trigger event", msg.Data, err)
			// Poisoned payload; redelivery cannot fix it.
			msg.Ack()
			return
		}

		// Get or create the mutex for this document.
		key := fmt.Sprintf("%s:%d", event.Collection, event.DocumentId)
		globalMutex.Lock()
		mutex, exists := documentMutexMap[key]
		if !exists {
			mutex = &sync.Mutex{}
			documentMutexMap[key] = mutex
		}
		globalMutex.Unlock()

		mutex.Lock()
		defer mutex.Unlock()

		ctx = utils.SetUserNameInContext(ctx, "System")
		if event.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, event.CorrelationId)
		}
		if err := workflow.ProcessTriggerEvent(ctx, logger, event); err != nil {
			logger.WithFields(logrus.Fields{
				"field":      "TriggerWorkflow",
				"collection": event.Collection,
				"document":   event.DocumentId,
				"message_id": msg.ID,
			}).Error("trigger processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		err := sub.Receive(ctx, callback)
		if err != nil {
			config.LogError(logger, "portalTriggers.go", "RunTriggerWorkflow", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}
