package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
)

// PresenceStatus is the per-user live-status record kept in Redis and
// mirrored onto the trigger topic whenever it changes.
type PresenceStatus struct {
	UserId          int        `json:"user_id"`
	State           string     `json:"state"` // online | offline
	ActiveProjectId *int       `json:"active_project_id,omitempty"`
	ActiveTaskStart *time.Time `json:"active_task_start,omitempty"`
	LastChanged     time.Time  `json:"last_changed"`
}

const (
	PresenceStateOnline  = "online"
	PresenceStateOffline = "offline"
)

func presenceKey(userId int) string {
	return fmt.Sprintf("presence:%d", userId)
}

func activeTaskKey(userId int) string {
	return fmt.Sprintf("activetask:%d", userId)
}

// ActiveTask marks what a technician is currently clocked into.
type ActiveTask struct {
	ProjectId int       `json:"project_id"`
	StartedAt time.Time `json:"started_at"`
}

func GetPresenceStatus(userId int) (*PresenceStatus, bool, error) {
	var status PresenceStatus
	found, err := config.GetRedisObject(presenceKey(userId), &status)
	if err != nil || !found {
		return nil, false, err
	}
	return &status, true, nil
}

// SetPresenceStatus stores the new record and publishes the transition so
// the offline handler can observe it.
func SetPresenceStatus(ctx context.Context, status *PresenceStatus) error {
	old, _, err := GetPresenceStatus(status.UserId)
	if err != nil {
		config.LogError(config.GetLogger(), "presence.go", "SetPresenceStatus", "GetPresenceStatus", status.UserId, err)
	}

	if status.LastChanged.IsZero() {
		status.LastChanged = time.Now().UTC()
	}

	// The active-task marker is the server-side source of truth: a
	// disconnect report often arrives without the task fields.
	if status.ActiveProjectId == nil {
		if task, found, err := GetActiveTask(status.UserId); err == nil && found {
			status.ActiveProjectId = &task.ProjectId
			start := task.StartedAt
			status.ActiveTaskStart = &start
		}
	}
	if err := config.SetRedisObject(presenceKey(status.UserId), status, 0); err != nil {
		return err
	}

	var oldObj interface{}
	if old != nil {
		oldObj = old
	}
	PublishTrigger(ctx, CollectionPresence, status.UserId, config.TriggerActionUpdate, oldObj, status)
	return nil
}

func SetActiveTask(userId int, task *ActiveTask) error {
	return config.SetRedisObject(activeTaskKey(userId), task, 0)
}

func GetActiveTask(userId int) (*ActiveTask, bool, error) {
	var task ActiveTask
	found, err := config.GetRedisObject(activeTaskKey(userId), &task)
	if err != nil || !found {
		return nil, false, err
	}
	return &task, true, nil
}

func ClearActiveTask(userId int) error {
	return config.RemoveRedisKey(activeTaskKey(userId))
}

// ClearPresenceActiveFields removes the active-task fields from the stored
// presence record once the interval has been synthesized, so the next
// online → offline cycle cannot carry them again. No trigger is published:
// this is bookkeeping on an already-processed transition.
func ClearPresenceActiveFields(userId int) error {
	status, found, err := GetPresenceStatus(userId)
	if err != nil || !found {
		return err
	}
	if status.ActiveProjectId == nil && status.ActiveTaskStart == nil {
		return nil
	}
	status.ActiveProjectId = nil
	status.ActiveTaskStart = nil
	return config.SetRedisObject(presenceKey(userId), status, 0)
}
