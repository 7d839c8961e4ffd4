package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"gorm.io/gorm"
)

// LogEntry is an append-only note attached to a project. Entries are only
// removed in bulk when the owning project reaches an approved terminal state.
type LogEntry struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ProjectId     int       `gorm:"index;not null" json:"project_id"`
	AutorNombre   string    `gorm:"size:255;not null" json:"autor_nombre"`
	Mensaje       string    `gorm:"type:text;not null" json:"mensaje" binding:"required"`
	AttachmentUrl *string   `gorm:"size:1024" json:"attachment_url,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewLogEntry struct {
	ProjectId     int     `json:"project_id" binding:"required"`
	Mensaje       string  `json:"mensaje" binding:"required"`
	AttachmentUrl *string `json:"attachment_url"`
}

func CreateLogEntry(ctx context.Context, input *NewLogEntry) (*LogEntry, error) {
	db := config.GetDB()

	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		return nil, errors.New("user name is required")
	}

	// The dashboard uploads first and sends back the bare object key; store
	// the resolvable access URL instead.
	attachment := input.AttachmentUrl
	if attachment != nil && *attachment != "" && !strings.Contains(*attachment, "://") {
		full := utils.BuildObjectAccessURL(*attachment)
		attachment = &full
	}

	entry := LogEntry{
		ProjectId:     input.ProjectId,
		AutorNombre:   userName,
		Mensaje:       input.Mensaje,
		AttachmentUrl: attachment,
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}

	PublishTrigger(ctx, CollectionLogs, entry.ID, config.TriggerActionCreate, nil, &entry)
	return &entry, nil
}

// DeleteLogEntriesByProject bulk-deletes every entry for the project in one
// batch. Zero matching entries is a no-op, not an error.
func DeleteLogEntriesByProject(tx *gorm.DB, projectId int) (int64, error) {
	result := tx.Where("project_id = ?", projectId).Delete(&LogEntry{})
	return result.RowsAffected, result.Error
}
