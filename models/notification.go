package models

import (
	"context"
	"time"

	"bitbucket.org/serviconsa/portal_backend/config"
	"gorm.io/gorm"
)

// Notification is the in-app copy of a sent notice. The read-cleanup trigger
// deletes a row once the user marks it read.
type Notification struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserId    int       `gorm:"index;not null" json:"user_id"`
	ProjectId *int      `gorm:"index" json:"project_id,omitempty"`
	Mensaje   string    `gorm:"type:text;not null" json:"mensaje"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateNotification(tx *gorm.DB, notification *Notification) error {
	return tx.Create(notification).Error
}

// MarkNotificationRead flips the flag and publishes the update so the
// cleanup trigger can delete the row.
func MarkNotificationRead(ctx context.Context, id int) error {
	db := config.GetDB()

	var notification Notification
	if err := db.WithContext(ctx).First(&notification, "id = ?", id).Error; err != nil {
		return err
	}

	old := notification
	notification.Read = true
	if err := db.WithContext(ctx).Save(&notification).Error; err != nil {
		return err
	}

	PublishTrigger(ctx, CollectionNotifications, notification.ID, config.TriggerActionUpdate, &old, &notification)
	return nil
}

func DeleteNotification(tx *gorm.DB, id int) error {
	return tx.Delete(&Notification{}, "id = ?", id).Error
}
