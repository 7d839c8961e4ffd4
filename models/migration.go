package models

import "bitbucket.org/serviconsa/portal_backend/config"

// Migrate creates/updates the portal schema. Called from main after the DB
// connection is up.
func Migrate() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&User{},
		&Project{},
		&Counter{},
		&LogEntry{},
		&TimeRecord{},
		&Invoice{},
		&Notification{},
		&IdempotencyKey{},
	)
}
