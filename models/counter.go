package models

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Counter holds one year-scoped sequence per domain (projects, delivery
// notes). Mutated only inside a transaction so that no two concurrent
// creators receive the same sequence.
type Counter struct {
	ID       int    `gorm:"primary_key" json:"id"`
	Domain   string `gorm:"size:50;not null;uniqueIndex:idx_counter_domain_year" json:"domain"`
	Year     int    `gorm:"not null;uniqueIndex:idx_counter_domain_year" json:"year"`
	Sequence int    `gorm:"not null" json:"sequence"`
}

// NextSequence allocates the next sequence for (domain, year) under a row
// lock. The read-increment-write runs inside one transaction; a conflicting
// concurrent writer blocks on the lock rather than double-allocating.
func NextSequence(ctx context.Context, db *gorm.DB, domain string, year int) (int, error) {
	var next int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Make sure the row exists; a concurrent insert loses silently.
		seed := Counter{Domain: domain, Year: year, Sequence: 0}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		var counter Counter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("domain = ? AND year = ?", domain, year).
			First(&counter).Error; err != nil {
			return err
		}

		counter.Sequence++
		if err := tx.Model(&Counter{}).
			Where("id = ?", counter.ID).
			Update("sequence", counter.Sequence).Error; err != nil {
			return err
		}
		next = counter.Sequence
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("allocate sequence %s-%d: %w", domain, year, err)
	}
	return next, nil
}

// FormatNPU builds the immutable project code. Field widths are user-facing
// and compared as strings elsewhere, so the zero padding is load-bearing:
// client 3, service 4, provider 2, sequence 3, year suffix 2.
func FormatNPU(clientNumericId int, serviceNumericId int, providerNumericId int, sequence int, year int) string {
	return fmt.Sprintf("%03d-%04d-%02d-%03d%02d",
		clientNumericId,
		serviceNumericId,
		providerNumericId,
		sequence,
		year%100,
	)
}
