// Package sequence hands out gapless per-name counters. A number is taken
// inside the caller's transaction, so a rollback returns it.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/comanda/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	OrderNumbers   = "order_number"
	ClosingNumbers = "closing_number"

	maxAttempts = 5
)

var ErrContention = errors.New("sequence_contention")

type Sequence struct {
	Name       string    `gorm:"primaryKey;size:64"`
	NextNumber int64     `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (Sequence) TableName() string { return "sequences" }

// Next returns the next number of the named sequence using tx.
func Next(ctx context.Context, tx *gorm.DB, name string, now time.Time) (int64, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var seq Sequence
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", name).
			Take(&seq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created := Sequence{Name: name, NextNumber: 2, UpdatedAt: now}
			if err := tx.WithContext(ctx).Create(&created).Error; err != nil {
				if db.IsDuplicateKeyErr(err) {
					continue
				}
				return 0, err
			}
			return 1, nil
		}
		if err != nil {
			return 0, err
		}

		res := tx.WithContext(ctx).Exec(
			`UPDATE sequences SET next_number = next_number + 1, updated_at = ? WHERE name = ? AND next_number = ?`,
			now, name, seq.NextNumber,
		)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			return seq.NextNumber, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrContention, name)
}

// Ensure creates the named sequence starting at 1 when absent.
func Ensure(ctx context.Context, tx *gorm.DB, name string, now time.Time) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Sequence{Name: name, NextNumber: 1, UpdatedAt: now}).Error
}
