package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

// RateLimitRepository keeps fixed-window counters in the database.
type RateLimitRepository struct {
	db *gorm.DB
}

func NewRateLimitRepository(database *gorm.DB) *RateLimitRepository {
	return &RateLimitRepository{db: database}
}

// Increment atomically creates the window at count 1 or bumps its count, and
// returns the row as left by this call.
//
// The increment is a single INSERT ... ON CONFLICT DO UPDATE, so concurrent
// callers never lose an update; the read happens in the same transaction.
func (r *RateLimitRepository) Increment(
	ctx context.Context,
	identifier string,
	windowStart int64,
	limit int64,
	resetAt time.Time,
) (db.RateLimitWindow, error) {
	var out db.RateLimitWindow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := db.RateLimitWindow{
			Identifier:   identifier,
			WindowStart:  windowStart,
			RequestCount: 1,
			RequestLimit: limit,
			ResetAt:      resetAt,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "identifier"}, {Name: "window_start"}},
			DoUpdates: clause.Assignments(map[string]any{
				"request_count": gorm.Expr("rate_limit_windows.request_count + 1"),
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("identifier = ? AND window_start = ?", identifier, windowStart).
			First(&out).Error
	})
	return out, err
}

// Get returns the window row, or a zero row when the window has not started.
func (r *RateLimitRepository) Get(ctx context.Context, identifier string, windowStart int64) (db.RateLimitWindow, error) {
	var out db.RateLimitWindow
	err := r.db.WithContext(ctx).
		Where("identifier = ? AND window_start = ?", identifier, windowStart).
		Limit(1).
		Find(&out).Error
	return out, err
}

// DeleteExpired removes windows that reset before cutoff.
func (r *RateLimitRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("reset_at < ?", cutoff).
		Delete(&db.RateLimitWindow{})
	return res.RowsAffected, res.Error
}
