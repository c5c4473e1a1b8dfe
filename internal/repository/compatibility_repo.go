package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
)

// CompatibilityRepository memoizes scorer results per canonical pair.
type CompatibilityRepository struct {
	db *gorm.DB
}

func NewCompatibilityRepository(database *gorm.DB) *CompatibilityRepository {
	return &CompatibilityRepository{db: database}
}

// Get returns the stored entry for p, or nil.
func (r *CompatibilityRepository) Get(ctx context.Context, p pair.Pair) (*db.CompatibilityEntry, error) {
	var e db.CompatibilityEntry
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", p.Low, p.High).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Upsert stores e, replacing any previous result for the pair.
func (r *CompatibilityRepository) Upsert(ctx context.Context, e *db.CompatibilityEntry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_low_id"}, {Name: "user_high_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "breakdown", "computed_at"}),
		}).
		Create(e).Error
}

