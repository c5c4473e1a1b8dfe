package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

// ProfileRepository reads user profiles and the block list.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

func (r *ProfileRepository) WithTx(tx *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

// Get returns the user, or nil when unknown.
func (r *ProfileRepository) Get(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// BlockedWith returns every user that blocked id or was blocked by id.
func (r *ProfileRepository) BlockedWith(ctx context.Context, id uint64) ([]uint64, error) {
	var blocks []db.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ? OR blocked_id = ?", id, id).
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(blocks))
	for _, b := range blocks {
		if b.BlockerID == id {
			ids = append(ids, b.BlockedID)
		} else {
			ids = append(ids, b.BlockerID)
		}
	}
	return ids, nil
}

// IsBlocked reports a block in either direction.
func (r *ProfileRepository) IsBlocked(ctx context.Context, a, b uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// Block records blocker -> blocked; repeating it is a no-op.
func (r *ProfileRepository) Block(ctx context.Context, blockerID, blockedID uint64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.Block{BlockerID: blockerID, BlockedID: blockedID}).Error
}
