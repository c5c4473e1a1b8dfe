package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/utils/pagination"
)

// SwipeRepository provides data access methods for the Swipe model.
// It encapsulates all queries related to likes/passes between users.
type SwipeRepository struct {
	db *gorm.DB
}

// NewSwipeRepository creates a new repository bound to the given DB connection.
func NewSwipeRepository(database *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *SwipeRepository) WithTx(tx *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: tx}
}

// Upsert inserts or updates the swipe made by swiper -> swiped.
//
// Behavior:
//   - If (swiper_id, swiped_id) exists → the row is updated with the new decision.
//   - If it doesn’t exist → a new row is inserted.
//   - Composite PK ensures overwrite guarantee.
//
// Returns the previous decision, empty when the swipe is new.
func (r *SwipeRepository) Upsert(
	ctx context.Context,
	swiperID, swipedID uint64,
	decision db.SwipeDecision,
) (db.SwipeDecision, error) {
	var prev db.SwipeDecision
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing db.Swipe
		err := tx.Where("swiper_id = ? AND swiped_id = ?", swiperID, swipedID).
			Limit(1).Find(&existing).Error
		if err != nil {
			return err
		}
		prev = existing.Decision

		swipe := db.Swipe{SwiperID: swiperID, SwipedID: swipedID, Decision: decision}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "swiper_id"}, {Name: "swiped_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"decision", "updated_at"}),
		}).Create(&swipe).Error
	})
	return prev, err
}

// HasLiked checks whether swiper has liked swiped.
//
// Used for the reverse-like check on every like.
func (r *SwipeRepository) HasLiked(
	ctx context.Context,
	swiperID, swipedID uint64,
) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("swiper_id = ? AND swiped_id = ? AND decision = ?", swiperID, swipedID, db.DecisionLike).
		Count(&count).Error
	return count > 0, err
}

// SwipedTargets returns everyone the swiper already decided on.
func (r *SwipeRepository) SwipedTargets(ctx context.Context, swiperID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("swiper_id = ?", swiperID).
		Pluck("swiped_id", &ids).Error
	return ids, err
}

// GetLikers returns users who liked the given user.
//
// Behavior:
//   - Only rows where swiped_id = X and decision = like are returned.
//   - Excludes users that X explicitly passed.
//   - Ordered by updated_at DESC, swiper_id DESC.
//   - Supports cursor-based pagination via paginationToken.
func (r *SwipeRepository) GetLikers(
	ctx context.Context,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Swipe, *string, error) {
	return r.likers(ctx, userID, paginationToken, limit, false)
}

// GetNewLikers returns users who liked the given user and have not been
// liked back. Passed users are excluded as in GetLikers.
func (r *SwipeRepository) GetNewLikers(
	ctx context.Context,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Swipe, *string, error) {
	return r.likers(ctx, userID, paginationToken, limit, true)
}

func (r *SwipeRepository) likers(
	ctx context.Context,
	userID uint64,
	paginationToken *string,
	limit int,
	onlyUnreciprocated bool,
) ([]db.Swipe, *string, error) {
	var swipes []db.Swipe

	cursor, err := pagination.Decode(paginationToken)
	if err != nil {
		return nil, nil, err
	}

	query := r.likersQuery(ctx, userID).
		Order("s.updated_at DESC, s.swiper_id DESC").
		Limit(limit + 1)

	if onlyUnreciprocated {
		reciprocated := r.db.
			Table("swipes").
			Select("1").
			Where("swiper_id = s.swiped_id AND swiped_id = s.swiper_id AND decision = ?", db.DecisionLike)
		query = query.Where("NOT EXISTS (?)", reciprocated)
	}

	if !cursor.IsZero() {
		ts := cursor.UpdatedAt()
		query = query.Where(
			"(s.updated_at < ? OR (s.updated_at = ? AND s.swiper_id < ?))",
			ts, ts, cursor.SwiperID,
		)
	}

	if err := query.Find(&swipes).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(swipes) > limit {
		last := swipes[limit-1]
		token := pagination.Encode(pagination.After(last.SwiperID, last.UpdatedAt))
		nextToken = &token
		swipes = swipes[:limit]
	}

	return swipes, nextToken, nil
}

// CountLikers returns how many users liked the given user, excluding the
// ones the user passed. The Redis count is a cache over this query.
func (r *SwipeRepository) CountLikers(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	if err := r.likersQuery(ctx, userID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SwipeRepository) likersQuery(ctx context.Context, userID uint64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("swipes s").
		Where("s.swiped_id = ? AND s.decision = ?", userID, db.DecisionLike).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM swipes s2
				WHERE s2.swiper_id = ?
				  AND s2.swiped_id = s.swiper_id
				  AND s2.decision = ?
			)`, userID, db.DecisionPass)
}
