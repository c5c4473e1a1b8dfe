package repository

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
)

// MatchRepository reads and writes matches keyed by the canonical pair.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// FindByPair returns the match for p, or nil when none exists.
func (r *MatchRepository) FindByPair(ctx context.Context, p pair.Pair) (*db.Match, error) {
	return r.findByPair(r.db.WithContext(ctx), p)
}

// FindByPairForUpdate is FindByPair with a row lock where the dialect has one.
// Only meaningful inside a transaction.
func (r *MatchRepository) FindByPairForUpdate(ctx context.Context, p pair.Pair) (*db.Match, error) {
	return r.findByPair(lockForUpdate(r.db.WithContext(ctx)), p)
}

func (r *MatchRepository) findByPair(q *gorm.DB, p pair.Pair) (*db.Match, error) {
	var m db.Match
	err := q.Where("user_low_id = ? AND user_high_id = ?", p.Low, p.High).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateIfAbsent inserts m unless a match for the same pair exists.
// Returns false when another writer got there first.
func (r *MatchRepository) CreateIfAbsent(ctx context.Context, m *db.Match) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_low_id"}, {Name: "user_high_id"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// PatchScore fills in a score on a record that has none or only the fallback.
// A record that already carries a real score is left alone.
func (r *MatchRepository) PatchScore(
	ctx context.Context,
	id string,
	score float64,
	fallback bool,
	breakdown datatypes.JSON,
) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND (compatibility_score IS NULL OR score_fallback = ?)", id, true).
		Updates(map[string]any{
			"compatibility_score": score,
			"score_fallback":      fallback,
			"score_breakdown":     breakdown,
		})
	return res.RowsAffected, res.Error
}

// SetConversation links the conversation when the match has none yet.
func (r *MatchRepository) SetConversation(ctx context.Context, matchID, conversationID string) error {
	return r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND conversation_id IS NULL", matchID).
		Update("conversation_id", conversationID).Error
}

// SetSourceRequest records the request that formed the match, first writer wins.
func (r *MatchRepository) SetSourceRequest(ctx context.Context, matchID, requestID string) error {
	return r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND source_request_id IS NULL", matchID).
		Update("source_request_id", requestID).Error
}

// TransitionStatus moves the match to `to` only while it is in one of `from`.
// Zero rows affected means the guard did not hold.
func (r *MatchRepository) TransitionStatus(
	ctx context.Context,
	id string,
	from []db.MatchStatus,
	to db.MatchStatus,
) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// ListForUser returns the user's matches in the given status, newest first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID uint64, status db.MatchStatus, limit int) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("(user_low_id = ? OR user_high_id = ?) AND status = ?", userID, userID, status).
		Order("matched_at DESC").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

// lockForUpdate adds SELECT ... FOR UPDATE on dialects that support it.
// sqlite serializes writers on its own.
func lockForUpdate(q *gorm.DB) *gorm.DB {
	if q.Dialector.Name() == "sqlite" {
		return q
	}
	return q.Clauses(clause.Locking{Strength: "UPDATE"})
}
