package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(database *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: database}
}

func (r *ConversationRepository) WithTx(tx *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

// FindByPair returns the conversation for p, or nil.
func (r *ConversationRepository) FindByPair(ctx context.Context, p pair.Pair) (*db.Conversation, error) {
	var c db.Conversation
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", p.Low, p.High).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOrCreate returns the pair's conversation, creating it for matchID when
// missing. Concurrent callers converge on the same row.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, p pair.Pair, matchID, newID string) (*db.Conversation, error) {
	existing, err := r.FindByPair(ctx, p)
	if err != nil || existing != nil {
		return existing, err
	}

	conv := &db.Conversation{
		ID:         newID,
		UserLowID:  p.Low,
		UserHighID: p.High,
		MatchID:    matchID,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(conv)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return conv, nil
	}
	return r.FindByPair(ctx, p)
}
