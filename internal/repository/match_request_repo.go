package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
)

// MatchRequestRepository owns the match_requests table. Every status change
// goes through a conditional update so concurrent transitions cannot both win.
type MatchRequestRepository struct {
	db *gorm.DB
}

func NewMatchRequestRepository(database *gorm.DB) *MatchRequestRepository {
	return &MatchRequestRepository{db: database}
}

func (r *MatchRequestRepository) WithTx(tx *gorm.DB) *MatchRequestRepository {
	return &MatchRequestRepository{db: tx}
}

// Get loads a request by id, or nil.
func (r *MatchRequestRepository) Get(ctx context.Context, id string) (*db.MatchRequest, error) {
	var req db.MatchRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// FindByOrderedPair returns the request from requester to target, or nil.
func (r *MatchRequestRepository) FindByOrderedPair(ctx context.Context, requesterID, targetID uint64) (*db.MatchRequest, error) {
	var req db.MatchRequest
	err := r.db.WithContext(ctx).
		Where("requester_id = ? AND target_id = ?", requesterID, targetID).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *MatchRequestRepository) Create(ctx context.Context, req *db.MatchRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// Reopen turns a terminal or lapsed request back into a pending one.
// A request that is still live is not touched.
func (r *MatchRequestRepository) Reopen(ctx context.Context, req *db.MatchRequest, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.MatchRequest{}).
		Where("id = ? AND (status <> ? OR expires_at <= ?)", req.ID, db.RequestPending, now).
		Updates(map[string]any{
			"status":                 db.RequestPending,
			"expires_at":             req.ExpiresAt,
			"responded_at":           nil,
			"compatibility_snapshot": req.CompatibilitySnapshot,
		})
	return res.RowsAffected, res.Error
}

// ConfirmForPair marks the request confirmed if it is still pending, not
// expired, and belongs to p in either direction.
func (r *MatchRequestRepository) ConfirmForPair(ctx context.Context, id string, p pair.Pair, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.MatchRequest{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, db.RequestPending, now).
		Where("((requester_id = ? AND target_id = ?) OR (requester_id = ? AND target_id = ?))",
			p.Low, p.High, p.High, p.Low).
		Updates(map[string]any{"status": db.RequestConfirmed, "responded_at": now})
	return res.RowsAffected, res.Error
}

// Respond moves a live pending request to a terminal status on behalf of the
// given party column ("target_id" or "requester_id").
func (r *MatchRequestRepository) Respond(
	ctx context.Context,
	id string,
	party string,
	userID uint64,
	to db.RequestStatus,
	now time.Time,
) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.MatchRequest{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, db.RequestPending, now).
		Where(party+" = ?", userID).
		Updates(map[string]any{"status": to, "responded_at": now})
	return res.RowsAffected, res.Error
}

// ListExpired returns pending requests whose TTL has lapsed.
func (r *MatchRequestRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]db.MatchRequest, error) {
	var reqs []db.MatchRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", db.RequestPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}

// Expire flips one lapsed pending request to expired.
func (r *MatchRequestRepository) Expire(ctx context.Context, id string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.MatchRequest{}).
		Where("id = ? AND status = ? AND expires_at <= ?", id, db.RequestPending, now).
		Update("status", db.RequestExpired)
	return res.RowsAffected, res.Error
}

// ListPendingForTarget returns live incoming requests, newest first.
func (r *MatchRequestRepository) ListPendingForTarget(ctx context.Context, targetID uint64, now time.Time, limit int) ([]db.MatchRequest, error) {
	var reqs []db.MatchRequest
	err := r.db.WithContext(ctx).
		Where("target_id = ? AND status = ? AND expires_at > ?", targetID, db.RequestPending, now).
		Order("created_at DESC").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}
