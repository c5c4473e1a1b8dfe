package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

// AuditRepository appends status transitions. Rows are never updated.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(database *gorm.DB) *AuditRepository {
	return &AuditRepository{db: database}
}

func (r *AuditRepository) Append(ctx context.Context, rec *db.StatusAuditRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListForEntity returns the trail for one entity in insertion order.
func (r *AuditRepository) ListForEntity(ctx context.Context, entityType, entityID string) ([]db.StatusAuditRecord, error) {
	var recs []db.StatusAuditRecord
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id ASC").
		Find(&recs).Error
	return recs, err
}
