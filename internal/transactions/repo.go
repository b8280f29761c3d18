package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
)

// Repository reads accounting transactions for the analyzers. The audit
// core never writes transactions; mutation stays with the bookkeeping
// subsystem, which records its changes through the ledger.
type Repository interface {
	ListByEntityPeriod(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]models.Transaction, error)
	ListActiveEntities(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a read-only transaction repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListByEntityPeriod(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]models.Transaction, error) {
	var txns []models.Transaction
	q := r.db.WithContext(ctx).Where("entity_id = ?", entityID)
	if !from.IsZero() {
		q = q.Where("date >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", to)
	}
	if err := q.Order("date ASC, id ASC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListActiveEntities returns the distinct entities with transaction
// activity in the window, for scheduled audit sweeps.
func (r *repository) ListActiveEntities(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := r.db.WithContext(ctx).Model(&models.Transaction{}).Distinct("entity_id")
	if !from.IsZero() {
		q = q.Where("date >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", to)
	}
	if err := q.Order("entity_id ASC").Pluck("entity_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
