package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
)

// Repository manages persistence for ledger entries. The surface is
// deliberately insert-and-read only: the append-only invariant is
// enforced structurally, not by discipline in callers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entry *models.LedgerEntry) error
	Latest(ctx context.Context, entityID uuid.UUID) (*models.LedgerEntry, error)
	LatestSequence(ctx context.Context, entityID uuid.UUID) (int64, error)
	ListRange(ctx context.Context, entityID uuid.UUID, fromSeq, toSeq int64) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Latest(ctx context.Context, entityID uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("sequence_number DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) LatestSequence(ctx context.Context, entityID uuid.UUID) (int64, error) {
	entry, err := r.Latest(ctx, entityID)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, nil
	}
	return entry.SequenceNumber, nil
}

func (r *repository) ListRange(ctx context.Context, entityID uuid.UUID, fromSeq, toSeq int64) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Where("sequence_number >= ?", fromSeq)
	if toSeq > 0 {
		q = q.Where("sequence_number <= ?", toSeq)
	}
	if err := q.Order("sequence_number ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
