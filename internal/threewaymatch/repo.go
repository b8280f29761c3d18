package threewaymatch

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
)

// Repository manages persistence for match records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.MatchRecord, error)
	FindByDocuments(ctx context.Context, poID, grnID, invoiceID uuid.UUID) (*models.MatchRecord, error)
	Create(ctx context.Context, record *models.MatchRecord) error
	Save(ctx context.Context, record *models.MatchRecord) error
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.MatchRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a match record repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.MatchRecord, error) {
	var record models.MatchRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindByDocuments(ctx context.Context, poID, grnID, invoiceID uuid.UUID) (*models.MatchRecord, error) {
	var record models.MatchRecord
	err := r.db.WithContext(ctx).
		Where("po_id = ? AND grn_id = ? AND invoice_id = ?", poID, grnID, invoiceID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) Create(ctx context.Context, record *models.MatchRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Save(ctx context.Context, record *models.MatchRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *repository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.MatchRecord, error) {
	var records []models.MatchRecord
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
