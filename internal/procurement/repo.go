package procurement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
)

// DocumentTriple links the three procurement documents of one match
// candidate. The invoice and GRN both carry the purchase order id, which
// is how candidates are discovered.
type DocumentTriple struct {
	PurchaseOrder models.PurchaseOrder
	GRN           models.GoodsReceivedNote
	Invoice       models.Invoice
}

// Repository reads procurement documents for the match engine. The
// documents are owned by the purchasing subsystem and are never written
// from here.
type Repository interface {
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	GetGoodsReceivedNote(ctx context.Context, id uuid.UUID) (*models.GoodsReceivedNote, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	ListTriples(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]DocumentTriple, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a read-only procurement repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.db.WithContext(ctx).Preload("Lines").First(&po, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
		}
		return nil, err
	}
	return &po, nil
}

func (r *repository) GetGoodsReceivedNote(ctx context.Context, id uuid.UUID) (*models.GoodsReceivedNote, error) {
	var grn models.GoodsReceivedNote
	err := r.db.WithContext(ctx).Preload("Lines").First(&grn, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "goods received note not found")
		}
		return nil, err
	}
	return &grn, nil
}

func (r *repository) GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).Preload("Lines").First(&inv, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, err
	}
	return &inv, nil
}

// ListTriples finds complete PO + GRN + invoice candidates for an entity
// in the period. An invoice without a PO reference, or a PO with no GRN
// yet, is not a candidate. The invoice date anchors the period filter
// since it is the last document of the three to arrive.
func (r *repository) ListTriples(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]DocumentTriple, error) {
	var invoices []models.Invoice
	q := r.db.WithContext(ctx).Preload("Lines").
		Where("entity_id = ?", entityID).
		Where("po_id IS NOT NULL")
	if !from.IsZero() {
		q = q.Where("invoice_date >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("invoice_date <= ?", to)
	}
	if err := q.Order("invoice_date ASC, id ASC").Find(&invoices).Error; err != nil {
		return nil, err
	}

	var triples []DocumentTriple
	for _, inv := range invoices {
		var po models.PurchaseOrder
		err := r.db.WithContext(ctx).Preload("Lines").First(&po, "id = ?", *inv.POID).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				continue
			}
			return nil, err
		}

		var grn models.GoodsReceivedNote
		err = r.db.WithContext(ctx).Preload("Lines").
			Where("po_id = ?", po.ID).
			Order("received_date ASC").
			First(&grn).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				continue
			}
			return nil, err
		}

		triples = append(triples, DocumentTriple{PurchaseOrder: po, GRN: grn, Invoice: inv})
	}
	return triples, nil
}
