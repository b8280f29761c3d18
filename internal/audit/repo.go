package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	pkgpagination "github.com/taxnovahq/taxnova-backend/pkg/pagination"
)

// runListQuery scopes a cursor-paginated run listing.
type runListQuery struct {
	entityID uuid.UUID
	limit    int
	cursor   *pkgpagination.Cursor
}

// Repository manages persistence for audit runs and findings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRun(ctx context.Context, run *models.AuditRun) error
	SaveRun(ctx context.Context, run *models.AuditRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.AuditRun, error)
	ListRunsByEntity(ctx context.Context, q runListQuery) ([]models.AuditRun, error)
	InsertFindings(ctx context.Context, findings []models.AuditFinding) error
	GetFinding(ctx context.Context, id uuid.UUID) (*models.AuditFinding, error)
	SaveFinding(ctx context.Context, finding *models.AuditFinding) error
	ListFindingsByRun(ctx context.Context, runID uuid.UUID) ([]models.AuditFinding, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRun(ctx context.Context, run *models.AuditRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *repository) SaveRun(ctx context.Context, run *models.AuditRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *repository) GetRun(ctx context.Context, id uuid.UUID) (*models.AuditRun, error) {
	var run models.AuditRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// ListRunsByEntity returns entity-scoped runs using cursor pagination.
func (r *repository) ListRunsByEntity(ctx context.Context, q runListQuery) ([]models.AuditRun, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditRun{}).Where("entity_id = ?", q.entityID)

	if q.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", q.cursor.CreatedAt, q.cursor.CreatedAt, q.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(q.limit)

	var runs []models.AuditRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *repository) InsertFindings(ctx context.Context, findings []models.AuditFinding) error {
	if len(findings) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&findings).Error
}

func (r *repository) GetFinding(ctx context.Context, id uuid.UUID) (*models.AuditFinding, error) {
	var finding models.AuditFinding
	err := r.db.WithContext(ctx).First(&finding, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &finding, nil
}

func (r *repository) SaveFinding(ctx context.Context, finding *models.AuditFinding) error {
	return r.db.WithContext(ctx).Save(finding).Error
}

func (r *repository) ListFindingsByRun(ctx context.Context, runID uuid.UUID) ([]models.AuditFinding, error) {
	var findings []models.AuditFinding
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC, id ASC").
		Find(&findings).Error
	if err != nil {
		return nil, err
	}
	return findings, nil
}
