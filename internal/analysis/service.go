package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/internal/benford"
	"github.com/taxnovahq/taxnova-backend/internal/zscore"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
)

// BenfordRequest scopes an ad-hoc digit distribution analysis.
type BenfordRequest struct {
	EntityID      uuid.UUID
	Start         time.Time
	End           time.Time
	DigitPosition enums.DigitPosition
}

// ZScoreRequest scopes an ad-hoc outlier detection pass.
type ZScoreRequest struct {
	EntityID  uuid.UUID
	Start     time.Time
	End       time.Time
	GroupBy   enums.GroupBy
	Threshold float64
}

type transactionReader interface {
	ListByEntityPeriod(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]models.Transaction, error)
}

// Service runs the statistical analyzers outside of a persisted audit
// run. Results are returned to the caller and never stored.
type Service interface {
	Benford(ctx context.Context, req BenfordRequest) (*benford.Result, error)
	ZScore(ctx context.Context, req ZScoreRequest) (*zscore.Report, error)
}

type service struct {
	txns    transactionReader
	benford benford.Options
	zscore  zscore.Options
}

// NewService wires the ad-hoc analysis endpoints. The option sets are
// the environment defaults; requests may override position, grouping,
// and threshold per call.
func NewService(txns transactionReader, benfordOpts benford.Options, zscoreOpts zscore.Options) (Service, error) {
	if txns == nil {
		return nil, fmt.Errorf("transaction reader required")
	}
	return &service{txns: txns, benford: benfordOpts, zscore: zscoreOpts}, nil
}

func (s *service) Benford(ctx context.Context, req BenfordRequest) (*benford.Result, error) {
	if err := validateScope(req.EntityID, req.Start, req.End); err != nil {
		return nil, err
	}
	txns, err := s.txns.ListByEntityPeriod(ctx, req.EntityID, req.Start, req.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transactions")
	}
	opts := s.benford
	if req.DigitPosition != "" {
		if !req.DigitPosition.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid digit position %q", req.DigitPosition))
		}
		opts.DigitPosition = req.DigitPosition
	}
	return benford.Analyze(txns, opts)
}

func (s *service) ZScore(ctx context.Context, req ZScoreRequest) (*zscore.Report, error) {
	if err := validateScope(req.EntityID, req.Start, req.End); err != nil {
		return nil, err
	}
	txns, err := s.txns.ListByEntityPeriod(ctx, req.EntityID, req.Start, req.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transactions")
	}
	opts := s.zscore
	if req.GroupBy != "" {
		if !req.GroupBy.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid grouping %q", req.GroupBy))
		}
		opts.GroupBy = req.GroupBy
	}
	if req.Threshold != 0 {
		if req.Threshold < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "threshold must be at least 1")
		}
		opts.Threshold = req.Threshold
	}
	return zscore.Detect(ctx, txns, opts)
}

func validateScope(entityID uuid.UUID, start, end time.Time) error {
	if entityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid analysis period")
	}
	return nil
}
