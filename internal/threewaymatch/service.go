package threewaymatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taxnovahq/taxnova-backend/internal/procurement"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/outbox"
)

// Service defines three-way match operations over procurement documents.
type Service interface {
	Match(ctx context.Context, poID, grnID, invoiceID uuid.UUID) (*models.MatchRecord, *Outcome, error)
	Get(ctx context.Context, recordID uuid.UUID) (*models.MatchRecord, error)
	Reject(ctx context.Context, recordID, reviewerID uuid.UUID, reason string) (*models.MatchRecord, error)
	ResetRejection(ctx context.Context, recordID, reviewerID uuid.UUID) (*models.MatchRecord, error)
}

type service struct {
	repo       Repository
	docs       procurement.Repository
	tx         txRunner
	events     eventEmitter
	tolerances Tolerances
	now        func() time.Time
}

type eventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Option adjusts service construction.
type Option func(*service)

// WithClock substitutes the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithTolerances overrides the default tolerance policy.
func WithTolerances(tol Tolerances) Option {
	return func(s *service) { s.tolerances = tol }
}

// WithEvents enables outbox event emission in the same transaction as
// the match record write.
func WithEvents(tx txRunner, e eventEmitter) Option {
	return func(s *service) {
		s.tx = tx
		s.events = e
	}
}

// NewService wires a match service with the provided repositories.
func NewService(repo Repository, docs procurement.Repository, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("match repository required")
	}
	if docs == nil {
		return nil, fmt.Errorf("procurement repository required")
	}
	s := &service{
		repo:       repo,
		docs:       docs,
		tolerances: DefaultTolerances(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Match loads the three documents, computes the grading, and persists
// the outcome. A record already in REJECTED is sticky: recomputation is
// refused until an explicit reset. Any other existing record for the
// same document triple is recomputed in place.
func (s *service) Match(ctx context.Context, poID, grnID, invoiceID uuid.UUID) (*models.MatchRecord, *Outcome, error) {
	if poID == uuid.Nil || grnID == uuid.Nil || invoiceID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order, GRN, and invoice ids are required")
	}

	record, err := s.repo.FindByDocuments(ctx, poID, grnID, invoiceID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load match record")
	}
	if record != nil && record.Status == enums.MatchStatusRejected {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			"match record is rejected; reset the rejection before re-matching")
	}

	po, err := s.docs.GetPurchaseOrder(ctx, poID)
	if err != nil {
		return nil, nil, err
	}
	grn, err := s.docs.GetGoodsReceivedNote(ctx, grnID)
	if err != nil {
		return nil, nil, err
	}
	inv, err := s.docs.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if po.EntityID != grn.EntityID || po.EntityID != inv.EntityID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "documents belong to different entities")
	}

	outcome, err := ComputeMatch(*po, *grn, *inv, s.tolerances)
	if err != nil {
		return nil, nil, err
	}

	lines, err := json.Marshal(outcome.Lines)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal line results")
	}
	signals, err := json.Marshal(outcome.FraudSignals)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal fraud signals")
	}
	tol, err := json.Marshal(outcome.Tolerances)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal tolerances")
	}

	computedAt := s.now().UTC()
	if record == nil {
		record = &models.MatchRecord{
			EntityID:  po.EntityID,
			POID:      poID,
			GRNID:     grnID,
			InvoiceID: invoiceID,
		}
	}
	record.Status = outcome.Status
	record.LineResults = lines
	record.FraudSignals = signals
	record.Tolerances = tol
	record.ComputedAt = &computedAt

	if err := s.persist(ctx, record, enums.EventMatchComputed, map[string]any{
		"entity_id":  record.EntityID,
		"status":     record.Status,
		"po_id":      record.POID,
		"grn_id":     record.GRNID,
		"invoice_id": record.InvoiceID,
	}); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist match record")
	}
	return record, outcome, nil
}

// persist writes the record and, when an emitter is configured, queues
// the matching outbox event in the same transaction. The outbox unique
// index deduplicates per record and event type, so a recomputation of
// an already announced record writes without re-emitting.
func (s *service) persist(ctx context.Context, record *models.MatchRecord, eventType enums.OutboxEventType, data map[string]any) error {
	write := func(repo Repository) error {
		if record.ID == uuid.Nil {
			return repo.Create(ctx, record)
		}
		return repo.Save(ctx, record)
	}
	if s.tx == nil || s.events == nil {
		return write(s.repo)
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := write(s.repo.WithTx(tx)); err != nil {
			return err
		}
		if eventType == "" {
			return nil
		}
		return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateMatchRecord,
			AggregateID:   record.ID,
			Data:          data,
			Version:       1,
			OccurredAt:    s.now().UTC(),
		})
	})
}

func (s *service) Get(ctx context.Context, recordID uuid.UUID) (*models.MatchRecord, error) {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Reject marks a computed record as rejected. Rejection is a manual
// reviewer action and terminal until explicitly reset.
func (s *service) Reject(ctx context.Context, recordID, reviewerID uuid.UUID, reason string) (*models.MatchRecord, error) {
	if reviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviewer id is required")
	}
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status == enums.MatchStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "match record is already rejected")
	}
	if record.Status == enums.MatchStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "match record has not been computed yet")
	}

	now := s.now().UTC()
	record.Status = enums.MatchStatusRejected
	record.RejectedBy = &reviewerID
	record.RejectedAt = &now
	record.RejectionReason = &reason
	if err := s.persist(ctx, record, enums.EventMatchRejected, map[string]any{
		"entity_id":   record.EntityID,
		"rejected_by": reviewerID,
		"reason":      reason,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist rejection")
	}
	return record, nil
}

// ResetRejection clears a rejection, returning the record to PENDING so
// it can be re-matched.
func (s *service) ResetRejection(ctx context.Context, recordID, reviewerID uuid.UUID) (*models.MatchRecord, error) {
	if reviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviewer id is required")
	}
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status != enums.MatchStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "match record is not rejected")
	}

	record.Status = enums.MatchStatusPending
	record.RejectedBy = nil
	record.RejectedAt = nil
	record.RejectionReason = nil
	if err := s.persist(ctx, record, "", nil); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist rejection reset")
	}
	return record, nil
}

func (s *service) load(ctx context.Context, recordID uuid.UUID) (*models.MatchRecord, error) {
	if recordID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "match record id is required")
	}
	record, err := s.repo.Get(ctx, recordID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load match record")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "match record not found")
	}
	return record, nil
}
