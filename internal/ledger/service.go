package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	dbpkg "github.com/taxnovahq/taxnova-backend/pkg/db"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/metrics"
)

const (
	defaultAppendMaxAttempts = 5
	defaultAppendBaseBackoff = 25 * time.Millisecond
)

// Reference is a weak pointer to the external record an entry documents.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// AppendInput captures the immutable data a ledger entry requires.
type AppendInput struct {
	EntityID  uuid.UUID
	EntryType enums.LedgerEntryType
	Reference Reference
	Payload   map[string]any
	ActorID   uuid.UUID
}

// Service defines operations over the append-only hash-chained ledger.
type Service interface {
	Append(ctx context.Context, input AppendInput) (*models.LedgerEntry, error)
	ReadRange(ctx context.Context, entityID uuid.UUID, fromSeq, toSeq int64) ([]models.LedgerEntry, error)
	Head(ctx context.Context, entityID uuid.UUID) (int64, error)
}

type service struct {
	repo        Repository
	now         func() time.Time
	maxAttempts int
	baseBackoff time.Duration
	metrics     *metrics.AuditMetrics
}

// Option adjusts service construction, mostly for tests.
type Option func(*service)

// WithClock substitutes the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithMetrics counts sequence-race retries.
func WithMetrics(m *metrics.AuditMetrics) Option {
	return func(s *service) { s.metrics = m }
}

// WithAppendRetry bounds the sequence-race retry loop.
func WithAppendRetry(maxAttempts int, baseBackoff time.Duration) Option {
	return func(s *service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if baseBackoff > 0 {
			s.baseBackoff = baseBackoff
		}
	}
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	s := &service{
		repo:        repo,
		now:         time.Now,
		maxAttempts: defaultAppendMaxAttempts,
		baseBackoff: defaultAppendBaseBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Append allocates the next sequence number for the entity scope,
// canonicalizes the payload, chains the hash to the prior entry and
// persists. Two appends racing for the same sequence are arbitrated by
// the unique (entity_id, sequence_number) constraint; the loser reloads
// the head and retries with backoff up to the configured attempt bound.
func (s *service) Append(ctx context.Context, input AppendInput) (*models.LedgerEntry, error) {
	if input.EntityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	if !input.EntryType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", input.EntryType))
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}

	canonical, err := Canonicalize(input.Payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "canonicalize payload")
	}

	var created *models.LedgerEntry
	backoff := retry.WithMaxRetries(uint64(s.maxAttempts-1), retry.NewFibonacci(s.baseBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		head, err := s.repo.Latest(ctx, input.EntityID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger head")
		}

		sequence := int64(1)
		previousHash := GenesisHash
		if head != nil {
			sequence = head.SequenceNumber + 1
			previousHash = head.Hash
		}

		// timestamptz keeps microseconds; store exactly what the hash covers
		now := s.now().UTC().Truncate(time.Microsecond)
		entry := &models.LedgerEntry{
			EntityID:       input.EntityID,
			SequenceNumber: sequence,
			Timestamp:      now,
			EntryType:      input.EntryType,
			ReferenceType:  input.Reference.Type,
			ReferenceID:    input.Reference.ID,
			Payload:        canonical,
			PreviousHash:   previousHash,
			Hash:           ComputeHash(sequence, now, input.EntryType, canonical, previousHash),
			CreatedBy:      input.ActorID,
		}

		if err := s.repo.Insert(ctx, entry); err != nil {
			if dbpkg.IsUniqueViolation(err, models.UniqueLedgerSequence) {
				s.metrics.IncAppendRetry()
				conflict := pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err,
					fmt.Sprintf("sequence %d already taken for entity %s", sequence, input.EntityID))
				return retry.RetryableError(conflict)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
		}
		created = entry
		return nil
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeConcurrencyConflict) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeAppendFailed, err,
				fmt.Sprintf("append lost the sequence race %d times", s.maxAttempts))
		}
		return nil, err
	}
	return created, nil
}

func (s *service) ReadRange(ctx context.Context, entityID uuid.UUID, fromSeq, toSeq int64) ([]models.LedgerEntry, error) {
	if entityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	if fromSeq < 0 || (toSeq > 0 && toSeq < fromSeq) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sequence range")
	}
	entries, err := s.repo.ListRange(ctx, entityID, fromSeq, toSeq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger range")
	}
	return entries, nil
}

func (s *service) Head(ctx context.Context, entityID uuid.UUID) (int64, error) {
	if entityID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	seq, err := s.repo.LatestSequence(ctx, entityID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger head")
	}
	return seq, nil
}
