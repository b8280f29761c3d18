package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/taxnovahq/taxnova-backend/internal/benford"
	"github.com/taxnovahq/taxnova-backend/internal/integrity"
	"github.com/taxnovahq/taxnova-backend/internal/procurement"
	"github.com/taxnovahq/taxnova-backend/internal/threewaymatch"
	"github.com/taxnovahq/taxnova-backend/internal/zscore"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
	"github.com/taxnovahq/taxnova-backend/pkg/metrics"
	"github.com/taxnovahq/taxnova-backend/pkg/outbox"
	pkgpagination "github.com/taxnovahq/taxnova-backend/pkg/pagination"
)

// Analysis names recorded in failed_analyses.
const (
	AnalysisIntegrity = "chain_verification"
	AnalysisBenford   = "benford"
	AnalysisZScore    = "zscore"
	AnalysisMatch     = "three_way_match"
)

const defaultAnalysisTimeout = 5 * time.Minute

// Period bounds an audit run's transaction scope.
type Period struct {
	Start time.Time
	End   time.Time
}

// RunOptions selects what a run analyzes and under which policy.
type RunOptions struct {
	RunType       enums.AuditRunType
	DigitPosition enums.DigitPosition
	GroupBy       enums.GroupBy
	ActorID       uuid.UUID
}

// chainVerifier, transactionReader, and tripleLister are the read-only
// slices of the analysis dependencies the orchestrator drives.
type chainVerifier interface {
	Verify(ctx context.Context, entityID uuid.UUID, fromSeq int64) (*integrity.ChainVerificationResult, error)
}

type transactionReader interface {
	ListByEntityPeriod(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]models.Transaction, error)
}

type tripleLister interface {
	ListTriples(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]procurement.DocumentTriple, error)
}

// evidenceArchiver and findingExporter are post-commit collaborators.
// Both are optional and best-effort.
type evidenceArchiver interface {
	Archive(ctx context.Context, finding *models.AuditFinding) (string, error)
	Verify(ctx context.Context, storageRef string) (bool, error)
}

type findingExporter interface {
	ExportRunFindings(ctx context.Context, run *models.AuditRun, findings []models.AuditFinding) error
}

type eventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service orchestrates forensic audit runs.
type Service interface {
	RunFullAudit(ctx context.Context, entityID uuid.UUID, period Period, opts RunOptions) (*models.AuditRun, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*models.AuditRun, error)
	ListRuns(ctx context.Context, params ListRunsParams) (*ListRunsResult, error)
	ListFindings(ctx context.Context, runID uuid.UUID) ([]models.AuditFinding, error)
	ResolveFinding(ctx context.Context, findingID, reviewerID uuid.UUID, status enums.ResolutionStatus, note string) (*models.AuditFinding, error)
	VerifyEvidence(ctx context.Context, findingID uuid.UUID) (*EvidenceCheck, error)
}

// EvidenceCheck reports whether a finding's archived evidence is still
// retrievable and intact at its storage reference.
type EvidenceCheck struct {
	FindingID  uuid.UUID `json:"finding_id"`
	StorageRef string    `json:"storage_ref"`
	Verified   bool      `json:"verified"`
}

// ListRunsParams scopes a cursor-paginated run listing.
type ListRunsParams struct {
	EntityID uuid.UUID
	pkgpagination.Params
}

// ListRunsResult is one page of runs, newest first.
type ListRunsResult struct {
	Runs   []models.AuditRun `json:"runs"`
	Cursor string            `json:"cursor"`
}

// Policy carries the statistical knobs snapshotted into each run.
type Policy struct {
	AnalysisTimeout time.Duration
	Benford         benford.Options
	ZScore          zscore.Options
	Tolerances      threewaymatch.Tolerances
}

type service struct {
	repo     Repository
	tx       txRunner
	verifier chainVerifier
	txns     transactionReader
	docs     tripleLister
	policy   Policy
	archiver evidenceArchiver
	exporter findingExporter
	events   eventEmitter
	metrics  *metrics.AuditMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// Option adjusts service construction.
type Option func(*service)

// WithClock substitutes the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithArchiver enables evidence archival for critical and high findings.
func WithArchiver(a evidenceArchiver) Option {
	return func(s *service) { s.archiver = a }
}

// WithExporter enables warehouse export of completed-run findings.
func WithExporter(e findingExporter) Option {
	return func(s *service) { s.exporter = e }
}

// WithEvents enables outbox event emission in the finalizing transaction.
func WithEvents(e eventEmitter) Option {
	return func(s *service) { s.events = e }
}

// WithMetrics enables operational counters for runs and findings.
func WithMetrics(m *metrics.AuditMetrics) Option {
	return func(s *service) { s.metrics = m }
}

// NewService wires the audit orchestrator.
func NewService(repo Repository, tx txRunner, verifier chainVerifier, txns transactionReader, docs tripleLister, policy Policy, logg *logger.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("chain verifier required")
	}
	if txns == nil {
		return nil, fmt.Errorf("transaction reader required")
	}
	if docs == nil {
		return nil, fmt.Errorf("procurement reader required")
	}
	if policy.AnalysisTimeout <= 0 {
		policy.AnalysisTimeout = defaultAnalysisTimeout
	}
	s := &service{
		repo:     repo,
		tx:       tx,
		verifier: verifier,
		txns:     txns,
		docs:     docs,
		policy:   policy,
		logg:     logg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type subResult struct {
	name     string
	findings []models.AuditFinding
	err      error
}

// RunFullAudit executes the analyses selected by the run type as
// concurrent tasks and aggregates their findings into one run. The
// analyses are read-only and mutually independent, so a failure in one
// never discards findings the others produced: the run is marked failed
// with the failing analyses recorded, everything else is kept.
func (s *service) RunFullAudit(ctx context.Context, entityID uuid.UUID, period Period, opts RunOptions) (*models.AuditRun, error) {
	if entityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	if period.Start.IsZero() || period.End.IsZero() || period.End.Before(period.Start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid audit period")
	}
	if opts.RunType == "" {
		opts.RunType = enums.AuditRunTypeFull
	}
	if !opts.RunType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid run type %q", opts.RunType))
	}

	run := &models.AuditRun{
		EntityID:    entityID,
		PeriodStart: period.Start.UTC(),
		PeriodEnd:   period.End.UTC(),
		RunType:     opts.RunType,
		Status:      enums.AuditRunStatusPending,
		Parameters:  s.parameterSnapshot(opts),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create audit run")
	}

	startedAt := s.now().UTC()
	run.Status = enums.AuditRunStatusRunning
	run.StartedAt = &startedAt
	if err := s.repo.SaveRun(ctx, run); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start audit run")
	}

	ctx = s.logContext(ctx, run)
	results := s.fanOut(ctx, entityID, period, opts)

	var findings []models.AuditFinding
	var failed []string
	var failure error
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.name)
			failure = multierr.Append(failure, fmt.Errorf("%s: %w", r.name, r.err))
			if s.logg != nil {
				s.logg.Error(s.logg.WithAnalysis(ctx, r.name), "audit analysis failed", r.err)
			}
			continue
		}
		findings = append(findings, r.findings...)
	}
	for i := range findings {
		findings[i].RunID = run.ID
	}

	completedAt := s.now().UTC()
	run.CompletedAt = &completedAt
	run.FailedAnalyses = failed
	severityCounts(run, findings)
	if failure != nil {
		run.Status = enums.AuditRunStatusFailed
		reason := failure.Error()
		run.FailureReason = &reason
	} else {
		run.Status = enums.AuditRunStatusCompleted
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.InsertFindings(ctx, findings); err != nil {
			return fmt.Errorf("insert findings: %w", err)
		}
		if err := repo.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("finalize run: %w", err)
		}
		return s.emitRunEvent(ctx, tx, run)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize audit run")
	}

	// Reload so finding ids assigned at insert are visible for archival.
	stored, err := s.repo.ListFindingsByRun(ctx, run.ID)
	if err == nil {
		s.archiveEvidence(ctx, stored)
		s.exportFindings(ctx, run, stored)
	} else if s.logg != nil {
		s.logg.Error(ctx, "reload findings for archival", err)
	}

	s.observeRun(run, completedAt.Sub(startedAt))
	if s.logg != nil {
		s.logg.Info(ctx, fmt.Sprintf("audit run %s with %d findings", run.Status, run.TotalFindings()))
	}
	return run, nil
}

func (s *service) observeRun(run *models.AuditRun, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	runType := string(run.RunType)
	s.metrics.ObserveRunDuration(runType, elapsed)
	if run.Status == enums.AuditRunStatusFailed {
		s.metrics.IncRunFailure(runType)
	} else {
		s.metrics.IncRunSuccess(runType)
	}
	s.metrics.AddFindings(string(enums.RiskLevelCritical), run.CriticalCount)
	s.metrics.AddFindings(string(enums.RiskLevelHigh), run.HighCount)
	s.metrics.AddFindings(string(enums.RiskLevelMedium), run.MediumCount)
	s.metrics.AddFindings(string(enums.RiskLevelLow), run.LowCount)
	s.metrics.AddFindings(string(enums.RiskLevelInformational), run.InformationalCount)
}

func (s *service) fanOut(ctx context.Context, entityID uuid.UUID, period Period, opts RunOptions) []subResult {
	type analysis struct {
		name string
		run  func(ctx context.Context) ([]models.AuditFinding, error)
	}

	var analyses []analysis
	runIntegrity := opts.RunType == enums.AuditRunTypeFull || opts.RunType == enums.AuditRunTypeIntegrityOnly
	runStatistical := opts.RunType == enums.AuditRunTypeFull || opts.RunType == enums.AuditRunTypeStatistical

	if runIntegrity {
		analyses = append(analyses, analysis{AnalysisIntegrity, func(ctx context.Context) ([]models.AuditFinding, error) {
			return s.runVerification(ctx, entityID)
		}})
	}
	if runStatistical {
		analyses = append(analyses, analysis{AnalysisBenford, func(ctx context.Context) ([]models.AuditFinding, error) {
			return s.runBenford(ctx, entityID, period, opts)
		}})
		analyses = append(analyses, analysis{AnalysisZScore, func(ctx context.Context) ([]models.AuditFinding, error) {
			return s.runZScore(ctx, entityID, period, opts)
		}})
	}
	if opts.RunType == enums.AuditRunTypeFull {
		analyses = append(analyses, analysis{AnalysisMatch, func(ctx context.Context) ([]models.AuditFinding, error) {
			return s.runMatch(ctx, entityID, period)
		}})
	}

	results := make([]subResult, len(analyses))
	var wg sync.WaitGroup
	for i, a := range analyses {
		wg.Add(1)
		go func(i int, a analysis) {
			defer wg.Done()
			subCtx, cancel := context.WithTimeout(ctx, s.policy.AnalysisTimeout)
			defer cancel()
			findings, err := a.run(subCtx)
			results[i] = subResult{name: a.name, findings: findings, err: err}
		}(i, a)
	}
	wg.Wait()
	return results
}

func (s *service) runVerification(ctx context.Context, entityID uuid.UUID) ([]models.AuditFinding, error) {
	result, err := s.verifier.Verify(ctx, entityID, 0)
	if err != nil {
		return nil, err
	}
	return findingsFromVerification(result), nil
}

func (s *service) runBenford(ctx context.Context, entityID uuid.UUID, period Period, opts RunOptions) ([]models.AuditFinding, error) {
	txns, err := s.txns.ListByEntityPeriod(ctx, entityID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	benfordOpts := s.policy.Benford
	if opts.DigitPosition != "" {
		benfordOpts.DigitPosition = opts.DigitPosition
	}
	result, err := benford.Analyze(txns, benfordOpts)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientData) {
			// nothing to analyze at all is not a finding; a thin sample is
			if emptyQualifyingSample(err) {
				return nil, nil
			}
			return []models.AuditFinding{benfordInconclusiveFinding(err.Error())}, nil
		}
		return nil, err
	}
	return findingsFromBenford(result), nil
}

// emptyQualifyingSample reports whether an insufficient-data error was
// raised over zero qualifying transactions.
func emptyQualifyingSample(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return false
	}
	n, ok := details["qualifying_sample"].(int)
	return ok && n == 0
}

func (s *service) runZScore(ctx context.Context, entityID uuid.UUID, period Period, opts RunOptions) ([]models.AuditFinding, error) {
	txns, err := s.txns.ListByEntityPeriod(ctx, entityID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	zOpts := s.policy.ZScore
	if opts.GroupBy != "" {
		zOpts.GroupBy = opts.GroupBy
	}
	report, err := zscore.Detect(ctx, txns, zOpts)
	if err != nil {
		return nil, err
	}
	return findingsFromZScore(report), nil
}

func (s *service) runMatch(ctx context.Context, entityID uuid.UUID, period Period) ([]models.AuditFinding, error) {
	triples, err := s.docs.ListTriples(ctx, entityID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	var findings []models.AuditFinding
	for _, triple := range triples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome, err := threewaymatch.ComputeMatch(triple.PurchaseOrder, triple.GRN, triple.Invoice, s.policy.Tolerances)
		if err != nil {
			// A malformed triple is a process weakness in itself, not a
			// reason to fail the whole analysis.
			findings = append(findings, models.AuditFinding{
				RiskLevel:     enums.RiskLevelMedium,
				Category:      enums.FindingCategoryProcessWeakness,
				Title:         "three-way match could not be computed",
				Description:   err.Error(),
				ReferenceType: "invoice",
				ReferenceID:   triple.Invoice.ID.String(),
				Evidence:      mustJSON(map[string]string{"error": err.Error()}),
			})
			continue
		}
		findings = append(findings, findingsFromMatch(triple, outcome)...)
	}
	return findings, nil
}

func (s *service) emitRunEvent(ctx context.Context, tx *gorm.DB, run *models.AuditRun) error {
	if s.events == nil {
		return nil
	}
	eventType := enums.EventAuditRunCompleted
	if run.Status == enums.AuditRunStatusFailed {
		eventType = enums.EventAuditRunFailed
	}
	return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateAuditRun,
		AggregateID:   run.ID,
		Data: map[string]any{
			"entity_id":       run.EntityID,
			"status":          run.Status,
			"total_findings":  run.TotalFindings(),
			"critical_count":  run.CriticalCount,
			"high_count":      run.HighCount,
			"failed_analyses": run.FailedAnalyses,
		},
		Version:    1,
		OccurredAt: s.now().UTC(),
	})
}

// archiveEvidence writes critical and high findings to the write-once
// store. Archive failures mark the finding's evidence as failed and are
// logged; they never fail the run.
func (s *service) archiveEvidence(ctx context.Context, findings []models.AuditFinding) {
	if s.archiver == nil {
		return
	}
	for i := range findings {
		f := &findings[i]
		if f.RiskLevel != enums.RiskLevelCritical && f.RiskLevel != enums.RiskLevelHigh {
			continue
		}
		if f.EvidenceStatus == enums.EvidenceStatusArchived {
			continue
		}
		ref, err := s.archiver.Archive(ctx, f)
		if err != nil {
			f.EvidenceStatus = enums.EvidenceStatusFailed
			if s.logg != nil {
				s.logg.Error(ctx, fmt.Sprintf("archive evidence for finding %s", f.ID), err)
			}
		} else {
			f.EvidenceRef = &ref
			f.EvidenceStatus = enums.EvidenceStatusArchived
		}
		if err := s.repo.SaveFinding(ctx, f); err != nil && s.logg != nil {
			s.logg.Error(ctx, fmt.Sprintf("persist evidence status for finding %s", f.ID), err)
		}
	}
}

// exportFindings streams the run's findings to the warehouse. Export is
// best-effort and never fails the run.
func (s *service) exportFindings(ctx context.Context, run *models.AuditRun, findings []models.AuditFinding) {
	if s.exporter == nil || len(findings) == 0 {
		return
	}
	if err := s.exporter.ExportRunFindings(ctx, run, findings); err != nil && s.logg != nil {
		s.logg.Error(ctx, "export findings", err)
	}
}

func (s *service) GetRun(ctx context.Context, runID uuid.UUID) (*models.AuditRun, error) {
	if runID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "run id is required")
	}
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load audit run")
	}
	if run == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "audit run not found")
	}
	return run, nil
}

func (s *service) ListRuns(ctx context.Context, params ListRunsParams) (*ListRunsResult, error) {
	if params.EntityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}

	limit := pkgpagination.NormalizeLimit(params.Limit)
	query := runListQuery{
		entityID: params.EntityID,
		limit:    pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	runs, err := s.repo.ListRunsByEntity(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit runs")
	}

	nextCursor := ""
	if len(runs) > limit {
		runs = runs[:limit]
		last := runs[limit-1]
		nextCursor = pkgpagination.EncodeCursor(pkgpagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return &ListRunsResult{Runs: runs, Cursor: nextCursor}, nil
}

func (s *service) ListFindings(ctx context.Context, runID uuid.UUID) ([]models.AuditFinding, error) {
	if runID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "run id is required")
	}
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	findings, err := s.repo.ListFindingsByRun(ctx, runID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list findings")
	}
	return findings, nil
}

// ResolveFinding updates the mutable resolution annotation. The finding
// body itself stays immutable.
func (s *service) ResolveFinding(ctx context.Context, findingID, reviewerID uuid.UUID, status enums.ResolutionStatus, note string) (*models.AuditFinding, error) {
	if findingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "finding id is required")
	}
	if reviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviewer id is required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid resolution status %q", status))
	}

	finding, err := s.repo.GetFinding(ctx, findingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load finding")
	}
	if finding == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "finding not found")
	}

	now := s.now().UTC()
	finding.ResolutionStatus = status
	finding.ResolvedBy = &reviewerID
	finding.ResolvedAt = &now
	if note != "" {
		finding.ResolutionNote = &note
	}
	if err := s.repo.SaveFinding(ctx, finding); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist resolution")
	}
	return finding, nil
}

// VerifyEvidence re-checks a finding's archived evidence against the
// write-once store.
func (s *service) VerifyEvidence(ctx context.Context, findingID uuid.UUID) (*EvidenceCheck, error) {
	if findingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "finding id is required")
	}
	if s.archiver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "evidence archival is not configured")
	}

	finding, err := s.repo.GetFinding(ctx, findingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load finding")
	}
	if finding == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "finding not found")
	}
	if finding.EvidenceStatus != enums.EvidenceStatusArchived || finding.EvidenceRef == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "finding has no archived evidence")
	}

	ok, err := s.archiver.Verify(ctx, *finding.EvidenceRef)
	if err != nil {
		return nil, err
	}
	return &EvidenceCheck{
		FindingID:  finding.ID,
		StorageRef: *finding.EvidenceRef,
		Verified:   ok,
	}, nil
}

func (s *service) parameterSnapshot(opts RunOptions) json.RawMessage {
	return mustJSON(map[string]any{
		"run_type":         opts.RunType,
		"digit_position":   opts.DigitPosition,
		"group_by":         opts.GroupBy,
		"analysis_timeout": s.policy.AnalysisTimeout.String(),
		"benford":          s.policy.Benford,
		"zscore":           s.policy.ZScore,
		"match_tolerances": s.policy.Tolerances,
		"requested_by":     opts.ActorID,
	})
}

func (s *service) logContext(ctx context.Context, run *models.AuditRun) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithEntityID(ctx, run.EntityID.String())
	return s.logg.WithRunID(ctx, run.ID.String())
}
