package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/taxnovahq/taxnova-backend/internal/benford"
	"github.com/taxnovahq/taxnova-backend/internal/integrity"
	"github.com/taxnovahq/taxnova-backend/internal/procurement"
	"github.com/taxnovahq/taxnova-backend/internal/threewaymatch"
	"github.com/taxnovahq/taxnova-backend/internal/zscore"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/outbox"
	pkgpagination "github.com/taxnovahq/taxnova-backend/pkg/pagination"
)

type fakeAuditRepo struct {
	runs     map[uuid.UUID]models.AuditRun
	findings map[uuid.UUID]models.AuditFinding
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{
		runs:     map[uuid.UUID]models.AuditRun{},
		findings: map[uuid.UUID]models.AuditFinding{},
	}
}

func (r *fakeAuditRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *fakeAuditRepo) CreateRun(ctx context.Context, run *models.AuditRun) error {
	run.ID = uuid.New()
	run.CreatedAt = time.Now()
	r.runs[run.ID] = *run
	return nil
}

func (r *fakeAuditRepo) SaveRun(ctx context.Context, run *models.AuditRun) error {
	if _, ok := r.runs[run.ID]; !ok {
		return errors.New("run not created")
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *fakeAuditRepo) GetRun(ctx context.Context, id uuid.UUID) (*models.AuditRun, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (r *fakeAuditRepo) ListRunsByEntity(ctx context.Context, q runListQuery) ([]models.AuditRun, error) {
	var out []models.AuditRun
	for _, run := range r.runs {
		if run.EntityID == q.entityID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out, nil
}

func (r *fakeAuditRepo) InsertFindings(ctx context.Context, findings []models.AuditFinding) error {
	for i := range findings {
		findings[i].ID = uuid.New()
		r.findings[findings[i].ID] = findings[i]
	}
	return nil
}

func (r *fakeAuditRepo) GetFinding(ctx context.Context, id uuid.UUID) (*models.AuditFinding, error) {
	f, ok := r.findings[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (r *fakeAuditRepo) SaveFinding(ctx context.Context, finding *models.AuditFinding) error {
	r.findings[finding.ID] = *finding
	return nil
}

func (r *fakeAuditRepo) ListFindingsByRun(ctx context.Context, runID uuid.UUID) ([]models.AuditFinding, error) {
	var out []models.AuditFinding
	for _, f := range r.findings {
		if f.RunID == runID {
			out = append(out, f)
		}
	}
	return out, nil
}

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type fakeVerifier struct {
	result *integrity.ChainVerificationResult
	err    error
	calls  int
}

func (v *fakeVerifier) Verify(ctx context.Context, entityID uuid.UUID, fromSeq int64) (*integrity.ChainVerificationResult, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	if v.result != nil {
		return v.result, nil
	}
	return &integrity.ChainVerificationResult{EntityID: entityID, Intact: true}, nil
}

type fakeTxnReader struct {
	txns  []models.Transaction
	err   error
	calls int
}

func (r *fakeTxnReader) ListByEntityPeriod(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]models.Transaction, error) {
	r.calls++
	return r.txns, r.err
}

type fakeTripleLister struct {
	triples []procurement.DocumentTriple
	err     error
	calls   int
}

func (l *fakeTripleLister) ListTriples(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]procurement.DocumentTriple, error) {
	l.calls++
	return l.triples, l.err
}

type fakeArchiver struct {
	err      error
	archived []uuid.UUID
	missing  map[string]bool
}

func (a *fakeArchiver) Archive(ctx context.Context, finding *models.AuditFinding) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.archived = append(a.archived, finding.ID)
	return fmt.Sprintf("gs://evidence/%s.json", finding.ID), nil
}

func (a *fakeArchiver) Verify(ctx context.Context, storageRef string) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	return !a.missing[storageRef], nil
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (e *fakeEmitter) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	e.events = append(e.events, event)
	return nil
}

func testPolicy() Policy {
	return Policy{
		AnalysisTimeout: time.Minute,
		Benford:         benford.Options{MinimumSampleSize: 30, MinimumMagnitude: decimal.NewFromInt(1)},
		ZScore:          zscore.Options{Threshold: 3.0, MinimumGroupSize: 5},
		Tolerances:      threewaymatch.DefaultTolerances(),
	}
}

func testPeriod() Period {
	return Period{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

// benfordTxns builds a sample whose first digits follow the Benford
// distribution closely enough to classify as conforming.
func benfordTxns(entityID uuid.UUID, n int) []models.Transaction {
	counts := []int{0, 301, 176, 125, 97, 79, 67, 58, 51, 46}
	var txns []models.Transaction
	for digit := 1; digit <= 9; digit++ {
		want := counts[digit] * n / 1000
		for i := 0; i < want; i++ {
			txns = append(txns, models.Transaction{
				ID:       uuid.New(),
				EntityID: entityID,
				Date:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
				Amount:   decimal.NewFromInt(int64(digit*1000 + i)),
				Category: "supplies",
			})
		}
	}
	return txns
}

func newTestService(t *testing.T, repo Repository, verifier chainVerifier, txns transactionReader, docs tripleLister, opts ...Option) Service {
	t.Helper()
	svc, err := NewService(repo, fakeTx{}, verifier, txns, docs, testPolicy(), nil, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunFullAuditCompletesWithZeroData(t *testing.T) {
	repo := newFakeAuditRepo()
	emitter := &fakeEmitter{}
	svc := newTestService(t, repo, &fakeVerifier{}, &fakeTxnReader{}, &fakeTripleLister{}, WithEvents(emitter))

	run, err := svc.RunFullAudit(context.Background(), uuid.New(), testPeriod(), RunOptions{})
	if err != nil {
		t.Fatalf("RunFullAudit: %v", err)
	}
	if run.Status != enums.AuditRunStatusCompleted {
		t.Errorf("status = %s, want %s", run.Status, enums.AuditRunStatusCompleted)
	}
	if got := run.TotalFindings(); got != 0 {
		t.Errorf("findings = %d, want 0", got)
	}
	if run.StartedAt == nil || run.CompletedAt == nil {
		t.Error("timestamps not set")
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventAuditRunCompleted {
		t.Fatalf("events = %+v, want one %s", emitter.events, enums.EventAuditRunCompleted)
	}
}

func TestRunFullAuditPersistsFindingsWithCounts(t *testing.T) {
	repo := newFakeAuditRepo()
	entityID := uuid.New()
	verifier := &fakeVerifier{result: &integrity.ChainVerificationResult{
		EntityID:       entityID,
		EntriesChecked: 10,
		Violations: []integrity.Violation{
			{Sequence: 3, Kind: enums.ViolationHashMismatch, Detail: "payload hash does not match"},
		},
	}}
	txns := benfordTxns(entityID, 200)
	svc := newTestService(t, repo, verifier, &fakeTxnReader{txns: txns}, &fakeTripleLister{})

	run, err := svc.RunFullAudit(context.Background(), entityID, testPeriod(), RunOptions{})
	if err != nil {
		t.Fatalf("RunFullAudit: %v", err)
	}
	if run.Status != enums.AuditRunStatusCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	if run.CriticalCount != 1 {
		t.Errorf("critical = %d, want 1", run.CriticalCount)
	}

	stored, err := svc.ListFindings(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListFindings: %v", err)
	}
	if len(stored) != run.TotalFindings() {
		t.Errorf("stored %d findings, counters say %d", len(stored), run.TotalFindings())
	}
	for _, f := range stored {
		if f.RunID != run.ID {
			t.Errorf("finding %s has run %s, want %s", f.ID, f.RunID, run.ID)
		}
	}
}

func TestRunFullAuditPartialFailureKeepsFindings(t *testing.T) {
	repo := newFakeAuditRepo()
	entityID := uuid.New()
	emitter := &fakeEmitter{}
	verifier := &fakeVerifier{err: errors.New("ledger store unavailable")}
	txns := benfordTxns(entityID, 200)
	svc := newTestService(t, repo, verifier, &fakeTxnReader{txns: txns}, &fakeTripleLister{}, WithEvents(emitter))

	run, err := svc.RunFullAudit(context.Background(), entityID, testPeriod(), RunOptions{})
	if err != nil {
		t.Fatalf("RunFullAudit: %v", err)
	}
	if run.Status != enums.AuditRunStatusFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
	if len(run.FailedAnalyses) != 1 || run.FailedAnalyses[0] != AnalysisIntegrity {
		t.Errorf("failed analyses = %v, want [%s]", run.FailedAnalyses, AnalysisIntegrity)
	}
	if run.FailureReason == nil {
		t.Fatal("failure reason not set")
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventAuditRunFailed {
		t.Fatalf("events = %+v, want one %s", emitter.events, enums.EventAuditRunFailed)
	}

	// The statistical analyses ran to completion and their findings are
	// persisted despite the failed run.
	stored, listErr := repo.ListFindingsByRun(context.Background(), run.ID)
	if listErr != nil {
		t.Fatalf("list findings: %v", listErr)
	}
	if len(stored) != run.TotalFindings() {
		t.Errorf("stored %d findings, counters say %d", len(stored), run.TotalFindings())
	}
}

func TestRunFullAuditIntegrityOnlySkipsOtherAnalyses(t *testing.T) {
	repo := newFakeAuditRepo()
	verifier := &fakeVerifier{}
	txns := &fakeTxnReader{}
	docs := &fakeTripleLister{}
	svc := newTestService(t, repo, verifier, txns, docs)

	run, err := svc.RunFullAudit(context.Background(), uuid.New(), testPeriod(), RunOptions{
		RunType: enums.AuditRunTypeIntegrityOnly,
	})
	if err != nil {
		t.Fatalf("RunFullAudit: %v", err)
	}
	if run.Status != enums.AuditRunStatusCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	if verifier.calls != 1 {
		t.Errorf("verifier calls = %d, want 1", verifier.calls)
	}
	if txns.calls != 0 {
		t.Errorf("transaction reads = %d, want 0", txns.calls)
	}
	if docs.calls != 0 {
		t.Errorf("procurement reads = %d, want 0", docs.calls)
	}
}

func TestRunFullAuditThinSampleIsInconclusive(t *testing.T) {
	repo := newFakeAuditRepo()
	entityID := uuid.New()
	txns := benfordTxns(entityID, 50)[:10]
	svc := newTestService(t, repo, &fakeVerifier{}, &fakeTxnReader{txns: txns}, &fakeTripleLister{})

	run, err := svc.RunFullAudit(context.Background(), entityID, testPeriod(), RunOptions{
		RunType: enums.AuditRunTypeStatistical,
	})
	if err != nil {
		t.Fatalf("RunFullAudit: %v", err)
	}
	if run.Status != enums.AuditRunStatusCompleted {
		t.Errorf("status = %s, want completed; thin data is not a failure", run.Status)
	}
	if run.InformationalCount != 1 {
		t.Errorf("informational = %d, want 1", run.InformationalCount)
	}

	stored, _ := repo.ListFindingsByRun(context.Background(), run.ID)
	var found bool
	for _, f := range stored {
		if f.Category == enums.FindingCategoryInconclusive {
			found = true
		}
	}
	if !found {
		t.Error("no inconclusive finding recorded")
	}
}

func TestRunFullAuditArchivesHighRiskEvidence(t *testing.T) {
	repo := newFakeAuditRepo()
	entityID := uuid.New()
	archiver := &fakeArchiver{}
	verifier := &fakeVerifier{result: &integrity.ChainVerificationResult{
		EntityID: entityID,
		Violations: []integrity.Violation{
			{Sequence: 5, Kind: enums.ViolationSequenceGap, Detail: "sequence 5 missing"},
		},
	}}
	svc := newTestService(t, repo, verifier, &fakeTxnReader{}, &fakeTripleLister{}, WithArchiver(archiver))

	run, err := svc.RunFullAudit(context.Background(), entityID, testPeriod(), RunOptions{
		RunType: enums.AuditRunTypeIntegrityOnly,
	})
	if err != nil {
		t.Fatalf("RunFullAudit: %v", err)
	}
	if len(archiver.archived) != 1 {
		t.Fatalf("archived %d findings, want 1", len(archiver.archived))
	}

	stored, _ := repo.ListFindingsByRun(context.Background(), run.ID)
	if len(stored) != 1 {
		t.Fatalf("stored %d findings, want 1", len(stored))
	}
	f := stored[0]
	if f.EvidenceStatus != enums.EvidenceStatusArchived {
		t.Errorf("evidence status = %s, want archived", f.EvidenceStatus)
	}
	if f.EvidenceRef == nil {
		t.Error("evidence ref not recorded")
	}
}

func TestRunFullAuditArchiveFailureDoesNotFailRun(t *testing.T) {
	repo := newFakeAuditRepo()
	entityID := uuid.New()
	archiver := &fakeArchiver{err: errors.New("bucket unreachable")}
	verifier := &fakeVerifier{result: &integrity.ChainVerificationResult{
		EntityID: entityID,
		Violations: []integrity.Violation{
			{Sequence: 2, Kind: enums.ViolationHashMismatch, Detail: "tampered"},
		},
	}}
	svc := newTestService(t, repo, verifier, &fakeTxnReader{}, &fakeTripleLister{}, WithArchiver(archiver))

	run, err := svc.RunFullAudit(context.Background(), entityID, testPeriod(), RunOptions{
		RunType: enums.AuditRunTypeIntegrityOnly,
	})
	if err != nil {
		t.Fatalf("RunFullAudit: %v", err)
	}
	if run.Status != enums.AuditRunStatusCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}

	stored, _ := repo.ListFindingsByRun(context.Background(), run.ID)
	if len(stored) != 1 || stored[0].EvidenceStatus != enums.EvidenceStatusFailed {
		t.Errorf("evidence status = %+v, want failed", stored)
	}
}

func TestRunFullAuditValidation(t *testing.T) {
	svc := newTestService(t, newFakeAuditRepo(), &fakeVerifier{}, &fakeTxnReader{}, &fakeTripleLister{})
	period := testPeriod()

	cases := []struct {
		name     string
		entityID uuid.UUID
		period   Period
		opts     RunOptions
	}{
		{"nil entity", uuid.Nil, period, RunOptions{}},
		{"zero period", uuid.New(), Period{}, RunOptions{}},
		{"inverted period", uuid.New(), Period{Start: period.End, End: period.Start}, RunOptions{}},
		{"bad run type", uuid.New(), period, RunOptions{RunType: "everything"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RunFullAudit(context.Background(), tc.entityID, tc.period, tc.opts)
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestResolveFinding(t *testing.T) {
	repo := newFakeAuditRepo()
	svc := newTestService(t, repo, &fakeVerifier{}, &fakeTxnReader{}, &fakeTripleLister{})

	finding := models.AuditFinding{
		ID:               uuid.New(),
		RunID:            uuid.New(),
		RiskLevel:        enums.RiskLevelMedium,
		Category:         enums.FindingCategoryStatisticalAnomaly,
		Title:            "spike in travel spend",
		ResolutionStatus: enums.ResolutionStatusOpen,
	}
	repo.findings[finding.ID] = finding

	reviewer := uuid.New()
	resolved, err := svc.ResolveFinding(context.Background(), finding.ID, reviewer, enums.ResolutionStatusResolved, "vendor confirmed invoice")
	if err != nil {
		t.Fatalf("ResolveFinding: %v", err)
	}
	if resolved.ResolutionStatus != enums.ResolutionStatusResolved {
		t.Errorf("status = %s, want resolved", resolved.ResolutionStatus)
	}
	if resolved.ResolvedBy == nil || *resolved.ResolvedBy != reviewer {
		t.Error("reviewer not recorded")
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}
	if resolved.ResolutionNote == nil || *resolved.ResolutionNote != "vendor confirmed invoice" {
		t.Error("note not recorded")
	}

	if _, err := svc.ResolveFinding(context.Background(), uuid.New(), reviewer, enums.ResolutionStatusResolved, ""); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Errorf("unknown finding err = %v, want not found", err)
	}
	if _, err := svc.ResolveFinding(context.Background(), finding.ID, reviewer, "shredded", ""); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Errorf("bad status err = %v, want validation", err)
	}
}

func TestVerifyEvidence(t *testing.T) {
	repo := newFakeAuditRepo()
	archiver := &fakeArchiver{missing: map[string]bool{}}
	svc := newTestService(t, repo, &fakeVerifier{}, &fakeTxnReader{}, &fakeTripleLister{}, WithArchiver(archiver))

	ref := "gs://evidence/archived.json"
	finding := models.AuditFinding{
		ID:             uuid.New(),
		RunID:          uuid.New(),
		RiskLevel:      enums.RiskLevelCritical,
		Category:       enums.FindingCategoryDataIntegrity,
		Title:          "hash mismatch at sequence 9",
		EvidenceStatus: enums.EvidenceStatusArchived,
		EvidenceRef:    &ref,
	}
	repo.findings[finding.ID] = finding

	check, err := svc.VerifyEvidence(context.Background(), finding.ID)
	if err != nil {
		t.Fatalf("VerifyEvidence: %v", err)
	}
	if !check.Verified || check.StorageRef != ref || check.FindingID != finding.ID {
		t.Errorf("check = %+v, want verified at %s", check, ref)
	}

	archiver.missing[ref] = true
	check, err = svc.VerifyEvidence(context.Background(), finding.ID)
	if err != nil {
		t.Fatalf("VerifyEvidence after loss: %v", err)
	}
	if check.Verified {
		t.Error("missing object still reported verified")
	}

	unarchived := models.AuditFinding{
		ID:             uuid.New(),
		RunID:          finding.RunID,
		EvidenceStatus: enums.EvidenceStatusPending,
	}
	repo.findings[unarchived.ID] = unarchived
	if _, err := svc.VerifyEvidence(context.Background(), unarchived.ID); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Errorf("unarchived finding err = %v, want state conflict", err)
	}
	if _, err := svc.VerifyEvidence(context.Background(), uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Errorf("unknown finding err = %v, want not found", err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	svc := newTestService(t, newFakeAuditRepo(), &fakeVerifier{}, &fakeTxnReader{}, &fakeTripleLister{})
	if _, err := svc.GetRun(context.Background(), uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestListRunsPaginates(t *testing.T) {
	repo := newFakeAuditRepo()
	entityID := uuid.New()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		id := uuid.New()
		repo.runs[id] = models.AuditRun{
			ID:        id,
			EntityID:  entityID,
			RunType:   enums.AuditRunTypeFull,
			Status:    enums.AuditRunStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	svc := newTestService(t, repo, &fakeVerifier{}, &fakeTxnReader{}, &fakeTripleLister{})

	page, err := svc.ListRuns(context.Background(), ListRunsParams{
		EntityID: entityID,
		Params:   pkgpagination.Params{Limit: 2},
	})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(page.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(page.Runs))
	}
	if page.Cursor == "" {
		t.Error("cursor empty with a further page available")
	}
	if page.Runs[0].CreatedAt.Before(page.Runs[1].CreatedAt) {
		t.Error("runs not ordered newest first")
	}

	if _, err := svc.ListRuns(context.Background(), ListRunsParams{
		EntityID: entityID,
		Params:   pkgpagination.Params{Cursor: "not-base64!"},
	}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Errorf("bad cursor err = %v, want validation", err)
	}

	if _, err := svc.ListRuns(context.Background(), ListRunsParams{}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Errorf("missing entity err = %v, want validation", err)
	}
}
