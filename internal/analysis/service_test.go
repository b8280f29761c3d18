package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/taxnovahq/taxnova-backend/internal/benford"
	"github.com/taxnovahq/taxnova-backend/internal/zscore"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
)

type fakeTxnReader struct {
	txns  []models.Transaction
	err   error
	calls int
}

func (f *fakeTxnReader) ListByEntityPeriod(ctx context.Context, entityID uuid.UUID, from, to time.Time) ([]models.Transaction, error) {
	f.calls++
	return f.txns, f.err
}

func testOptions() (benford.Options, zscore.Options) {
	return benford.Options{
			MinimumSampleSize: 30,
			MinimumMagnitude:  decimal.NewFromInt(1),
		}, zscore.Options{
			Threshold:        3,
			MinimumGroupSize: 5,
		}
}

// benfordTxns builds a sample whose first digits roughly follow the
// theoretical distribution.
func benfordTxns(entityID uuid.UUID) []models.Transaction {
	counts := [9]int{30, 18, 12, 10, 8, 7, 6, 5, 4}
	date := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	var txns []models.Transaction
	for digit := 1; digit <= 9; digit++ {
		for i := 0; i < counts[digit-1]; i++ {
			txns = append(txns, models.Transaction{
				ID:       uuid.New(),
				EntityID: entityID,
				Date:     date,
				Amount:   decimal.NewFromInt(int64(digit*100 + i)),
				Category: "office_supplies",
			})
		}
	}
	return txns
}

func validBenfordRequest(entityID uuid.UUID) BenfordRequest {
	return BenfordRequest{
		EntityID: entityID,
		Start:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestBenfordRunsOverEntityPeriod(t *testing.T) {
	entityID := uuid.New()
	reader := &fakeTxnReader{txns: benfordTxns(entityID)}
	bOpts, zOpts := testOptions()
	svc, err := NewService(reader, bOpts, zOpts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Benford(context.Background(), validBenfordRequest(entityID))
	if err != nil {
		t.Fatalf("Benford: %v", err)
	}
	if reader.calls != 1 {
		t.Errorf("reader calls = %d, want 1", reader.calls)
	}
	if result.DigitPosition != enums.DigitPositionFirst {
		t.Errorf("digit position = %q, want default first", result.DigitPosition)
	}
	if result.SampleSize != 100 {
		t.Errorf("sample size = %d, want 100", result.SampleSize)
	}
}

func TestBenfordOverridesDigitPosition(t *testing.T) {
	entityID := uuid.New()
	reader := &fakeTxnReader{txns: benfordTxns(entityID)}
	bOpts, zOpts := testOptions()
	svc, _ := NewService(reader, bOpts, zOpts)

	req := validBenfordRequest(entityID)
	req.DigitPosition = enums.DigitPositionSecond
	result, err := svc.Benford(context.Background(), req)
	if err != nil {
		t.Fatalf("Benford: %v", err)
	}
	if result.DigitPosition != enums.DigitPositionSecond {
		t.Errorf("digit position = %q, want second", result.DigitPosition)
	}
}

func TestBenfordRejectsInvalidDigitPosition(t *testing.T) {
	entityID := uuid.New()
	reader := &fakeTxnReader{txns: benfordTxns(entityID)}
	bOpts, zOpts := testOptions()
	svc, _ := NewService(reader, bOpts, zOpts)

	req := validBenfordRequest(entityID)
	req.DigitPosition = enums.DigitPosition("third")
	if _, err := svc.Benford(context.Background(), req); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Errorf("error = %v, want validation code", err)
	}
}

func TestBenfordThinSampleIsInsufficientData(t *testing.T) {
	entityID := uuid.New()
	reader := &fakeTxnReader{txns: benfordTxns(entityID)[:10]}
	bOpts, zOpts := testOptions()
	svc, _ := NewService(reader, bOpts, zOpts)

	_, err := svc.Benford(context.Background(), validBenfordRequest(entityID))
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientData) {
		t.Errorf("error = %v, want insufficient data code", err)
	}
}

func TestBenfordWrapsReaderFailure(t *testing.T) {
	reader := &fakeTxnReader{err: errors.New("connection reset")}
	bOpts, zOpts := testOptions()
	svc, _ := NewService(reader, bOpts, zOpts)

	_, err := svc.Benford(context.Background(), validBenfordRequest(uuid.New()))
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Errorf("error = %v, want dependency code", err)
	}
}

func TestZScoreFlagsOutlier(t *testing.T) {
	entityID := uuid.New()
	date := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	txns := []models.Transaction{
		{ID: uuid.New(), EntityID: entityID, Date: date, Amount: decimal.NewFromInt(100), Category: "travel"},
		{ID: uuid.New(), EntityID: entityID, Date: date, Amount: decimal.NewFromInt(102), Category: "travel"},
		{ID: uuid.New(), EntityID: entityID, Date: date, Amount: decimal.NewFromInt(98), Category: "travel"},
		{ID: uuid.New(), EntityID: entityID, Date: date, Amount: decimal.NewFromInt(101), Category: "travel"},
		{ID: uuid.New(), EntityID: entityID, Date: date, Amount: decimal.NewFromInt(99), Category: "travel"},
		{ID: uuid.New(), EntityID: entityID, Date: date, Amount: decimal.NewFromInt(5000), Category: "travel"},
	}
	reader := &fakeTxnReader{txns: txns}
	bOpts, zOpts := testOptions()
	zOpts.Threshold = 2
	svc, _ := NewService(reader, bOpts, zOpts)

	report, err := svc.ZScore(context.Background(), ZScoreRequest{
		EntityID: entityID,
		Start:    date.AddDate(0, -1, 0),
		End:      date.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("ZScore: %v", err)
	}
	if report.GroupBy != enums.GroupByCategory {
		t.Errorf("group_by = %q, want default category", report.GroupBy)
	}
	if len(report.Outliers) != 1 {
		t.Fatalf("outliers = %d, want 1", len(report.Outliers))
	}
}

func TestZScoreThresholdOverride(t *testing.T) {
	entityID := uuid.New()
	reader := &fakeTxnReader{}
	bOpts, zOpts := testOptions()
	svc, _ := NewService(reader, bOpts, zOpts)

	report, err := svc.ZScore(context.Background(), ZScoreRequest{
		EntityID:  entityID,
		Start:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Threshold: 2.5,
	})
	if err != nil {
		t.Fatalf("ZScore: %v", err)
	}
	if report.Threshold != 2.5 {
		t.Errorf("threshold = %v, want 2.5", report.Threshold)
	}

	_, err = svc.ZScore(context.Background(), ZScoreRequest{
		EntityID:  entityID,
		Start:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Threshold: 0.5,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Errorf("error = %v, want validation code for sub-1 threshold", err)
	}
}

func TestValidateScope(t *testing.T) {
	reader := &fakeTxnReader{}
	bOpts, zOpts := testOptions()
	svc, _ := NewService(reader, bOpts, zOpts)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		req  BenfordRequest
	}{
		{"missing entity", BenfordRequest{Start: start, End: start.AddDate(0, 1, 0)}},
		{"zero period", BenfordRequest{EntityID: uuid.New()}},
		{"inverted period", BenfordRequest{EntityID: uuid.New(), Start: start, End: start.AddDate(0, -1, 0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Benford(context.Background(), tc.req); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Errorf("error = %v, want validation code", err)
			}
		})
	}
	if reader.calls != 0 {
		t.Errorf("reader calls = %d, want 0 for invalid scope", reader.calls)
	}
}
