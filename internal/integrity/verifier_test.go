package integrity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/internal/ledger"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

type fakeReader struct {
	entries []models.LedgerEntry
}

func (f *fakeReader) LatestSequence(_ context.Context, _ uuid.UUID) (int64, error) {
	var max int64
	for _, e := range f.entries {
		if e.SequenceNumber > max {
			max = e.SequenceNumber
		}
	}
	return max, nil
}

func (f *fakeReader) ListRange(_ context.Context, _ uuid.UUID, fromSeq, toSeq int64) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, e := range f.entries {
		if e.SequenceNumber >= fromSeq && e.SequenceNumber <= toSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

// buildChain constructs a well-formed chain of n entries the way the
// append path does.
func buildChain(t *testing.T, n int) []models.LedgerEntry {
	t.Helper()
	entityID := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	prev := ledger.GenesisHash
	entries := make([]models.LedgerEntry, 0, n)
	for i := 1; i <= n; i++ {
		payload := map[string]any{
			"amount":   fmt.Sprintf("%d.50", i*100),
			"currency": "NGN",
		}
		canonical, err := ledger.Canonicalize(payload)
		if err != nil {
			t.Fatalf("canonicalize: %v", err)
		}
		seq := int64(i)
		ts := base.Add(time.Duration(i) * time.Minute)
		entry := models.LedgerEntry{
			ID:             uuid.New(),
			EntityID:       entityID,
			SequenceNumber: seq,
			Timestamp:      ts,
			EntryType:      enums.LedgerEntryTypeTransactionCreated,
			Payload:        canonical,
			PreviousHash:   prev,
			Hash:           ledger.ComputeHash(seq, ts, enums.LedgerEntryTypeTransactionCreated, canonical, prev),
			CreatedBy:      uuid.New(),
		}
		entries = append(entries, entry)
		prev = entry.Hash
	}
	return entries
}

func newVerifier(t *testing.T, reader entryReader, batchSize int) *Verifier {
	t.Helper()
	v, err := NewVerifier(reader, batchSize)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestVerifyIntactChain(t *testing.T) {
	entries := buildChain(t, 7)
	v := newVerifier(t, &fakeReader{entries: entries}, 3)

	result, err := v.Verify(context.Background(), entries[0].EntityID, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Intact {
		t.Fatalf("expected intact chain, got violations %+v", result.Violations)
	}
	if result.EntriesChecked != 7 {
		t.Errorf("entries checked = %d, want 7", result.EntriesChecked)
	}
	if result.AsOfSequence != 7 {
		t.Errorf("as-of sequence = %d, want 7", result.AsOfSequence)
	}
}

func TestVerifyEmptyChain(t *testing.T) {
	v := newVerifier(t, &fakeReader{}, 0)

	result, err := v.Verify(context.Background(), uuid.New(), 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Intact || result.EntriesChecked != 0 {
		t.Fatalf("empty scope should verify intact with zero entries, got %+v", result)
	}
}

func TestVerifyDetectsMutatedPayload(t *testing.T) {
	entries := buildChain(t, 5)
	tampered := []byte(`{"amount":"999999.00","currency":"NGN"}`)
	entries[2].Payload = tampered
	v := newVerifier(t, &fakeReader{entries: entries}, 500)

	result, err := v.Verify(context.Background(), entries[0].EntityID, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Intact {
		t.Fatal("expected tampered chain to fail verification")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("violations = %+v, want exactly one", result.Violations)
	}
	got := result.Violations[0]
	if got.Kind != enums.ViolationHashMismatch {
		t.Errorf("violation kind = %s, want %s", got.Kind, enums.ViolationHashMismatch)
	}
	if got.Sequence != 3 {
		t.Errorf("violation sequence = %d, want 3", got.Sequence)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	entries := buildChain(t, 5)
	// Simulate a delete below the storage API: sequence 3 vanishes.
	entries = append(entries[:2], entries[3:]...)
	v := newVerifier(t, &fakeReader{entries: entries}, 500)

	result, err := v.Verify(context.Background(), entries[0].EntityID, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Intact {
		t.Fatal("expected chain with deleted entry to fail verification")
	}
	var gaps, prevMismatches int
	for _, viol := range result.Violations {
		switch viol.Kind {
		case enums.ViolationSequenceGap:
			gaps++
			if viol.Sequence != 3 {
				t.Errorf("gap at sequence %d, want 3", viol.Sequence)
			}
		case enums.ViolationPrevHashMismatch:
			prevMismatches++
			if viol.Sequence != 4 {
				t.Errorf("prev-hash mismatch at sequence %d, want 4", viol.Sequence)
			}
		case enums.ViolationHashMismatch:
			t.Errorf("unexpected hash mismatch at %d; deletion must not read as tampering", viol.Sequence)
		}
	}
	if gaps != 1 {
		t.Errorf("sequence gaps = %d, want 1", gaps)
	}
	if prevMismatches != 1 {
		t.Errorf("prev-hash mismatches = %d, want 1", prevMismatches)
	}
}

func TestVerifyDetectsRelinkedEntry(t *testing.T) {
	entries := buildChain(t, 4)
	// A relink attack rewrites previous_hash and recomputes the entry's
	// own hash so it self-validates. Linkage against the actual
	// predecessor still exposes it.
	entry := &entries[2]
	forgedPrev := ledger.ComputeHash(99, entry.Timestamp, entry.EntryType, []byte("{}"), ledger.GenesisHash)
	entry.PreviousHash = forgedPrev
	entry.Hash = ledger.ComputeHash(entry.SequenceNumber, entry.Timestamp, entry.EntryType, entry.Payload, forgedPrev)
	v := newVerifier(t, &fakeReader{entries: entries}, 500)

	result, err := v.Verify(context.Background(), entries[0].EntityID, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Intact {
		t.Fatal("expected relinked chain to fail verification")
	}
	foundPrevMismatch := false
	for _, viol := range result.Violations {
		if viol.Kind == enums.ViolationPrevHashMismatch && viol.Sequence == 3 {
			foundPrevMismatch = true
		}
	}
	if !foundPrevMismatch {
		t.Errorf("expected prev-hash mismatch at sequence 3, got %+v", result.Violations)
	}
}

func TestVerifyFromMidChain(t *testing.T) {
	entries := buildChain(t, 6)
	v := newVerifier(t, &fakeReader{entries: entries}, 2)

	result, err := v.Verify(context.Background(), entries[0].EntityID, 4)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Intact {
		t.Fatalf("partial verification should pass on intact chain, got %+v", result.Violations)
	}
	if result.EntriesChecked != 3 {
		t.Errorf("entries checked = %d, want 3", result.EntriesChecked)
	}
	if result.FromSequence != 4 {
		t.Errorf("from sequence = %d, want 4", result.FromSequence)
	}
}

func TestVerifyDetailedReportsEveryEntry(t *testing.T) {
	entries := buildChain(t, 4)
	entries[1].Payload = []byte(`{"amount":"1.00","currency":"NGN"}`)
	v := newVerifier(t, &fakeReader{entries: entries}, 500)

	report, err := v.VerifyDetailed(context.Background(), entries[0].EntityID)
	if err != nil {
		t.Fatalf("VerifyDetailed: %v", err)
	}
	if len(report.Entries) != 4 {
		t.Fatalf("report rows = %d, want 4", len(report.Entries))
	}
	for _, row := range report.Entries {
		wantValid := row.Sequence != 2
		if row.Valid != wantValid {
			t.Errorf("sequence %d valid = %v, want %v", row.Sequence, row.Valid, wantValid)
		}
	}
}

func TestVerifyRejectsInvalidInput(t *testing.T) {
	v := newVerifier(t, &fakeReader{}, 0)

	if _, err := v.Verify(context.Background(), uuid.Nil, 0); err == nil {
		t.Error("expected error for nil entity id")
	}
	if _, err := v.Verify(context.Background(), uuid.New(), -1); err == nil {
		t.Error("expected error for negative from sequence")
	}
}

func TestVerifyHonorsCancellation(t *testing.T) {
	entries := buildChain(t, 10)
	v := newVerifier(t, &fakeReader{entries: entries}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := v.Verify(ctx, entries[0].EntityID, 0); err == nil {
		t.Error("expected error when context is cancelled")
	}
}
