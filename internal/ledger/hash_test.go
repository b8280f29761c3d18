package ledger

import (
	"testing"
	"time"

	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

func TestComputeHashStableAtMicrosecondPrecision(t *testing.T) {
	payload := []byte(`{"amount":"100.00"}`)
	// nanosecond tail beyond what timestamptz stores
	ts := time.Date(2026, 4, 1, 12, 30, 45, 123456789, time.UTC)

	full := ComputeHash(1, ts, enums.LedgerEntryTypeTransactionCreated, payload, GenesisHash)
	stored := ComputeHash(1, ts.Truncate(time.Microsecond), enums.LedgerEntryTypeTransactionCreated, payload, GenesisHash)
	if full != stored {
		t.Errorf("hash unstable across microsecond truncation: %s != %s", full, stored)
	}
}

func TestComputeHashVariesWithInputs(t *testing.T) {
	payload := []byte(`{"amount":"100.00"}`)
	ts := time.Date(2026, 4, 1, 12, 30, 45, 0, time.UTC)

	base := ComputeHash(1, ts, enums.LedgerEntryTypeTransactionCreated, payload, GenesisHash)
	cases := map[string]string{
		"sequence":      ComputeHash(2, ts, enums.LedgerEntryTypeTransactionCreated, payload, GenesisHash),
		"timestamp":     ComputeHash(1, ts.Add(time.Microsecond), enums.LedgerEntryTypeTransactionCreated, payload, GenesisHash),
		"entry type":    ComputeHash(1, ts, enums.LedgerEntryTypeApprovalGranted, payload, GenesisHash),
		"payload":       ComputeHash(1, ts, enums.LedgerEntryTypeTransactionCreated, []byte(`{"amount":"100.01"}`), GenesisHash),
		"previous hash": ComputeHash(1, ts, enums.LedgerEntryTypeTransactionCreated, payload, base),
	}
	for name, got := range cases {
		if got == base {
			t.Errorf("changing %s did not change the hash", name)
		}
	}
}
