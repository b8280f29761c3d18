package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

// GenesisHash is the previous_hash of the first entry in every entity
// scope. It must stay constant forever: changing it invalidates every
// stored chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ComputeHash derives the chain hash for an entry from its own fields
// and the previous entry's stored hash:
//
//	sha256(sequence | timestamp | entry_type | canonical_payload | previous_hash)
//
// The timestamp participates as RFC3339Nano UTC truncated to microseconds,
// the precision of a Postgres timestamptz. Hashing anything finer would
// make the digest unstable across a storage round-trip.
func ComputeHash(sequence int64, timestamp time.Time, entryType enums.LedgerEntryType, canonicalPayload []byte, previousHash string) string {
	h := sha256.New()
	ts := timestamp.UTC().Truncate(time.Microsecond)
	fmt.Fprintf(h, "%d|%s|%s|", sequence, ts.Format(time.RFC3339Nano), entryType)
	h.Write(canonicalPayload)
	h.Write([]byte("|"))
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil))
}
