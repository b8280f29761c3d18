package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canonicalize renders a payload into the deterministic byte form the
// hash chain is computed over: object keys in lexicographic order,
// timestamps as RFC3339 UTC, numeric amounts as fixed-precision decimal
// strings. Two payloads with equal content always canonicalize to
// identical bytes, so a recomputed hash is comparable across processes
// and driver versions.
func Canonicalize(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	var b strings.Builder
	if err := writeCanonical(&b, payload); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func writeCanonical(b *strings.Builder, value any) error {
	switch v := value.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if v {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		return writeJSONString(b, v)
	case int:
		fmt.Fprintf(b, "%d", v)
	case int64:
		fmt.Fprintf(b, "%d", v)
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return fmt.Errorf("canonicalize number %q: %w", v, err)
		}
		b.WriteString(d.String())
	case float64:
		// Floats only appear when a payload went through encoding/json
		// without UseNumber; render through decimal to keep the canonical
		// form free of float formatting.
		b.WriteString(decimal.NewFromFloat(v).String())
	case decimal.Decimal:
		return writeJSONString(b, v.String())
	case time.Time:
		return writeJSONString(b, v.UTC().Format(time.RFC3339))
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeJSONString(b, k); err != nil {
				return err
			}
			b.WriteByte(':')
			if err := writeCanonical(b, v[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		return fmt.Errorf("canonicalize: unsupported payload type %T", value)
	}
	return nil
}

func writeJSONString(b *strings.Builder, s string) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return err
	}
	b.Write(encoded)
	return nil
}

// DecodeCanonical parses stored canonical payload bytes back into a map
// with numbers preserved as json.Number, so recanonicalizing the result
// reproduces the stored bytes exactly.
func DecodeCanonical(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode canonical payload: %w", err)
	}
	return payload, nil
}
