package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{10, 10},
		{MaxLimit + 50, MaxLimit},
	}
	for _, tc := range cases {
		if got := NormalizeLimit(tc.in); got != tc.want {
			t.Errorf("NormalizeLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{
		CreatedAt: time.Date(2026, 4, 12, 9, 30, 0, 123456789, time.UTC),
		ID:        uuid.New(),
	}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if out == nil {
		t.Fatal("cursor is nil")
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestParseCursorEmpty(t *testing.T) {
	out, err := ParseCursor("  ")
	if err != nil {
		t.Fatalf("ParseCursor: %v", err)
	}
	if out != nil {
		t.Errorf("cursor = %+v, want nil", out)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"not-base64!", "aGVsbG8=", "aGVsbG98d29ybGQ="} {
		if _, err := ParseCursor(raw); err == nil {
			t.Errorf("ParseCursor(%q) succeeded, want error", raw)
		}
	}
}
