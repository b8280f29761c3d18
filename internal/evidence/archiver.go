package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	pkgerrors "github.com/taxnovahq/taxnova-backend/pkg/errors"
	"github.com/taxnovahq/taxnova-backend/pkg/storage/gcs"
)

// objectStore is the slice of the storage client the archiver needs.
type objectStore interface {
	PutOnce(ctx context.Context, object, contentType string, data []byte) error
	Get(ctx context.Context, object string) ([]byte, error)
	DefaultBucket() string
}

// Archiver writes finding evidence to the write-once store. Objects are
// keyed by run and finding id, so re-archiving the same finding hits the
// store's generation precondition instead of silently overwriting.
type Archiver struct {
	store objectStore
	now   func() time.Time
}

// NewArchiver wires an archiver over the given object store.
func NewArchiver(store objectStore, opts ...Option) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	a := &Archiver{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Option adjusts archiver construction.
type Option func(*Archiver)

// WithClock substitutes the wall clock.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// record is the archived document layout.
type record struct {
	RunID       uuid.UUID       `json:"run_id"`
	FindingID   uuid.UUID       `json:"finding_id"`
	Category    string          `json:"category"`
	RiskLevel   string          `json:"risk_level"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Evidence    json.RawMessage `json:"evidence"`
	ArchivedAt  time.Time       `json:"archived_at"`
}

// Archive stores a finding's evidence and returns the object reference.
// An object that already exists is treated as archived: the reference is
// returned without error since evidence is immutable once written.
func (a *Archiver) Archive(ctx context.Context, finding *models.AuditFinding) (string, error) {
	if finding == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "finding is required")
	}
	if finding.ID == uuid.Nil || finding.RunID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "finding and run ids are required")
	}

	doc := record{
		RunID:       finding.RunID,
		FindingID:   finding.ID,
		Category:    string(finding.Category),
		RiskLevel:   string(finding.RiskLevel),
		Title:       finding.Title,
		Description: finding.Description,
		Evidence:    finding.Evidence,
		ArchivedAt:  a.now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal evidence record")
	}

	object := objectName(finding.RunID, finding.ID)
	if err := a.store.PutOnce(ctx, object, "application/json", data); err != nil {
		if errors.Is(err, gcs.ErrPreconditionFailed) {
			return a.reference(object), nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive evidence")
	}
	return a.reference(object), nil
}

// Fetch reads back an archived evidence document by its object name.
func (a *Archiver) Fetch(ctx context.Context, object string) ([]byte, error) {
	if object == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "object name is required")
	}
	data, err := a.store.Get(ctx, object)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch evidence")
	}
	return data, nil
}

// Verify reports whether a storage reference still resolves to an
// intact evidence document. A missing or malformed document yields
// false; transport failures surface as errors so callers can retry.
func (a *Archiver) Verify(ctx context.Context, storageRef string) (bool, error) {
	if storageRef == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "storage reference is required")
	}
	object, err := a.parseReference(storageRef)
	if err != nil {
		return false, err
	}
	data, err := a.store.Get(ctx, object)
	if err != nil {
		if errors.Is(err, gcs.ErrNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify evidence")
	}
	var doc record
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, nil
	}
	return doc.RunID != uuid.Nil && doc.FindingID != uuid.Nil, nil
}

func (a *Archiver) parseReference(ref string) (string, error) {
	prefix := fmt.Sprintf("gs://%s/", a.store.DefaultBucket())
	object, ok := strings.CutPrefix(ref, prefix)
	if !ok || object == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "storage reference does not address this bucket")
	}
	return object, nil
}

func (a *Archiver) reference(object string) string {
	return fmt.Sprintf("gs://%s/%s", a.store.DefaultBucket(), object)
}

func objectName(runID, findingID uuid.UUID) string {
	return fmt.Sprintf("audit-runs/%s/findings/%s.json", runID, findingID)
}
