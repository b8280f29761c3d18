package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// explicit DDL: the model's gen_random_uuid() default is Postgres-only
	ddl := `CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		CONSTRAINT ux_outbox_events_event_aggregate UNIQUE (event_type, aggregate_type, aggregate_id)
	)`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func TestEmitQueuesEnvelope(t *testing.T) {
	db := testDB(t)
	svc := NewService(NewRepository(db), nil)
	runID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventAuditRunCompleted,
			AggregateType: enums.AggregateAuditRun,
			AggregateID:   runID,
			Data:          map[string]any{"findings": 3},
			Version:       1,
		})
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	var rows []models.OutboxEvent
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("events = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.EventType != enums.EventAuditRunCompleted || row.AggregateID != runID {
		t.Errorf("row = %+v", row)
	}
	if row.ID == uuid.Nil {
		t.Error("emit did not assign the event row an id")
	}
	var envelope PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("payload is not an envelope: %v", err)
	}
	if envelope.Version != 1 || envelope.EventID == "" || envelope.OccurredAt.IsZero() {
		t.Errorf("envelope = %+v", envelope)
	}
}

func TestEmitIfNotExistsIsIdempotent(t *testing.T) {
	db := testDB(t)
	svc := NewService(NewRepository(db), nil)
	runID := uuid.New()

	event := DomainEvent{
		EventType:     enums.EventAuditRunCompleted,
		AggregateType: enums.AggregateAuditRun,
		AggregateID:   runID,
		Data:          map[string]any{"findings": 0},
		Version:       1,
	}
	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		})
		if err != nil {
			t.Fatalf("EmitIfNotExists attempt %d: %v", i+1, err)
		}
	}

	var count int64
	if err := db.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("events = %d, want 1", count)
	}
}

func TestFetchUnpublishedAndMarkPublished(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	for i := 0; i < 3; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, DomainEvent{
				EventType:     enums.EventAuditRunCompleted,
				AggregateType: enums.AggregateAuditRun,
				AggregateID:   uuid.New(),
				Data:          map[string]any{},
				Version:       1,
			})
		})
		if err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	rows, err := repo.FetchUnpublished(10, 0)
	if err != nil {
		t.Fatalf("FetchUnpublished: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("unpublished = %d, want 3", len(rows))
	}

	if err := repo.MarkPublished(rows[0].ID); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	remaining, err := repo.FetchUnpublished(10, 0)
	if err != nil {
		t.Fatalf("FetchUnpublished: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("unpublished after publish = %d, want 2", len(remaining))
	}
}

func TestFetchUnpublishedSkipsExhaustedEvents(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventAuditRunFailed,
			AggregateType: enums.AggregateAuditRun,
			AggregateID:   uuid.New(),
			Data:          map[string]any{},
			Version:       1,
		})
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	rows, err := repo.FetchUnpublished(10, 2)
	if err != nil {
		t.Fatalf("FetchUnpublished: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("unpublished = %d, want 1", len(rows))
	}

	for i := 0; i < 2; i++ {
		if err := repo.MarkFailed(rows[0].ID, fmt.Errorf("broker unavailable")); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
	}

	exhausted, err := repo.FetchUnpublished(10, 2)
	if err != nil {
		t.Fatalf("FetchUnpublished: %v", err)
	}
	if len(exhausted) != 0 {
		t.Errorf("unpublished after exhaustion = %d, want 0", len(exhausted))
	}
}
