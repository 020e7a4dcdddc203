package audit

import (
	"encoding/json"
	"testing"

	"gorm.io/gorm"

	"github.com/openhearth/casefile/internal/models"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.InitDB(":memory:")
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	return db
}

func TestRecorder_PersistsEvent(t *testing.T) {
	db := setupDB(t)
	recorder := NewRecorder(db, nil)

	recorder.Record(Event{
		Actor:        "user-1",
		Action:       "access_grant.created",
		ResourceType: "access_grant",
		ResourceID:   "grant-1",
		Metadata:     map[string]any{"program_id": "prog-1"},
	})

	var rows []models.AuditLog
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("loading audit rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(rows))
	}

	row := rows[0]
	if row.ActorID != "user-1" || row.Action != "access_grant.created" {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.CreatedAt.IsZero() {
		t.Error("created_at should be stamped")
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
		t.Fatalf("metadata should be valid JSON: %v", err)
	}
	if meta["program_id"] != "prog-1" {
		t.Errorf("metadata program_id: got %v", meta["program_id"])
	}
}

func TestRecorder_NilMetadata(t *testing.T) {
	db := setupDB(t)
	recorder := NewRecorder(db, nil)

	recorder.Record(Event{Actor: "user-1", Action: "settings.tier_changed"})

	var row models.AuditLog
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("loading audit row: %v", err)
	}
	if string(row.Metadata) != "null" {
		t.Errorf("metadata for absent map: got %q", row.Metadata)
	}
}

func TestConnect_EmptyURL(t *testing.T) {
	nc, err := Connect("")
	if err != nil {
		t.Fatalf("Connect(\"\"): %v", err)
	}
	if nc != nil {
		t.Fatal("empty URL should produce no connection")
	}
}
