// Package audit records structured audit events for the authorization
// subsystem: grant lifecycle, tier changes, access blocks and review
// decisions. Events are persisted to the audit_logs table and optionally
// published to a NATS subject for downstream consumers.
package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"github.com/openhearth/casefile/internal/models"
)

// Subject is the NATS subject audit events are published on when a
// connection is configured.
const Subject = "casefile.audit"

// Event is one structured audit record.
type Event struct {
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Sink accepts audit events. Recording must never fail the request that
// produced the event; implementations log failures instead of returning
// them.
type Sink interface {
	Record(event Event)
}

// Recorder writes events to the database and, when a NATS connection is
// present, publishes them as JSON on Subject.
type Recorder struct {
	db *gorm.DB
	nc *nats.Conn
}

// NewRecorder creates a Recorder. nc may be nil for database-only auditing.
func NewRecorder(db *gorm.DB, nc *nats.Conn) *Recorder {
	return &Recorder{db: db, nc: nc}
}

func (r *Recorder) Record(event Event) {
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		meta = []byte("null")
	}

	row := models.AuditLog{
		ID:           uuid.New().String(),
		ActorID:      event.Actor,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Metadata:     models.JSON(meta),
		CreatedAt:    time.Now(),
	}
	if err := r.db.Create(&row).Error; err != nil {
		slog.Error("failed to persist audit event", "action", event.Action, "error", err)
	}

	if r.nc != nil {
		data, err := json.Marshal(event)
		if err != nil {
			return
		}
		if err := r.nc.Publish(Subject, data); err != nil {
			slog.Error("failed to publish audit event", "action", event.Action, "error", err)
		}
	}
}

// Connect dials NATS for audit publication. URL may be empty, in which case
// no connection is made and auditing is database-only.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("casefile-audit"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return nc, nil
}
