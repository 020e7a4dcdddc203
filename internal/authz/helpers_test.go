package authz

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openhearth/casefile/internal/audit"
	"github.com/openhearth/casefile/internal/models"
)

// testDB wraps the in-memory store with seeding helpers shared across the
// package tests.
type testDB struct {
	DB *gorm.DB
}

func (d *testDB) setTier(t *testing.T, value string) {
	t.Helper()
	d.DB.Where("key = ?", models.SettingAccessTier).Delete(&models.Settings{})
	if err := d.DB.Create(&models.Settings{Key: models.SettingAccessTier, Value: value}).Error; err != nil {
		t.Fatalf("seeding tier: %v", err)
	}
}

func (d *testDB) setSetting(t *testing.T, key, value string) {
	t.Helper()
	d.DB.Where("key = ?", key).Delete(&models.Settings{})
	if err := d.DB.Create(&models.Settings{Key: key, Value: value}).Error; err != nil {
		t.Fatalf("seeding setting %s: %v", key, err)
	}
}

func (d *testDB) user(t *testing.T) *models.User {
	t.Helper()
	user := &models.User{ID: uuid.New().String(), Email: uuid.New().String() + "@example.org"}
	if err := d.DB.Create(user).Error; err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return user
}

func (d *testDB) program(t *testing.T) *models.Program {
	t.Helper()
	program := &models.Program{ID: uuid.New().String(), Name: "program-" + uuid.New().String()[:8]}
	if err := d.DB.Create(program).Error; err != nil {
		t.Fatalf("seeding program: %v", err)
	}
	return program
}

func (d *testDB) assign(t *testing.T, userID, programID string, role Role) {
	t.Helper()
	row := &models.UserProgramRole{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProgramID: programID,
		Role:      string(role),
		Status:    models.StatusActive,
	}
	if err := d.DB.Create(row).Error; err != nil {
		t.Fatalf("seeding assignment: %v", err)
	}
}

func (d *testDB) client(t *testing.T, programIDs ...string) *models.Client {
	t.Helper()
	client := &models.Client{ID: uuid.New().String(), FirstName: "Test", LastName: "Client"}
	for _, programID := range programIDs {
		client.Enrollments = append(client.Enrollments, models.ProgramEnrollment{
			ID:        uuid.New().String(),
			ProgramID: programID,
			Status:    models.StatusActive,
		})
	}
	if err := d.DB.Create(client).Error; err != nil {
		t.Fatalf("seeding client: %v", err)
	}
	return client
}

func (d *testDB) reason(t *testing.T, label string, active bool) *models.AccessGrantReason {
	t.Helper()
	reason := &models.AccessGrantReason{ID: uuid.New().String(), Label: label, IsActive: active}
	if err := d.DB.Create(reason).Error; err != nil {
		t.Fatalf("seeding reason: %v", err)
	}
	return reason
}

// captureSink records audit events in memory.
type captureSink struct {
	events []audit.Event
}

func (c *captureSink) Record(event audit.Event) {
	c.events = append(c.events, event)
}

func (c *captureSink) last(t *testing.T) audit.Event {
	t.Helper()
	if len(c.events) == 0 {
		t.Fatal("expected at least one audit event")
	}
	return c.events[len(c.events)-1]
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
