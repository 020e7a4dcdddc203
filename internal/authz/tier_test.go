package authz

import (
	"testing"

	"github.com/openhearth/casefile/internal/models"
)

func setupDB(t *testing.T) *testDB {
	t.Helper()
	db, err := models.InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	return &testDB{DB: db}
}

func TestSettingsTierSource_DefaultsToTier1(t *testing.T) {
	db := setupDB(t)
	source := &SettingsTierSource{DB: db.DB}

	if got := source.Current(); got != Tier1 {
		t.Fatalf("missing setting: got %d, want 1", got)
	}
}

func TestSettingsTierSource_ReadsStoredTier(t *testing.T) {
	db := setupDB(t)
	source := &SettingsTierSource{DB: db.DB}

	db.setTier(t, "3")
	if got := source.Current(); got != Tier3 {
		t.Fatalf("got %d, want 3", got)
	}

	db.setTier(t, "2")
	if got := source.Current(); got != Tier2 {
		t.Fatalf("got %d, want 2 after change, no caching allowed", got)
	}
}

func TestSettingsTierSource_MalformedDefaultsToTier1(t *testing.T) {
	tests := []string{"banana", "", "0", "4", "-1"}
	for _, value := range tests {
		db := setupDB(t)
		db.setTier(t, value)
		source := &SettingsTierSource{DB: db.DB}
		if got := source.Current(); got != Tier1 {
			t.Errorf("value %q: got %d, want 1", value, got)
		}
	}
}
