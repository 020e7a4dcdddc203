package authz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openhearth/casefile/internal/audit"
	"github.com/openhearth/casefile/internal/models"
)

// Default duration bounds for access grants, in days. Admins can override
// both via the settings table.
const (
	DefaultGrantMinDays = 1
	DefaultGrantMaxDays = 7
)

// ErrAlreadyRevoked is returned when revoking a grant that is no longer
// active. Double revocation is a caller error, not a silent no-op.
var ErrAlreadyRevoked = errors.New("grant is already revoked")

// ErrGrantNotFound is returned when the grant ID does not exist.
var ErrGrantNotFound = errors.New("grant not found")

// ValidationError is a form-level validation failure on a grant request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// GrantRequest carries everything needed to create an access grant. The
// permission key that triggered the request flow is passed through from the
// redirect context for the audit trail; it is not re-derived.
type GrantRequest struct {
	UserID        string
	ProgramID     string
	ReasonID      string
	Justification string
	DurationDays  int
	PermissionKey string
}

// GrantService creates, validates and revokes time-boxed access grants.
type GrantService struct {
	DB    *gorm.DB
	Audit audit.Sink

	// Now is the clock; overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

func (s *GrantService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Request validates and persists a new access grant and writes the audit
// entry recording the permission key, program and reason.
func (s *GrantService) Request(req GrantRequest) (*models.AccessGrant, error) {
	if strings.TrimSpace(req.Justification) == "" {
		return nil, &ValidationError{Field: "justification", Message: "justification is required"}
	}

	var reason models.AccessGrantReason
	if err := s.DB.First(&reason, "id = ?", req.ReasonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{Field: "reason_id", Message: "unknown reason"}
		}
		return nil, fmt.Errorf("loading grant reason: %w", err)
	}
	if !reason.IsActive {
		return nil, &ValidationError{Field: "reason_id", Message: "reason is no longer available"}
	}

	minDays, maxDays := s.durationBounds()
	if req.DurationDays < minDays || req.DurationDays > maxDays {
		return nil, &ValidationError{
			Field:   "duration_days",
			Message: fmt.Sprintf("duration must be between %d and %d days", minDays, maxDays),
		}
	}

	now := s.now()
	grant := models.AccessGrant{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		ProgramID:     req.ProgramID,
		ReasonID:      req.ReasonID,
		Justification: req.Justification,
		ExpiresAt:     now.Add(time.Duration(req.DurationDays) * 24 * time.Hour),
		IsActive:      true,
	}
	if err := s.DB.Create(&grant).Error; err != nil {
		return nil, fmt.Errorf("creating access grant: %w", err)
	}

	s.Audit.Record(audit.Event{
		Actor:        req.UserID,
		Action:       "access_grant.created",
		ResourceType: "access_grant",
		ResourceID:   grant.ID,
		Metadata: map[string]any{
			"program_id":     req.ProgramID,
			"reason":         reason.Label,
			"permission_key": req.PermissionKey,
			"expires_at":     grant.ExpiresAt,
		},
	})
	return &grant, nil
}

// Revoke deactivates a grant, stamping who revoked it and when. Revoking an
// already-revoked grant returns ErrAlreadyRevoked.
func (s *GrantService) Revoke(grantID, revokedBy string) error {
	var grant models.AccessGrant
	if err := s.DB.First(&grant, "id = ?", grantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGrantNotFound
		}
		return fmt.Errorf("loading grant: %w", err)
	}
	if !grant.IsActive {
		return ErrAlreadyRevoked
	}

	now := s.now()
	updates := map[string]interface{}{
		"is_active":     false,
		"revoked_by_id": revokedBy,
		"revoked_at":    now,
	}
	if err := s.DB.Model(&grant).Updates(updates).Error; err != nil {
		return fmt.Errorf("revoking grant: %w", err)
	}

	s.Audit.Record(audit.Event{
		Actor:        revokedBy,
		Action:       "access_grant.revoked",
		ResourceType: "access_grant",
		ResourceID:   grant.ID,
		Metadata: map[string]any{
			"grant_user_id": grant.UserID,
			"program_id":    grant.ProgramID,
		},
	})
	return nil
}

// EffectiveFor returns the most recently created valid grant for the
// (user, program) pair, or nil when none exists. Concurrent grants for the
// same pair are tolerated; any one valid match is authoritative.
func (s *GrantService) EffectiveFor(userID, programID string) (*models.AccessGrant, error) {
	var grants []models.AccessGrant
	err := s.DB.
		Where("user_id = ? AND program_id = ? AND is_active = ?", userID, programID, true).
		Order("created_at DESC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("loading grants: %w", err)
	}
	now := s.now()
	for i := range grants {
		if grants[i].Valid(now) {
			return &grants[i], nil
		}
	}
	return nil, nil
}

// durationBounds reads the configured min/max grant duration, falling back
// to the defaults on missing or malformed settings.
func (s *GrantService) durationBounds() (int, int) {
	minDays := settingInt(s.DB, models.SettingGrantMinDays, DefaultGrantMinDays)
	maxDays := settingInt(s.DB, models.SettingGrantMaxDays, DefaultGrantMaxDays)
	if minDays > maxDays {
		return DefaultGrantMinDays, DefaultGrantMaxDays
	}
	return minDays, maxDays
}

func settingInt(db *gorm.DB, key string, fallback int) int {
	var setting models.Settings
	if err := db.Where("key = ?", key).First(&setting).Error; err != nil {
		return fallback
	}
	n, err := strconv.Atoi(setting.Value)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
