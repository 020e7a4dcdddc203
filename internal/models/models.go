// Package models defines GORM models and SQLite database setup for Casefile.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSON is a custom type that stores JSON data as a string in SQLite.
type JSON json.RawMessage

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = JSON("null")
		return nil
	}
	switch v := value.(type) {
	case string:
		*j = JSON(v)
	case []byte:
		*j = JSON(v)
	default:
		return fmt.Errorf("unsupported type for JSON: %T", value)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = JSON(data)
	return nil
}

// User is a platform account. IsAdmin is a system-wide flag orthogonal to
// program roles: it unlocks administrative surfaces but does not by itself
// grant access to client records.
type User struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Email       string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	IsAdmin     bool      `gorm:"default:false" json:"is_admin"`
	IsDemo      bool      `gorm:"default:false" json:"is_demo"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Program is a service program clients enrol in and staff are assigned to.
type Program struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client is a participant file. Only the fields the authorization subsystem
// needs are modelled here; the wider CRUD surface lives elsewhere.
type Client struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	FirstName        string    `gorm:"not null;size:255" json:"first_name"`
	LastName         string    `gorm:"not null;size:255" json:"last_name"`
	PreferredName    string    `gorm:"size:255" json:"preferred_name"`
	Pronouns         string    `gorm:"size:64" json:"pronouns"`
	Phone            string    `gorm:"size:64" json:"phone"`
	Email            string    `gorm:"size:255" json:"email"`
	Address          string    `gorm:"size:512" json:"address"`
	EmergencyContact string    `gorm:"size:512" json:"emergency_contact"`
	BirthDate        string    `gorm:"size:10" json:"birth_date"`
	DvFlag           bool      `gorm:"default:false" json:"dv_flag"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Enrollments []ProgramEnrollment `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE" json:"enrollments,omitempty"`
}

// ProgramEnrollment links a client to a program. Only active enrolments
// count toward program-overlap authorization.
type ProgramEnrollment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ClientID  string    `gorm:"not null;size:36;index" json:"client_id"`
	ProgramID string    `gorm:"not null;size:36;index" json:"program_id"`
	Status    string    `gorm:"not null;size:20;default:active" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserProgramRole assigns a user a role within one program. A user may hold
// different roles in different programs; only active rows count toward
// authorization.
type UserProgramRole struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"not null;size:36;index:idx_upr_user_status" json:"user_id"`
	ProgramID string    `gorm:"not null;size:36;index" json:"program_id"`
	Role      string    `gorm:"not null;size:32" json:"role"`
	Status    string    `gorm:"not null;size:20;default:active;index:idx_upr_user_status" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Note is a case note attached to a client file.
type Note struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ClientID  string    `gorm:"not null;size:36;index" json:"client_id"`
	AuthorID  string    `gorm:"not null;size:36" json:"author_id"`
	Body      string    `gorm:"type:text" json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccessGrantReason is an admin-configurable justification category for
// access grants. Deactivated reasons stay referenced by historical grants
// but are excluded from new-grant selection.
type AccessGrantReason struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Label     string    `gorm:"not null;size:255" json:"label"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccessGrant is a time-boxed unlock of gated permissions for one
// (user, program) pair. Grants are never deleted; revocation flips IsActive
// and stamps who and when, preserving the audit trail.
type AccessGrant struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	UserID        string     `gorm:"not null;size:36;index:idx_grant_user_program" json:"user_id"`
	ProgramID     string     `gorm:"not null;size:36;index:idx_grant_user_program" json:"program_id"`
	ReasonID      string     `gorm:"not null;size:36" json:"reason_id"`
	Justification string     `gorm:"type:text;not null" json:"justification"`
	ExpiresAt     time.Time  `gorm:"not null" json:"expires_at"`
	IsActive      bool       `gorm:"default:true" json:"is_active"`
	RevokedByID   *string    `gorm:"size:36" json:"revoked_by_id,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Valid reports whether the grant unlocks gated permissions at the given
// instant: active and not yet expired.
func (g *AccessGrant) Valid(now time.Time) bool {
	return g.IsActive && now.Before(g.ExpiresAt)
}

// FieldAccessConfig overrides the built-in front-desk default for one core
// client field. Absence of a row falls back to the tier-sensitive defaults.
type FieldAccessConfig struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FieldName       string    `gorm:"uniqueIndex;not null;size:64" json:"field_name"`
	FrontDeskAccess string    `gorm:"not null;size:10" json:"front_desk_access"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CustomField is a dynamically defined client field. It carries its own
// three-state front-desk access, independent of the core-field policy and
// not tier sensitive.
type CustomField struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Name            string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	FrontDeskAccess string    `gorm:"not null;size:10;default:none" json:"front_desk_access"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClientAccessBlock is a hard per-user override: an active block always
// denies that user access to that client, even when program overlap would
// otherwise allow it.
type ClientAccessBlock struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"not null;size:36;index:idx_block_user_client" json:"user_id"`
	ClientID    string    `gorm:"not null;size:36;index:idx_block_user_client" json:"client_id"`
	Reason      string    `gorm:"size:512" json:"reason"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedByID string    `gorm:"size:36" json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DvFlagRemovalRequest asks for removal of a client's safety flag. A second,
// distinct actor must review it; while pending or rejected the flag stays in
// force.
type DvFlagRemovalRequest struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	ClientID    string     `gorm:"not null;size:36;index" json:"client_id"`
	RequesterID string     `gorm:"not null;size:36" json:"requester_id"`
	ReviewerID  *string    `gorm:"size:36" json:"reviewer_id,omitempty"`
	Reason      string     `gorm:"type:text;not null" json:"reason"`
	ReviewNote  string     `gorm:"type:text" json:"review_note"`
	Approved    *bool      `json:"approved"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Settings stores application-level key-value configuration, including the
// organization-wide access tier.
type Settings struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null;size:255" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditLog records structured audit events for grant lifecycle, tier
// changes, blocks and review decisions.
type AuditLog struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	ActorID      string    `gorm:"size:36;index" json:"actor_id"`
	Action       string    `gorm:"not null;size:64" json:"action"`
	ResourceType string    `gorm:"size:64" json:"resource_type"`
	ResourceID   string    `gorm:"size:36" json:"resource_id"`
	Metadata     JSON      `gorm:"type:text" json:"metadata"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// Valid statuses for program enrolments and user program roles.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusExited   = "exited"
)

// Three-state field access values for front-desk field configuration.
const (
	FieldAccessNone = "none"
	FieldAccessView = "view"
	FieldAccessEdit = "edit"
)

// Settings keys read by the authorization subsystem.
const (
	SettingAccessTier   = "access_tier"
	SettingGrantMinDays = "grant_min_days"
	SettingGrantMaxDays = "grant_max_days"
)
