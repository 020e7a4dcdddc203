// Package api implements the Fiber HTTP API for the Casefile case-management
// service. The interesting part is the authorization chain: the identity
// middleware resolves the acting user, the request gate enforces program
// overlap and structural redirects, and per-route permission guards apply
// the tier-resolved effect matrix, falling back to the access-grant flow
// for gated permissions.
package api

// CreateClientRequest is the payload for POST /api/clients.
type CreateClientRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	ProgramID string `json:"program_id" validate:"required"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	BirthDate string `json:"birth_date"`
	DvFlag    bool   `json:"dv_flag"`
}

// UpdateClientRequest is the payload for PUT /api/clients/:id. Pointer
// fields distinguish "leave unchanged" from "set to empty".
type UpdateClientRequest struct {
	FirstName        *string `json:"first_name"`
	LastName         *string `json:"last_name"`
	PreferredName    *string `json:"preferred_name"`
	Pronouns         *string `json:"pronouns"`
	Phone            *string `json:"phone"`
	Email            *string `json:"email"`
	Address          *string `json:"address"`
	EmergencyContact *string `json:"emergency_contact"`
	BirthDate        *string `json:"birth_date"`
}

// CreateNoteRequest is the payload for POST /api/clients/:id/notes.
type CreateNoteRequest struct {
	Body string `json:"body" validate:"required"`
}

// SelectProgramRequest is the payload for POST /api/select-program.
type SelectProgramRequest struct {
	ProgramID string `json:"program_id" validate:"required"`
}

// CreateGrantRequest is the payload for POST /api/grants.
type CreateGrantRequest struct {
	ProgramID     string `json:"program_id" validate:"required"`
	ReasonID      string `json:"reason_id" validate:"required"`
	Justification string `json:"justification" validate:"required"`
	DurationDays  int    `json:"duration_days"`
	Permission    string `json:"permission"`
}

// SetTierRequest is the payload for PUT /api/admin/tier.
type SetTierRequest struct {
	Tier int `json:"tier" validate:"required"`
}

// CreateReasonRequest is the payload for POST /api/admin/reasons.
type CreateReasonRequest struct {
	Label string `json:"label" validate:"required"`
}

// FieldConfigRequest is the payload for PUT /api/admin/field-config.
type FieldConfigRequest struct {
	FieldName       string `json:"field_name" validate:"required"`
	FrontDeskAccess string `json:"front_desk_access" validate:"required"`
}

// CreateBlockRequest is the payload for POST /api/admin/blocks.
type CreateBlockRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	ClientID string `json:"client_id" validate:"required"`
	Reason   string `json:"reason"`
}

// SubmitDvRemovalRequest is the payload for POST /api/dv-removal.
type SubmitDvRemovalRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

// ReviewDvRemovalRequest is the payload for POST /api/dv-removal/:id/review.
type ReviewDvRemovalRequest struct {
	Approve    bool   `json:"approve"`
	ReviewNote string `json:"review_note"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
