package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/openhearth/casefile/internal/authz"
	"github.com/openhearth/casefile/internal/models"
)

// GrantRequestContext is the redirect target of the gated-permission flow.
// It echoes the next/permission/program parameters and lists the active
// justification reasons so a client can render the grant request form.
func (s *Server) GrantRequestContext(c *fiber.Ctx) error {
	if currentUser(c) == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var reasons []models.AccessGrantReason
	if err := s.db.Where("is_active = ?", true).Order("label ASC").Find(&reasons).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list reasons")
	}

	return c.JSON(fiber.Map{
		"next":       c.Query("next"),
		"permission": c.Query("permission"),
		"program":    c.Query("program"),
		"reasons":    reasons,
	})
}

// CreateGrant requests a time-boxed access grant for the acting user.
func (s *Server) CreateGrant(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var req CreateGrantRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ProgramID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "program_id is required")
	}

	programIDs, err := s.scope.UserProgramIDs(user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load assignments")
	}
	assigned := false
	for _, id := range programIDs {
		if id == req.ProgramID {
			assigned = true
			break
		}
	}
	if !assigned {
		return fiber.NewError(fiber.StatusForbidden, "you are not assigned to this program")
	}

	days := req.DurationDays
	if days == 0 {
		days = authz.DefaultGrantMaxDays
	}

	grant, err := s.grants.Request(authz.GrantRequest{
		UserID:        user.ID,
		ProgramID:     req.ProgramID,
		ReasonID:      req.ReasonID,
		Justification: req.Justification,
		DurationDays:  days,
		PermissionKey: req.Permission,
	})
	if err != nil {
		var verr *authz.ValidationError
		if errors.As(err, &verr) {
			return fiber.NewError(fiber.StatusBadRequest, verr.Error())
		}
		slog.Error("grant request failed", "user", user.ID, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create grant")
	}
	return c.Status(fiber.StatusCreated).JSON(grant)
}

// ListMyGrants returns the acting user's grants, newest first.
func (s *Server) ListMyGrants(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	var grants []models.AccessGrant
	if err := s.db.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&grants).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list grants")
	}
	return c.JSON(grants)
}

// RevokeGrant deactivates a grant. The grant's owner or an admin may
// revoke; revoking an already-revoked grant is a conflict, not a no-op.
func (s *Server) RevokeGrant(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var grant models.AccessGrant
	if err := s.db.First(&grant, "id = ?", c.Params("id")).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "grant not found")
	}
	if grant.UserID != user.ID && !user.IsAdmin {
		return fiber.NewError(fiber.StatusForbidden, "only the grant owner or an admin may revoke")
	}

	switch err := s.grants.Revoke(grant.ID, user.ID); {
	case err == nil:
	case errors.Is(err, authz.ErrAlreadyRevoked):
		return fiber.NewError(fiber.StatusConflict, "grant is already revoked")
	case errors.Is(err, authz.ErrGrantNotFound):
		return fiber.NewError(fiber.StatusNotFound, "grant not found")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to revoke grant")
	}

	if err := s.db.First(&grant, "id = ?", grant.ID).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to reload grant")
	}
	return c.JSON(grant)
}
