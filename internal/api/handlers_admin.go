package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/openhearth/casefile/internal/audit"
	"github.com/openhearth/casefile/internal/authz"
	"github.com/openhearth/casefile/internal/models"
)

// GetTier returns the current organization access tier.
func (s *Server) GetTier(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tier": int(s.tiers.Current())})
}

// SetTier updates the organization access tier. The change affects the very
// next evaluation; nothing caches tier state across requests.
func (s *Server) SetTier(c *fiber.Ctx) error {
	var req SetTierRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Tier < 1 || req.Tier > 3 {
		return fiber.NewError(fiber.StatusBadRequest, "tier must be 1, 2 or 3")
	}

	setting := models.Settings{Key: models.SettingAccessTier, Value: strconv.Itoa(req.Tier)}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update tier")
	}

	s.audit.Record(audit.Event{
		Actor:        currentUser(c).ID,
		Action:       "settings.tier_changed",
		ResourceType: "settings",
		ResourceID:   models.SettingAccessTier,
		Metadata:     map[string]any{"tier": req.Tier},
	})
	return c.JSON(fiber.Map{"tier": req.Tier})
}

// ListReasons returns the full grant reason catalogue, active and not.
func (s *Server) ListReasons(c *fiber.Ctx) error {
	var reasons []models.AccessGrantReason
	if err := s.db.Order("label ASC").Find(&reasons).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list reasons")
	}
	return c.JSON(reasons)
}

// CreateReason adds a grant justification category.
func (s *Server) CreateReason(c *fiber.Ctx) error {
	var req CreateReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Label == "" {
		return fiber.NewError(fiber.StatusBadRequest, "label is required")
	}
	reason := models.AccessGrantReason{
		ID:       uuid.New().String(),
		Label:    req.Label,
		IsActive: true,
	}
	if err := s.db.Create(&reason).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create reason")
	}
	return c.Status(fiber.StatusCreated).JSON(reason)
}

// DeactivateReason retires a reason from new-grant selection. Historical
// grants keep referencing it.
func (s *Server) DeactivateReason(c *fiber.Ctx) error {
	var reason models.AccessGrantReason
	if err := s.db.First(&reason, "id = ?", c.Params("id")).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "reason not found")
	}
	if err := s.db.Model(&reason).Update("is_active", false).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to deactivate reason")
	}
	reason.IsActive = false
	return c.JSON(reason)
}

// ListFieldConfig returns the explicit front-desk field overrides.
func (s *Server) ListFieldConfig(c *fiber.Ctx) error {
	var rows []models.FieldAccessConfig
	if err := s.db.Order("field_name ASC").Find(&rows).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list field config")
	}
	return c.JSON(rows)
}

// UpsertFieldConfig sets the front-desk access level for one core field.
func (s *Server) UpsertFieldConfig(c *fiber.Ctx) error {
	var req FieldConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	valid := false
	for _, name := range authz.CoreFields() {
		if name == req.FieldName {
			valid = true
			break
		}
	}
	if !valid {
		return fiber.NewError(fiber.StatusBadRequest, "unknown field name")
	}
	switch req.FrontDeskAccess {
	case models.FieldAccessNone, models.FieldAccessView, models.FieldAccessEdit:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "front_desk_access must be none, view or edit")
	}

	row := models.FieldAccessConfig{FieldName: req.FieldName, FrontDeskAccess: req.FrontDeskAccess}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "field_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"front_desk_access", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save field config")
	}
	return c.JSON(row)
}

// CreateBlock records a hard per-user access block on a client.
func (s *Server) CreateBlock(c *fiber.Ctx) error {
	var req CreateBlockRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" || req.ClientID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id and client_id are required")
	}

	block := models.ClientAccessBlock{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		ClientID:    req.ClientID,
		Reason:      req.Reason,
		IsActive:    true,
		CreatedByID: currentUser(c).ID,
	}
	if err := s.db.Create(&block).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create block")
	}

	s.audit.Record(audit.Event{
		Actor:        currentUser(c).ID,
		Action:       "access_block.created",
		ResourceType: "client_access_block",
		ResourceID:   block.ID,
		Metadata:     map[string]any{"user_id": req.UserID, "client_id": req.ClientID},
	})
	return c.Status(fiber.StatusCreated).JSON(block)
}

// DeactivateBlock lifts an access block.
func (s *Server) DeactivateBlock(c *fiber.Ctx) error {
	var block models.ClientAccessBlock
	if err := s.db.First(&block, "id = ?", c.Params("id")).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "block not found")
	}
	if err := s.db.Model(&block).Update("is_active", false).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to deactivate block")
	}

	s.audit.Record(audit.Event{
		Actor:        currentUser(c).ID,
		Action:       "access_block.deactivated",
		ResourceType: "client_access_block",
		ResourceID:   block.ID,
	})
	block.IsActive = false
	return c.JSON(block)
}

// ListAuditLog returns recent audit entries, newest first.
func (s *Server) ListAuditLog(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	var rows []models.AuditLog
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list audit log")
	}
	return c.JSON(rows)
}
