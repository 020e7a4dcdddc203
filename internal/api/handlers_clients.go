package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/openhearth/casefile/internal/authz"
	"github.com/openhearth/casefile/internal/models"
)

// CreateClient creates a client file enrolled in one program. The acting
// user must hold a staff or program manager role in that program. The new
// client ID is stored as a one-shot session marker so the immediate
// follow-up request succeeds even before the enrolment write is visible to
// the overlap check.
func (s *Server) CreateClient(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var req CreateClientRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.FirstName == "" || req.LastName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "first_name and last_name are required")
	}
	if req.ProgramID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "program_id is required")
	}

	assignments, err := s.scope.Repo.UserProgramRoles(user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load assignments")
	}
	allowed := false
	for _, a := range assignments {
		if a.ProgramID == req.ProgramID &&
			(a.Role == authz.RoleStaff || a.Role == authz.RoleProgramManager) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fiber.NewError(fiber.StatusForbidden, "you cannot create clients in this program")
	}

	client := models.Client{
		ID:        uuid.New().String(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
		BirthDate: req.BirthDate,
		DvFlag:    req.DvFlag,
		Enrollments: []models.ProgramEnrollment{{
			ID:        uuid.New().String(),
			ProgramID: req.ProgramID,
			Status:    models.StatusActive,
		}},
	}
	if err := s.db.Create(&client).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create client")
	}

	if sess, err := s.sessions.Get(c); err == nil {
		sess.Set(justCreatedKey, client.ID)
		if err := sess.Save(); err != nil {
			slog.Warn("failed to store just-created marker", "error", err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(client)
}

// GetClient returns a client file filtered through the field access policy
// for the caller's resolved role.
func (s *Server) GetClient(c *fiber.Ctx) error {
	client, err := s.loadClient(c)
	if err != nil {
		return err
	}

	role, _ := c.Locals(localClientRole).(authz.Role)
	access, err := s.fields.VisibleFields(role, s.tiers.Current())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to resolve field access")
	}

	fields := make(map[string]interface{})
	for _, name := range authz.CoreFields() {
		if access[name].Visible {
			fields[name] = clientFieldValue(client, name)
		}
	}

	return c.JSON(fiber.Map{
		"id":      client.ID,
		"dv_flag": client.DvFlag,
		"fields":  fields,
	})
}

// UpdateClient applies edits to a client's core fields. A caller whose
// edit permission resolved to a scoped effect may only touch fields the
// field access policy marks editable for their role; program-level editors
// may touch any core field.
func (s *Server) UpdateClient(c *fiber.Ctx) error {
	client, err := s.loadClient(c)
	if err != nil {
		return err
	}

	var req UpdateClientRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	provided := map[string]*string{
		"first_name":        req.FirstName,
		"last_name":         req.LastName,
		"preferred_name":    req.PreferredName,
		"pronouns":          req.Pronouns,
		"phone":             req.Phone,
		"email":             req.Email,
		"address":           req.Address,
		"emergency_contact": req.EmergencyContact,
		"birth_date":        req.BirthDate,
	}
	updates := make(map[string]interface{})
	for field, value := range provided {
		if value != nil {
			updates[field] = *value
		}
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	if name, ok := updates["first_name"].(string); ok && name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "first_name cannot be blank")
	}
	if name, ok := updates["last_name"].(string); ok && name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "last_name cannot be blank")
	}

	if scopedAccess(c) {
		role, _ := c.Locals(localClientRole).(authz.Role)
		access, err := s.fields.VisibleFields(role, s.tiers.Current())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to resolve field access")
		}
		for field := range updates {
			if !access[field].Editable {
				return fiber.NewError(fiber.StatusForbidden, "field "+field+" is not editable for your role")
			}
		}
	}

	if err := s.db.Model(client).Updates(updates).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update client")
	}
	return c.JSON(fiber.Map{"id": client.ID, "updated": len(updates)})
}

// GetClientFields returns the caller's field access map for this client,
// core fields and custom fields alike.
func (s *Server) GetClientFields(c *fiber.Ctx) error {
	if _, err := s.loadClient(c); err != nil {
		return err
	}

	role, _ := c.Locals(localClientRole).(authz.Role)
	access, err := s.fields.VisibleFields(role, s.tiers.Current())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to resolve field access")
	}

	var customFields []models.CustomField
	if err := s.db.Find(&customFields).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load custom fields")
	}
	custom := make(map[string]authz.FieldAccess, len(customFields))
	for _, field := range customFields {
		custom[field.Name] = s.fields.CustomFieldAccess(role, field)
	}

	return c.JSON(fiber.Map{
		"core":   access,
		"custom": custom,
	})
}

// GetClientClinical returns the clinical view of a client. The route guard
// has already resolved the gated clinical permission, including any access
// grant required at the strictest tier.
func (s *Server) GetClientClinical(c *fiber.Ctx) error {
	client, err := s.loadClient(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"id":         client.ID,
		"birth_date": client.BirthDate,
		"dv_flag":    client.DvFlag,
	})
}

// loadClient fetches the client addressed by the route. The request
// middleware has already established access; a miss here is a genuine 404.
func (s *Server) loadClient(c *fiber.Ctx) (*models.Client, error) {
	id := c.Params("id")
	var client models.Client
	if err := s.db.First(&client, "id = ?", id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "client not found")
	}
	return &client, nil
}

func clientFieldValue(client *models.Client, field string) string {
	switch field {
	case "first_name":
		return client.FirstName
	case "last_name":
		return client.LastName
	case "preferred_name":
		return client.PreferredName
	case "pronouns":
		return client.Pronouns
	case "phone":
		return client.Phone
	case "email":
		return client.Email
	case "address":
		return client.Address
	case "emergency_contact":
		return client.EmergencyContact
	case "birth_date":
		return client.BirthDate
	default:
		return ""
	}
}
