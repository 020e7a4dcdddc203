package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/openhearth/casefile/internal/models"
)

// ListMyPrograms returns the programs the acting user is actively assigned
// to, for the program selector.
func (s *Server) ListMyPrograms(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	programIDs, err := s.scope.UserProgramIDs(user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load assignments")
	}
	var programs []models.Program
	if len(programIDs) > 0 {
		if err := s.db.Where("id IN ?", programIDs).Order("name ASC").Find(&programs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load programs")
		}
	}
	return c.JSON(fiber.Map{
		"programs": programs,
		"next":     c.Query("next"),
	})
}

// SelectProgram stores the session's active program context. The selection
// must be one of the user's active assignments.
func (s *Server) SelectProgram(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var req SelectProgramRequest
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

	sess, err := s.sessions.Get(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "session unavailable")
	}
	sess.Set(sessionActiveProgram, req.ProgramID)
	if err := sess.Save(); err != nil {
		slog.Error("failed to save program selection", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save selection")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AggregateView is the landing surface for roles without record-level
// access: program-level counts only, no individual records.
func (s *Server) AggregateView(c *fiber.Ctx) error {
	type programSummary struct {
		ProgramID   string `json:"program_id"`
		ProgramName string `json:"program_name"`
		Clients     int64  `json:"clients"`
	}

	var programs []models.Program
	if err := s.db.Order("name ASC").Find(&programs).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load programs")
	}

	summaries := make([]programSummary, 0, len(programs))
	for _, p := range programs {
		var count int64
		s.db.Model(&models.ProgramEnrollment{}).
			Where("program_id = ? AND status = ?", p.ID, models.StatusActive).
			Count(&count)
		summaries = append(summaries, programSummary{
			ProgramID:   p.ID,
			ProgramName: p.Name,
			Clients:     count,
		})
	}
	return c.JSON(fiber.Map{"programs": summaries})
}
