package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/openhearth/casefile/internal/authz"
	"github.com/openhearth/casefile/internal/models"
)

// ListClientNotes returns the notes on a client file.
func (s *Server) ListClientNotes(c *fiber.Ctx) error {
	if _, err := s.loadClient(c); err != nil {
		return err
	}
	var notes []models.Note
	if err := s.db.Where("client_id = ?", c.Params("id")).Order("created_at DESC").Find(&notes).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list notes")
	}
	return c.JSON(notes)
}

// CreateNote adds a note to a client file.
func (s *Server) CreateNote(c *fiber.Ctx) error {
	client, err := s.loadClient(c)
	if err != nil {
		return err
	}

	var req CreateNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Body == "" {
		return fiber.NewError(fiber.StatusBadRequest, "body is required")
	}

	note := models.Note{
		ID:       uuid.New().String(),
		ClientID: client.ID,
		AuthorID: currentUser(c).ID,
		Body:     req.Body,
	}
	if err := s.db.Create(&note).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create note")
	}
	return c.Status(fiber.StatusCreated).JSON(note)
}

// GetNote returns a single note by its own ID.
func (s *Server) GetNote(c *fiber.Ctx) error {
	note, err := s.loadNote(c)
	if err != nil {
		return err
	}
	return c.JSON(note)
}

// DownloadNote serves the note body as an attachment. The permission is
// re-evaluated at download time: tier or grant changes between rendering a
// link and following it must be honored.
func (s *Server) DownloadNote(c *fiber.Ctx) error {
	note, err := s.loadNote(c)
	if err != nil {
		return err
	}

	if err := s.checkPermission(c, authz.KeyNoteDownload); err != nil {
		return err
	}
	if c.Response().StatusCode() == fiber.StatusFound {
		return nil
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="note-`+note.ID+`.txt"`)
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(note.Body)
}

func (s *Server) loadNote(c *fiber.Ctx) (*models.Note, error) {
	var note models.Note
	if err := s.db.First(&note, "id = ?", c.Params("id")).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "note not found")
	}
	return &note, nil
}
