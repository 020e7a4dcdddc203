package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/openhearth/casefile/internal/authz"
)

// SubmitDvRemoval files a removal request for a client's safety flag. The
// requester must have program overlap with the client; the flag itself
// stays in force until a distinct reviewer approves.
func (s *Server) SubmitDvRemoval(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var req SubmitDvRemovalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ClientID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "client_id is required")
	}

	overlap, err := s.scope.HasOverlap(user.ID, req.ClientID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "client not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "authorization check failed")
	}
	if !overlap {
		if user.IsAdmin {
			return fiber.NewError(fiber.StatusForbidden, msgAdminNoBypass)
		}
		return fiber.NewError(fiber.StatusForbidden, msgNotAssigned)
	}

	request, err := s.reviews.Submit(req.ClientID, user.ID, req.Reason)
	if err != nil {
		var verr *authz.ValidationError
		switch {
		case errors.As(err, &verr):
			return fiber.NewError(fiber.StatusBadRequest, verr.Error())
		case errors.Is(err, authz.ErrOpenRequestExists):
			return fiber.NewError(fiber.StatusConflict, "an open removal request already exists for this client")
		default:
			return fiber.NewError(fiber.StatusInternalServerError, "failed to submit request")
		}
	}
	return c.Status(fiber.StatusCreated).JSON(request)
}

// ReviewDvRemoval records the second actor's decision on a removal request.
// Reviewers must be admins or program managers, and the write layer rejects
// self-review regardless of who calls.
func (s *Server) ReviewDvRemoval(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	if !user.IsAdmin {
		role, found, err := s.scope.HighestRole(user.ID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "authorization check failed")
		}
		if !found || role != authz.RoleProgramManager {
			return fiber.NewError(fiber.StatusForbidden, "only program managers or admins may review removal requests")
		}
	}

	var req ReviewDvRemovalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	reviewed, err := s.reviews.Review(c.Params("id"), user.ID, req.Approve, req.ReviewNote)
	switch {
	case err == nil:
	case errors.Is(err, authz.ErrSelfReview):
		return fiber.NewError(fiber.StatusForbidden, "a request cannot be reviewed by its requester")
	case errors.Is(err, authz.ErrAlreadyReviewed):
		return fiber.NewError(fiber.StatusConflict, "request has already been reviewed")
	case errors.Is(err, authz.ErrRequestNotFound):
		return fiber.NewError(fiber.StatusNotFound, "removal request not found")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to record review")
	}
	return c.JSON(reviewed)
}
