package authz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openhearth/casefile/internal/audit"
	"github.com/openhearth/casefile/internal/models"
)

// Errors surfaced by the two-person-rule review workflow. Self-review is
// rejected at the write layer, not just hidden in the UI, so a direct API
// call cannot approve its own request.
var (
	ErrSelfReview        = errors.New("a request cannot be reviewed by its requester")
	ErrAlreadyReviewed   = errors.New("request has already been reviewed")
	ErrRequestNotFound   = errors.New("removal request not found")
	ErrOpenRequestExists = errors.New("an open removal request already exists for this client")
)

// ReviewService records DV flag removal requests and their reviews. While a
// request is pending or rejected, the flag on the client stays in force;
// only an approval by a distinct reviewer clears it.
type ReviewService struct {
	DB    *gorm.DB
	Audit audit.Sink
}

// Submit files a removal request for the client's safety flag.
func (s *ReviewService) Submit(clientID, requesterID, reason string) (*models.DvFlagRemovalRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "reason is required"}
	}

	var open int64
	err := s.DB.Model(&models.DvFlagRemovalRequest{}).
		Where("client_id = ? AND approved IS NULL", clientID).
		Count(&open).Error
	if err != nil {
		return nil, fmt.Errorf("checking open requests: %w", err)
	}
	if open > 0 {
		return nil, ErrOpenRequestExists
	}

	req := models.DvFlagRemovalRequest{
		ID:          uuid.New().String(),
		ClientID:    clientID,
		RequesterID: requesterID,
		Reason:      reason,
	}
	if err := s.DB.Create(&req).Error; err != nil {
		return nil, fmt.Errorf("creating removal request: %w", err)
	}
	return &req, nil
}

// Review records the second actor's decision. Approval clears the client's
// flag in the same transaction as the review write.
func (s *ReviewService) Review(requestID, reviewerID string, approve bool, note string) (*models.DvFlagRemovalRequest, error) {
	var req models.DvFlagRemovalRequest
	if err := s.DB.First(&req, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("loading removal request: %w", err)
	}
	if req.RequesterID == reviewerID {
		return nil, ErrSelfReview
	}
	if req.Approved != nil {
		return nil, ErrAlreadyReviewed
	}

	now := time.Now()
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"reviewer_id": reviewerID,
			"approved":    approve,
			"review_note": note,
			"reviewed_at": now,
		}
		if err := tx.Model(&req).Updates(updates).Error; err != nil {
			return fmt.Errorf("recording review: %w", err)
		}
		if approve {
			if err := tx.Model(&models.Client{}).Where("id = ?", req.ClientID).
				Update("dv_flag", false).Error; err != nil {
				return fmt.Errorf("clearing flag: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Record(audit.Event{
		Actor:        reviewerID,
		Action:       "dv_flag_removal.reviewed",
		ResourceType: "dv_flag_removal_request",
		ResourceID:   req.ID,
		Metadata: map[string]any{
			"client_id": req.ClientID,
			"requester": req.RequesterID,
			"approved":  approve,
		},
	})

	req.ReviewerID = &reviewerID
	req.Approved = &approve
	req.ReviewNote = note
	req.ReviewedAt = &now
	return &req, nil
}
