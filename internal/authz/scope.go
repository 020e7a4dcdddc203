package authz

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/openhearth/casefile/internal/models"
)

// ErrNotFound distinguishes a nonexistent resource from an authorization
// failure. Callers translate it to 404, never 403: conflating the two leaks
// whether a record exists.
var ErrNotFound = errors.New("resource not found")

// ProgramRole is one active (program, role) assignment for a user.
type ProgramRole struct {
	ProgramID string
	Role      Role
}

// Repository abstracts the membership and enrolment lookups the scope
// resolver needs, so the policy logic is testable with in-memory fakes.
type Repository interface {
	// UserProgramRoles returns the user's active program role assignments.
	UserProgramRoles(userID string) ([]ProgramRole, error)
	// ClientProgramIDs returns the program IDs the client is actively
	// enrolled in. A nonexistent client yields ErrNotFound; an existing
	// client with no active enrolments yields an empty slice.
	ClientProgramIDs(clientID string) ([]string, error)
	// NoteClientID resolves a note to its owning client; ErrNotFound when
	// the note does not exist.
	NoteClientID(noteID string) (string, error)
	// HasActiveBlock reports whether an active access block exists for the
	// (user, client) pair.
	HasActiveBlock(userID, clientID string) (bool, error)
}

// GormRepository is the production Repository backed by the GORM store.
type GormRepository struct {
	DB *gorm.DB
}

func (r *GormRepository) UserProgramRoles(userID string) ([]ProgramRole, error) {
	var rows []models.UserProgramRole
	err := r.DB.Where("user_id = ? AND status = ?", userID, models.StatusActive).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("loading program roles: %w", err)
	}
	assignments := make([]ProgramRole, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, ProgramRole{ProgramID: row.ProgramID, Role: Role(row.Role)})
	}
	return assignments, nil
}

func (r *GormRepository) ClientProgramIDs(clientID string) ([]string, error) {
	var count int64
	if err := r.DB.Model(&models.Client{}).Where("id = ?", clientID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("checking client existence: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	var ids []string
	err := r.DB.Model(&models.ProgramEnrollment{}).
		Where("client_id = ? AND status = ?", clientID, models.StatusActive).
		Pluck("program_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("loading client enrolments: %w", err)
	}
	return ids, nil
}

func (r *GormRepository) NoteClientID(noteID string) (string, error) {
	var note models.Note
	if err := r.DB.Select("client_id").First(&note, "id = ?", noteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("loading note: %w", err)
	}
	return note.ClientID, nil
}

func (r *GormRepository) HasActiveBlock(userID, clientID string) (bool, error) {
	var count int64
	err := r.DB.Model(&models.ClientAccessBlock{}).
		Where("user_id = ? AND client_id = ? AND is_active = ?", userID, clientID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking access block: %w", err)
	}
	return count > 0, nil
}

// ScopeResolver computes program-overlap access between users and client
// records.
type ScopeResolver struct {
	Repo Repository
}

// UserProgramIDs returns the set of program IDs the user is actively
// assigned to.
func (s *ScopeResolver) UserProgramIDs(userID string) ([]string, error) {
	assignments, err := s.Repo.UserProgramRoles(userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(assignments))
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if !seen[a.ProgramID] {
			seen[a.ProgramID] = true
			ids = append(ids, a.ProgramID)
		}
	}
	return ids, nil
}

// HasOverlap reports whether the user's active programs intersect the
// client's active enrolments. A nonexistent client propagates ErrNotFound.
// An active access block denies regardless of overlap, and a user with zero
// active assignments never overlaps anything.
func (s *ScopeResolver) HasOverlap(userID, clientID string) (bool, error) {
	clientPrograms, err := s.Repo.ClientProgramIDs(clientID)
	if err != nil {
		return false, err
	}
	blocked, err := s.Repo.HasActiveBlock(userID, clientID)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}
	userPrograms, err := s.UserProgramIDs(userID)
	if err != nil {
		return false, err
	}
	return intersects(userPrograms, clientPrograms), nil
}

// HighestRoleFor returns the highest-ranked role the user holds in a program
// shared with the client. The second return is false when there is no
// overlap. ErrNotFound propagates for a nonexistent client.
func (s *ScopeResolver) HighestRoleFor(userID, clientID string) (Role, bool, error) {
	clientPrograms, err := s.Repo.ClientProgramIDs(clientID)
	if err != nil {
		return "", false, err
	}
	blocked, err := s.Repo.HasActiveBlock(userID, clientID)
	if err != nil {
		return "", false, err
	}
	if blocked {
		return "", false, nil
	}
	assignments, err := s.Repo.UserProgramRoles(userID)
	if err != nil {
		return "", false, err
	}
	clientSet := make(map[string]bool, len(clientPrograms))
	for _, id := range clientPrograms {
		clientSet[id] = true
	}
	var best Role
	found := false
	for _, a := range assignments {
		if !clientSet[a.ProgramID] {
			continue
		}
		if !found || roleRank[a.Role] > roleRank[best] {
			best = a.Role
			found = true
		}
	}
	return best, found, nil
}

// OverlappingPrograms returns the program IDs shared between the user and
// the client, used to pick the program context for a grant request.
func (s *ScopeResolver) OverlappingPrograms(userID, clientID string) ([]string, error) {
	clientPrograms, err := s.Repo.ClientProgramIDs(clientID)
	if err != nil {
		return nil, err
	}
	userPrograms, err := s.UserProgramIDs(userID)
	if err != nil {
		return nil, err
	}
	clientSet := make(map[string]bool, len(clientPrograms))
	for _, id := range clientPrograms {
		clientSet[id] = true
	}
	var shared []string
	for _, id := range userPrograms {
		if clientSet[id] {
			shared = append(shared, id)
		}
	}
	return shared, nil
}

// HighestRole returns the user's single highest role across all active
// assignments, false when they have none.
func (s *ScopeResolver) HighestRole(userID string) (Role, bool, error) {
	assignments, err := s.Repo.UserProgramRoles(userID)
	if err != nil {
		return "", false, err
	}
	if len(assignments) == 0 {
		return "", false, nil
	}
	best := assignments[0].Role
	for _, a := range assignments[1:] {
		best = HigherRole(best, a.Role)
	}
	return best, true, nil
}

// AllClientPermissionsDenied reports whether the user's highest role denies
// every client-scoped permission key, meaning record-level routes are
// structurally useless for them and they should land on the aggregate view
// instead. Users with no active assignments return false; they are handled
// by the overlap check, not the redirect.
func (s *ScopeResolver) AllClientPermissionsDenied(userID string) (bool, error) {
	role, ok, err := s.HighestRole(userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for _, key := range ClientScopedKeys() {
		if CanAccess(role, key) != Deny {
			return false, nil
		}
	}
	return true, nil
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if set[id] {
			return true
		}
	}
	return false
}
