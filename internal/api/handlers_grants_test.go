package api

import (
	"strings"
	"testing"
	"time"

	"github.com/openhearth/casefile/internal/authz"
	"github.com/openhearth/casefile/internal/models"
)

func TestGatedPermission_GrantFlow(t *testing.T) {
	srv, db, _ := setupTestServer(t)
	program := seedProgram(t, db)
	manager := seedUser(t, db, false)
	seedRole(t, db, manager.ID, program.ID, authz.RoleProgramManager)
	client := seedClient(t, db, program.ID)
	seedNote(t, db, client.ID, manager.ID)
	reason := seedReason(t, db, "Crisis response", true)
	seedReason(t, db, "Retired reason", false)
	token := bearer(t, manager.ID)
	notesPath := "/api/clients/" + client.ID + "/notes"

	// At the default tier the gated effect relaxes to allow.
	rec := doRequest(srv, "GET", notesPath, nil, token)
	if rec.Code != 200 {
		t.Fatalf("tier 1 status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	// At the strictest tier the same request redirects into the grant flow.
	setTier(t, db, 3)
	rec = doRequest(srv, "GET", notesPath, nil, token)
	if rec.Code != 302 {
		t.Fatalf("tier 3 status: got %d, want 302\nbody: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "/api/grants/request?next=") {
		t.Fatalf("location: got %q, want the grant-request flow", location)
	}
	if !strings.Contains(location, "permission=note.view") {
		t.Errorf("location should carry the permission key: %q", location)
	}
	if !strings.Contains(location, "program="+program.ID) {
		t.Errorf("location should carry the program context: %q", location)
	}

	// The redirect target echoes the context and lists active reasons only.
	rec = doRequest(srv, "GET", location, nil, token)
	if rec.Code != 200 {
		t.Fatalf("grant context status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	var ctx struct {
		Permission string                     `json:"permission"`
		Program    string                     `json:"program"`
		Reasons    []models.AccessGrantReason `json:"reasons"`
	}
	parseJSON(t, rec, &ctx)
	if ctx.Permission != "note.view" {
		t.Errorf("permission: got %q", ctx.Permission)
	}
	if len(ctx.Reasons) != 1 || ctx.Reasons[0].ID != reason.ID {
		t.Errorf("reasons: got %+v, want only the active reason", ctx.Reasons)
	}

	// A grant unlocks the original destination.
	rec = doRequest(srv, "POST", "/api/grants", CreateGrantRequest{
		ProgramID:     program.ID,
		ReasonID:      reason.ID,
		Justification: "covering an after-hours crisis shift",
		DurationDays:  3,
		Permission:    "note.view",
	}, token)
	if rec.Code != 201 {
		t.Fatalf("grant status: got %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}
	var grant models.AccessGrant
	parseJSON(t, rec, &grant)

	rec = doRequest(srv, "GET", notesPath, nil, token)
	if rec.Code != 200 {
		t.Fatalf("granted status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	// Expiry puts the user back into the request flow.
	db.Model(&models.AccessGrant{}).Where("id = ?", grant.ID).
		Update("expires_at", time.Now().Add(-time.Hour))
	rec = doRequest(srv, "GET", notesPath, nil, token)
	if rec.Code != 302 {
		t.Fatalf("expired status: got %d, want 302\nbody: %s", rec.Code, rec.Body.String())
	}
}

func TestGatedPermission_GrantForAnySharedProgram(t *testing.T) {
	srv, db, _ := setupTestServer(t)
	programA := seedProgram(t, db)
	programB := seedProgram(t, db)
	manager := seedUser(t, db, false)
	seedRole(t, db, manager.ID, programA.ID, authz.RoleProgramManager)
	seedRole(t, db, manager.ID, programB.ID, authz.RoleProgramManager)
	client := seedClient(t, db, programA.ID, programB.ID)
	seedNote(t, db, client.ID, manager.ID)
	reason := seedReason(t, db, "Coverage", true)
	setTier(t, db, 3)
	token := bearer(t, manager.ID)

	// The grant covers the second shared program; it must satisfy the
	// gated check no matter which shared program is considered first.
	rec := doRequest(srv, "POST", "/api/grants", CreateGrantRequest{
		ProgramID:     programB.ID,
		ReasonID:      reason.ID,
		Justification: "cross-program coverage",
		DurationDays:  3,
	}, token)
	if rec.Code != 201 {
		t.Fatalf("grant status: got %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, "GET", "/api/clients/"+client.ID+"/notes", nil, token)
	if rec.Code != 200 {
		t.Fatalf("status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
}

func TestDownloadNote_RecheckedPerRequest(t *testing.T) {
	srv, db, _ := setupTestServer(t)
	program := seedProgram(t, db)
	user := seedUser(t, db, false)
	seedRole(t, db, user.ID, program.ID, authz.RoleStaff)
	client := seedClient(t, db, program.ID)
	note := seedNote(t, db, client.ID, user.ID)
	reason := seedReason(t, db, "Coverage", true)
	token := bearer(t, user.ID)
	downloadPath := "/api/notes/" + note.ID + "/download"

	rec := doRequest(srv, "GET", downloadPath, nil, token)
	if rec.Code != 200 {
		t.Fatalf("tier 1 status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	if disp := rec.Header().Get("Content-Disposition"); !strings.Contains(disp, "attachment") {
		t.Errorf("content-disposition: got %q", disp)
	}
	if rec.Body.String() != "session summary" {
		t.Errorf("body: got %q", rec.Body.String())
	}

	setTier(t, db, 3)
	rec = doRequest(srv, "GET", downloadPath, nil, token)
	if rec.Code != 302 {
		t.Fatalf("tier 3 status: got %d, want 302\nbody: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, "POST", "/api/grants", CreateGrantRequest{
		ProgramID:     program.ID,
		ReasonID:      reason.ID,
		Justification: "supervisor asked for the file",
		DurationDays:  2,
	}, token)
	if rec.Code != 201 {
		t.Fatalf("grant status: got %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}
	var grant models.AccessGrant
	parseJSON(t, rec, &grant)

	rec = doRequest(srv, "GET", downloadPath, nil, token)
	if rec.Code != 200 {
		t.Fatalf("granted status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	// Revocation takes effect on the very next download attempt.
	rec = doRequest(srv, "POST", "/api/grants/"+grant.ID+"/revoke", nil, token)
	if rec.Code != 200 {
		t.Fatalf("revoke status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(srv, "GET", downloadPath, nil, token)
	if rec.Code != 302 {
		t.Fatalf("post-revoke status: got %d, want 302\nbody: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateGrant_RequiresProgramAssignment(t *testing.T) {
	srv, db, _ := setupTestServer(t)
	program := seedProgram(t, db)
	other := seedProgram(t, db)
	user := seedUser(t, db, false)
	seedRole(t, db, user.ID, program.ID, authz.RoleStaff)
	reason := seedReason(t, db, "Coverage", true)

	rec := doRequest(srv, "POST", "/api/grants", CreateGrantRequest{
		ProgramID:     other.ID,
		ReasonID:      reason.ID,
		Justification: "needs access",
		DurationDays:  3,
	}, bearer(t, user.ID))
	if rec.Code != 403 {
		t.Fatalf("status: got %d, want 403\nbody: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateGrant_ValidationFailures(t *testing.T) {
	srv, db, _ := setupTestServer(t)
	program := seedProgram(t, db)
	user := seedUser(t, db, false)
	seedRole(t, db, user.ID, program.ID, authz.RoleStaff)
	reason := seedReason(t, db, "Coverage", true)
	token := bearer(t, user.ID)

	rec := doRequest(srv, "POST", "/api/grants", CreateGrantRequest{
		ProgramID: program.ID, ReasonID: reason.ID, Justification: "  ", DurationDays: 3,
	}, token)
	if rec.Code != 400 {
		t.Fatalf("blank justification status: got %d, want 400\nbody: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, "POST", "/api/grants", CreateGrantRequest{
		ProgramID: program.ID, ReasonID: reason.ID, Justification: "needs access", DurationDays: 30,
	}, token)
	if rec.Code != 400 {
		t.Fatalf("excessive duration status: got %d, want 400\nbody: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateGrant_DefaultDuration(t *testing.T) {
	srv, db, _ := setupTestServer(t)
	program := seedProgram(t, db)
	user := seedUser(t, db, false)
	seedRole(t, db, user.ID, program.ID, authz.RoleStaff)
	reason := seedReason(t, db, "Coverage", true)

	rec := doRequest(srv, "POST", "/api/grants", CreateGrantRequest{
		ProgramID:     program.ID,
		ReasonID:      reason.ID,
		Justification: "needs access",
	}, bearer(t, user.ID))
	if rec.Code != 201 {
		t.Fatalf("status: got %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}

	var grant models.AccessGrant
	parseJSON(t, rec, &grant)
	remaining := time.Until(grant.ExpiresAt)
	if remaining < 6*24*time.Hour || remaining > 8*24*time.Hour {
		t.Errorf("default expiry: %v remaining, want about %d days", remaining, authz.DefaultGrantMaxDays)
	}
}

func TestRevokeGrant_OwnerOrAdminOnly(t *testing.T) {
	srv, db, _ := setupTestServer(t)
	program := seedProgram(t, db)
	owner := seedUser(t, db, false)
	seedRole(t, db, owner.ID, program.ID, authz.RoleStaff)
	reason := seedReason(t, db, "Coverage", true)

	rec := doRequest(srv, "POST", "/api/grants", CreateGrantRequest{
		ProgramID: program.ID, ReasonID: reason.ID, Justification: "needs access", DurationDays: 3,
	}, bearer(t, owner.ID))
	if rec.Code != 201 {
		t.Fatalf("grant status: got %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}
	var grant models.AccessGrant
	parseJSON(t, rec, &grant)

	stranger := seedUser(t, db, false)
	seedRole(t, db, stranger.ID, program.ID, authz.RoleStaff)
	rec = doRequest(srv, "POST", "/api/grants/"+grant.ID+"/revoke", nil, bearer(t, stranger.ID))
	if rec.Code != 403 {
		t.Fatalf("stranger revoke status: got %d, want 403\nbody: %s", rec.Code, rec.Body.String())
	}

	admin := seedUser(t, db, true)
	rec = doRequest(srv, "POST", "/api/grants/"+grant.ID+"/revoke", nil, bearer(t, admin.ID))
	if rec.Code != 200 {
		t.Fatalf("admin revoke status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	var revoked models.AccessGrant
	parseJSON(t, rec, &revoked)
	if revoked.IsActive {
		t.Error("revoke response should reflect the deactivated grant")
	}
	if revoked.RevokedByID == nil || *revoked.RevokedByID != admin.ID {
		t.Error("revoke response should carry the revoking user")
	}

	// Double revocation is a conflict, not a silent no-op.
	rec = doRequest(srv, "POST", "/api/grants/"+grant.ID+"/revoke", nil, bearer(t, admin.ID))
	if rec.Code != 409 {
		t.Fatalf("double revoke status: got %d, want 409\nbody: %s", rec.Code, rec.Body.String())
	}
}

func TestListMyGrants_OwnOnly(t *testing.T) {
	srv, db, _ := setupTestServer(t)
	program := seedProgram(t, db)
	userA := seedUser(t, db, false)
	userB := seedUser(t, db, false)
	seedRole(t, db, userA.ID, program.ID, authz.RoleStaff)
	seedRole(t, db, userB.ID, program.ID, authz.RoleStaff)
	reason := seedReason(t, db, "Coverage", true)

	for _, token := range []string{bearer(t, userA.ID), bearer(t, userB.ID)} {
		rec := doRequest(srv, "POST", "/api/grants", CreateGrantRequest{
			ProgramID: program.ID, ReasonID: reason.ID, Justification: "needs access", DurationDays: 3,
		}, token)
		if rec.Code != 201 {
			t.Fatalf("grant status: got %d, want 201\nbody: %s", rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(srv, "GET", "/api/grants/mine", nil, bearer(t, userA.ID))
	if rec.Code != 200 {
		t.Fatalf("status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	var grants []models.AccessGrant
	parseJSON(t, rec, &grants)
	if len(grants) != 1 {
		t.Fatalf("grants: got %d, want 1", len(grants))
	}
	if grants[0].UserID != userA.ID {
		t.Errorf("grant user: got %s", grants[0].UserID)
	}
}

func TestGrantRequestContext_RequiresIdentity(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rec := doRequest(srv, "GET", "/api/grants/request", nil, "")
	if rec.Code != 401 {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
}
