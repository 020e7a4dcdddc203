package api

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/openhearth/casefile/internal/authz"
)

// RequirePermission gates a route on the tier-resolved effect of one
// permission key. It is the view-level re-check behind the request
// middleware: the middleware decides whether the user may touch the client
// at all, this guard decides whether they may perform this operation on it.
func (s *Server) RequirePermission(key authz.Key) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := s.checkPermission(c, key); err != nil {
			return err
		}
		if c.Response().StatusCode() == fiber.StatusFound {
			return nil
		}
		return c.Next()
	}
}

// checkPermission evaluates key for the current request. It returns nil
// when access is granted. A Gated effect without a live grant writes a
// redirect to the grant-request flow carrying next and permission, so the
// user can return to their destination after a successful grant; callers
// must not continue once the response status is a redirect.
func (s *Server) checkPermission(c *fiber.Ctx, key authz.Key) error {
	user := currentUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	// Admin bypass is opted into per key for operational permissions only.
	if user.IsAdmin && authz.AdminExempt(key) {
		return nil
	}

	role, ok := c.Locals(localClientRole).(authz.Role)
	if !ok {
		highest, found, err := s.scope.HighestRole(user.ID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "authorization check failed")
		}
		if !found {
			return fiber.NewError(fiber.StatusForbidden, "no active program assignment")
		}
		role = highest
	}

	tier := s.tiers.Current()
	switch authz.Effective(role, key, tier) {
	case authz.Allow:
		return nil
	case authz.Program:
		// Overlap was enforced by the request middleware; a missing client
		// context means this route was wired without one.
		if c.Locals(localClientID) == nil {
			return fiber.NewError(fiber.StatusForbidden, "permission denied")
		}
		return nil
	case authz.Scoped:
		if c.Locals(localClientID) == nil {
			return fiber.NewError(fiber.StatusForbidden, "permission denied")
		}
		// The view must narrow the operation beyond program overlap, e.g.
		// to the caller's editable field set.
		c.Locals(localScopedAccess, true)
		return nil
	case authz.Gated:
		if missing, _ := c.Locals(localResourceMissing).(bool); missing {
			// The target does not exist; let the view's 404 answer instead
			// of steering the user into the grant flow.
			return nil
		}
		return s.checkGated(c, user.ID, key)
	default:
		return fiber.NewError(fiber.StatusForbidden, "permission denied")
	}
}

// checkGated resolves a Gated effect at the strictest tier: a live grant
// for any program in the request's context allows, anything else redirects
// to the grant-request flow.
func (s *Server) checkGated(c *fiber.Ctx, userID string, key authz.Key) error {
	candidates := s.grantProgramCandidates(c, userID)

	for _, programID := range candidates {
		grant, err := s.grants.EffectiveFor(userID, programID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "authorization check failed")
		}
		if grant != nil {
			return nil
		}
	}

	suggested := ""
	if len(candidates) > 0 {
		suggested = candidates[0]
	}
	target := "/api/grants/request?next=" + url.QueryEscape(c.OriginalURL()) +
		"&permission=" + url.QueryEscape(string(key)) +
		"&program=" + url.QueryEscape(suggested)
	return c.Redirect(target, fiber.StatusFound)
}

// grantProgramCandidates lists the programs a grant may cover: every program
// shared with the target client when the request carries one, else the
// session-selected or active programs.
func (s *Server) grantProgramCandidates(c *fiber.Ctx, userID string) []string {
	if clientID, ok := c.Locals(localClientID).(string); ok {
		shared, err := s.scope.OverlappingPrograms(userID, clientID)
		if err == nil && len(shared) > 0 {
			return shared
		}
	}
	if active, ok := c.Locals(localActivePrograms).([]string); ok {
		return active
	}
	return nil
}

// scopedAccess reports whether the guard resolved a scoped effect for this
// request, obliging the view to restrict the operation further.
func scopedAccess(c *fiber.Ctx) bool {
	scoped, _ := c.Locals(localScopedAccess).(bool)
	return scoped
}
