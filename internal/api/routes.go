package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/openhearth/casefile/internal/authz"
)

func (s *Server) registerRoutes() {
	// Health check.
	s.App.Get("/health", s.HealthCheck)

	api := s.App.Group("/api")

	// Program selection.
	api.Get("/select-program", s.ListMyPrograms)
	api.Post("/select-program", s.SelectProgram)

	// Aggregate landing for roles without record-level access.
	api.Get("/aggregate", s.RequirePermission(authz.KeyReportAggregate), s.AggregateView)

	// Clients. The request middleware has already enforced program overlap
	// for every /api/clients/:id path; the guards apply per-operation keys.
	clients := api.Group("/clients")
	clients.Post("/", s.CreateClient)
	clients.Get("/:id", s.RequirePermission(authz.KeyClientView), s.GetClient)
	clients.Put("/:id", s.RequirePermission(authz.KeyClientEdit), s.UpdateClient)
	clients.Get("/:id/fields", s.RequirePermission(authz.KeyClientView), s.GetClientFields)
	clients.Get("/:id/clinical", s.RequirePermission(authz.KeyClientViewClinical), s.GetClientClinical)
	clients.Get("/:id/notes", s.RequirePermission(authz.KeyNoteView), s.ListClientNotes)
	clients.Post("/:id/notes", s.RequirePermission(authz.KeyNoteCreate), s.CreateNote)

	// Notes addressed by their own ID resolve to a client in the middleware.
	api.Get("/notes/:id", s.RequirePermission(authz.KeyNoteView), s.GetNote)
	api.Get("/notes/:id/download", s.RequirePermission(authz.KeyNoteDownload), s.DownloadNote)

	// Access grants.
	grants := api.Group("/grants")
	grants.Get("/request", s.GrantRequestContext)
	grants.Post("/", s.CreateGrant)
	grants.Get("/mine", s.ListMyGrants)
	grants.Post("/:id/revoke", s.RevokeGrant)

	// DV flag removal (two-person rule).
	api.Post("/dv-removal", s.SubmitDvRemoval)
	api.Post("/dv-removal/:id/review", s.ReviewDvRemoval)

	// Administration. The request middleware requires the admin flag for
	// everything under this prefix.
	admin := api.Group("/admin")
	admin.Get("/tier", s.GetTier)
	admin.Put("/tier", s.SetTier)
	admin.Get("/reasons", s.ListReasons)
	admin.Post("/reasons", s.CreateReason)
	admin.Post("/reasons/:id/deactivate", s.DeactivateReason)
	admin.Get("/field-config", s.ListFieldConfig)
	admin.Put("/field-config", s.UpsertFieldConfig)
	admin.Post("/blocks", s.CreateBlock)
	admin.Post("/blocks/:id/deactivate", s.DeactivateBlock)
	admin.Get("/audit", s.ListAuditLog)

	// WebSocket audit stream (admin only).
	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if user := currentUser(c); user == nil || !user.IsAdmin {
			return fiber.NewError(fiber.StatusForbidden, msgAdminRequired)
		}
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws/audit", websocket.New(s.StreamAudit))
}
