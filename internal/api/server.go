package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/gorm"

	"github.com/openhearth/casefile/internal/audit"
	"github.com/openhearth/casefile/internal/authz"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	App      *fiber.App
	db       *gorm.DB
	sessions *session.Store

	tiers   authz.TierSource
	scope   *authz.ScopeResolver
	grants  *authz.GrantService
	fields  *authz.FieldPolicy
	reviews *authz.ReviewService
	audit   audit.Sink

	tokenSecret []byte
}

// NewServer creates a Fiber app with middleware and registers all routes.
// tokenSecret verifies the bearer tokens issued by the upstream identity
// provider; auditSink receives grant/tier/block/review events.
func NewServer(db *gorm.DB, auditSink audit.Sink, tokenSecret string) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "Casefile API",
		ErrorHandler: globalErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(requestLogger())

	s := &Server{
		App: app,
		db:  db,
		sessions: session.New(session.Config{
			Expiration:   8 * time.Hour,
			CookieName:   "casefile_session",
			KeyLookup:    "cookie:casefile_session",
			CookiePath:   "/",
			CookieSecure: false,
		}),
		tiers:       &authz.SettingsTierSource{DB: db},
		scope:       &authz.ScopeResolver{Repo: &authz.GormRepository{DB: db}},
		fields:      &authz.FieldPolicy{DB: db},
		audit:       auditSink,
		tokenSecret: []byte(tokenSecret),
	}
	s.grants = &authz.GrantService{DB: db, Audit: auditSink}
	s.reviews = &authz.ReviewService{DB: db, Audit: auditSink}

	app.Use(s.identity())
	app.Use(s.authorizeRequest())

	s.registerRoutes()
	return s
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	slog.Info("starting HTTP server", "addr", addr)
	return s.App.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	slog.Info("shutting down HTTP server")
	return s.App.Shutdown()
}
