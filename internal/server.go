package internal

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"time"

	"asset-lending-api/internal/auth"
	"asset-lending-api/internal/config"
	"asset-lending-api/internal/handlers"
	"asset-lending-api/internal/lending"
	"asset-lending-api/internal/logger"
	"asset-lending-api/internal/models"
	"asset-lending-api/pkg/importer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

//go:embed openapi
var openapiFS embed.FS

// UserFinder resolves login credentials
type UserFinder interface {
	FindUserByUsername(ctx context.Context, username string) (models.User, error)
}

// Pinger reports database reachability. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of a Server. DB, Images, Mapping and Clock are optional.
type Deps struct {
	Config  *config.Config
	Store   lending.Store
	Users   UserFinder
	Images  lending.ImageReleaser
	DB      Pinger
	Logger  *zap.Logger
	Mapping *importer.MappingConfig
	Clock   func() time.Time
}

type Server struct {
	Router     *chi.Mux
	JWTManager *auth.JWTManager
	Metrics    *Metrics
	Registry   *lending.Registry
	Engine     *lending.Engine
	History    *lending.History

	cfg   *config.Config
	users UserFinder
	db    Pinger
	log   *zap.Logger
}

func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if deps.Store == nil || deps.Users == nil {
		return nil, errors.New("server: store and users are required")
	}
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)
	if err := jwtManager.ValidateConfig(); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	opts := []lending.Option{
		lending.WithClock(deps.Clock),
		lending.WithLocation(loc),
		lending.WithTimeout(cfg.StoreTimeout),
		lending.WithObserver(lending.Observers{logger.NewObserver(log), metrics}),
	}

	s := &Server{
		Router:     chi.NewRouter(),
		JWTManager: jwtManager,
		Metrics:    metrics,
		Registry:   lending.NewRegistry(deps.Store, deps.Images, opts...),
		Engine:     lending.NewEngine(deps.Store, opts...),
		History:    lending.NewHistory(deps.Store, opts...),
		cfg:        cfg,
		users:      deps.Users,
		db:         deps.DB,
		log:        log,
	}

	// chi requires every middleware before the first route
	s.Router.Use(RequestIDMiddleware)
	s.Router.Use(AccessLogMiddleware(log))
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "X-Token-Expiring-Soon"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.EnableMetrics {
		s.Router.Use(s.Metrics.Middleware())
	}

	// Public routes
	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	s.Router.Get("/dbping", s.dbPing)
	s.Router.Post("/auth/login", s.loginUser)
	s.mountDocs(s.Router)

	if cfg.EnableMetrics {
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	s.Router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(s.JWTManager))
		s.mountProtectedRoutes(r, handlers.NewImportsHandler(s.Registry, deps.Mapping))
	})

	return s, nil
}

// Close flushes buffered log entries. Sync errors on terminals are ignored.
func (s *Server) Close(ctx context.Context) error {
	_ = s.log.Sync()
	return ctx.Err()
}

func (s *Server) dbPing(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		w.Write([]byte("db: memory"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.log.Error("database ping failed", zap.Error(err))
		writeMessage(w, http.StatusServiceUnavailable, "db: unavailable")
		return
	}
	w.Write([]byte("db: ok"))
}

// mountDocs serves the OpenAPI spec and Swagger UI
func (s *Server) mountDocs(mux *chi.Mux) {
	if !s.cfg.EnableSwagger {
		return
	}

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			http.Error(w, "Failed to read OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		if _, err := w.Write(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Asset Lending API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/openapi.yaml',
                dom_id: '#swagger-ui',
                deepLinking: true,
                tryItOutEnabled: true
            });
        };
    </script>
</body>
</html>`))
	})
}

// mountProtectedRoutes mounts all routes that require authentication
func (s *Server) mountProtectedRoutes(r chi.Router, imports *handlers.ImportsHandler) {
	staff := auth.MustRole(models.RoleStaff)

	// Assets - staff manage the catalogue
	r.Get("/assets", s.listAssets)
	r.Get("/assets/{id}", s.getAsset)
	r.Post("/assets", staff(http.HandlerFunc(s.createAsset)).(http.HandlerFunc))
	r.Patch("/assets/{id}", staff(http.HandlerFunc(s.updateAsset)).(http.HandlerFunc))
	r.Put("/assets/{id}", staff(http.HandlerFunc(s.updateAsset)).(http.HandlerFunc))
	r.Delete("/assets/{id}", staff(http.HandlerFunc(s.deleteAsset)).(http.HandlerFunc))

	// Excel import
	r.Post("/imports/assets", staff(http.HandlerFunc(imports.UploadAssets)).(http.HandlerFunc))

	// Borrow workflow
	r.Post("/borrow", auth.MustRole(models.RoleStudent)(http.HandlerFunc(s.createBorrow)).(http.HandlerFunc))
	r.Put("/borrow/approve/{id}", auth.MustRole(models.RoleLecturer)(http.HandlerFunc(s.approveBorrow)).(http.HandlerFunc))
	r.Put("/borrow/reject/{id}", auth.MustRole(models.RoleLecturer)(http.HandlerFunc(s.rejectBorrow)).(http.HandlerFunc))
	r.Put("/return/{id}", staff(http.HandlerFunc(s.returnBorrow)).(http.HandlerFunc))

	// History
	r.Get("/history", s.listHistory)
	r.Get("/borrow/history", s.listHistory)
	r.Get("/borrow/{id}/history", s.requestHistory)

	r.Get("/dashboard/summary", auth.MustRole(models.RoleStaff, models.RoleLecturer)(http.HandlerFunc(s.dashboardSummary)).(http.HandlerFunc))
}

// viewer returns the authenticated caller. AuthMiddleware guarantees a principal
// on protected routes; a missing one is reported as 401.
func viewer(w http.ResponseWriter, r *http.Request) (lending.Viewer, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return lending.Viewer{}, false
	}
	return lending.Viewer{UserID: p.UserID, Role: p.Role}, true
}
