// Package flansa provides a form and report builder that can be embedded into
// Go applications. It offers a programmatic API over a backend.Backend and a
// gin HTTP API for building forms and reports on user-defined tables.
package flansa

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dineshvijayakumar2/flansa-builder/backend"
	"github.com/dineshvijayakumar2/flansa-builder/config"
	"github.com/dineshvijayakumar2/flansa-builder/database"
	"github.com/dineshvijayakumar2/flansa-builder/models"
	"github.com/dineshvijayakumar2/flansa-builder/render"
	"github.com/dineshvijayakumar2/flansa-builder/services"
)

// Builder is the main entry point. It owns the form-builder sessions opened
// over HTTP.
type Builder struct {
	config   *Config
	manager  *database.Manager
	backend  backend.Backend
	apps     *services.AppBuilder
	sessions *sessionStore
}

// Config holds the HTTP settings of the builder.
type Config struct {
	APIBasePath string   `json:"api_base_path"`
	FilePrefix  string   `json:"file_prefix"`
	CORSOrigins []string `json:"cors_origins"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBasePath: "/api",
		FilePrefix:  render.DefaultFilePrefix,
	}
}

// ConfigFromApp takes the HTTP settings out of a loaded application config.
func ConfigFromApp(app *config.AppConfig) *Config {
	return &Config{
		APIBasePath: app.Server.BasePath,
		FilePrefix:  app.Files.URLPrefix,
		CORSOrigins: app.Server.CORSOrigins,
	}
}

func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	if out.APIBasePath == "" {
		out.APIBasePath = "/api"
	}
	if out.FilePrefix == "" {
		out.FilePrefix = render.DefaultFilePrefix
	}
	return &out
}

// New connects to the database described by dbConfig and migrates the
// builder tables.
func New(dbConfig *models.DatabaseConfig, cfg *Config) (*Builder, error) {
	manager, err := database.Open(dbConfig)
	if err != nil {
		return nil, err
	}
	b := NewWithBackend(backend.NewStore(manager.DB()), cfg)
	b.manager = manager
	return b, nil
}

// NewWithGormDB creates a builder on an existing GORM connection. The
// connection stays owned by the caller.
func NewWithGormDB(db *gorm.DB, cfg *Config) (*Builder, error) {
	manager, err := database.NewWithDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare database: %w", err)
	}
	b := NewWithBackend(backend.NewStore(manager.DB()), cfg)
	b.manager = manager
	return b, nil
}

// NewWithBackend creates a builder over any Backend implementation.
func NewWithBackend(be backend.Backend, cfg *Config) *Builder {
	return &Builder{
		config:   cfg.withDefaults(),
		backend:  be,
		apps:     services.NewAppBuilder(be),
		sessions: newSessionStore(),
	}
}

// Backend returns the backend the builder runs against.
func (b *Builder) Backend() backend.Backend {
	return b.backend
}

// Apps returns the table manager.
func (b *Builder) Apps() *services.AppBuilder {
	return b.apps
}

// NewFormBuilder opens a form builder on a table outside any HTTP session.
func (b *Builder) NewFormBuilder(table string) *services.FormBuilder {
	return services.NewFormBuilder(table, b.backend)
}

func (b *Builder) NewReportBuilder() *services.ReportBuilder {
	return services.NewReportBuilder(b.backend, b.config.FilePrefix)
}

func (b *Builder) NewReportViewer() *services.ReportViewer {
	return services.NewReportViewer(b.backend, b.config.FilePrefix)
}

// RegisterRoutes registers all API routes to the given gin router
func (b *Builder) RegisterRoutes(router *gin.Engine) {
	b.registerAPIRoutes(router)
}

// GetAPIHandler returns a http.Handler for the API routes
func (b *Builder) GetAPIHandler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	b.registerAPIRoutes(router)
	return router
}

// Close ends every open session and, when the builder opened the database
// itself, closes it.
func (b *Builder) Close() error {
	b.sessions.closeAll()
	if b.manager != nil {
		return b.manager.Close()
	}
	return nil
}

// PruneSessions ends form-builder sessions idle for longer than maxIdle and
// returns how many were closed.
func (b *Builder) PruneSessions(maxIdle time.Duration) int {
	return b.sessions.prune(maxIdle)
}
