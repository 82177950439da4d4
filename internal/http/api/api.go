package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gl-apps/glsync/internal/http/api/handlers"
	"github.com/gl-apps/glsync/internal/ledger"
	"github.com/gl-apps/glsync/internal/sync"
	"gorm.io/gorm"
)

// Deps bundles the collaborators the route handlers need.
type Deps struct {
	DB           *gorm.DB
	Ledger       *ledger.Ledger
	Orchestrator *sync.Orchestrator
	Connections  *sync.ConnectionManager
	Retry        *sync.RetryCoordinator
	Resolver     sync.RelationshipResolver
	Glide        handlers.GlideAPI
}

// RegisterRoutes registers all service routes and handlers.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	v0 := r.Group("/v0")

	syncHandler := handlers.NewSyncHandler(deps.DB, deps.Orchestrator, deps.Connections, deps.Resolver, deps.Glide)
	v0.POST("/glsync", syncHandler.Dispatch)

	connectionHandler := handlers.NewConnectionHandler(deps.DB, deps.Connections)
	v0.POST("/connections", connectionHandler.Create)
	v0.GET("/connections", connectionHandler.List)
	v0.GET("/connections/:id", connectionHandler.Get)
	v0.PUT("/connections/:id", connectionHandler.Update)
	v0.DELETE("/connections/:id", connectionHandler.Delete)
	v0.POST("/connections/:id/test", connectionHandler.Test)

	mappingHandler := handlers.NewMappingHandler(deps.DB, deps.Retry)
	v0.POST("/mappings", mappingHandler.Create)
	v0.GET("/mappings", mappingHandler.List)
	v0.GET("/mappings/:id", mappingHandler.Get)
	v0.PUT("/mappings/:id", mappingHandler.Update)
	v0.DELETE("/mappings/:id", mappingHandler.Delete)
	v0.POST("/mappings/:id/retry", mappingHandler.Retry)

	logHandler := handlers.NewLogHandler(deps.Ledger)
	v0.GET("/sync-logs", logHandler.ListLogs)
	v0.GET("/sync-errors", logHandler.ListErrors)
	v0.POST("/sync-errors/:id/resolve", logHandler.ResolveError)
}
