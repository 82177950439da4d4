package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gl-apps/glsync/internal/config"
	"github.com/gl-apps/glsync/internal/db"
	"github.com/gl-apps/glsync/internal/glide"
	apihttp "github.com/gl-apps/glsync/internal/http/api"
	"github.com/gl-apps/glsync/internal/ledger"
	"github.com/gl-apps/glsync/internal/sync"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the sync service with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	glideCfg, _ := config.LoadGlideConfig(configPath)
	syncCfg, _ := config.LoadSyncConfig(configPath)

	client := glide.NewClient(glideCfg.BaseURL, glideCfg.Timeout)
	led := ledger.New(conn)
	resolver := sync.NewDBRelationshipResolver(conn)
	orchestrator := sync.NewOrchestrator(conn, led, sync.NewGormDestination(conn), client, resolver, syncCfg)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	apihttp.RegisterRoutes(engine, apihttp.Deps{
		DB:           conn,
		Ledger:       led,
		Orchestrator: orchestrator,
		Connections:  sync.NewConnectionManager(conn, client),
		Retry:        sync.NewRetryCoordinator(led),
		Resolver:     resolver,
		Glide:        client,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("glsync server listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("app: server shutdown")
		}
		return ctx.Err()
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// requestLogger logs each request with logrus fields.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("status", c.Writer.Status()).
			WithField("duration", time.Since(start).String()).
			Info("request")
	}
}
