package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"asset-lending-api/internal"
	"asset-lending-api/internal/auth"
	"asset-lending-api/internal/config"
	"asset-lending-api/internal/database"
	"asset-lending-api/internal/images"
	"asset-lending-api/internal/jobs"
	"asset-lending-api/internal/logger"
	"asset-lending-api/internal/models"
	"asset-lending-api/internal/store/memory"
	"asset-lending-api/internal/store/postgres"
	"asset-lending-api/pkg/importer"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file, but don't overwrite system environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	cfg, err := config.LoadAndValidate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := internal.Deps{
		Config: cfg,
		Images: images.NewDiskStore(cfg.UploadDir),
		Logger: zlog,
	}

	switch cfg.StoreDriver {
	case config.StoreMemory:
		st := memory.New()
		if err := seedDemoUsers(st, cfg.DemoPassword); err != nil {
			return err
		}
		zlog.Warn("using in-memory store; data is lost on restart")
		deps.Store, deps.Users = st, st
	default:
		if cfg.AutoMigrate {
			if err := database.Migrate(cfg.DBDSN, cfg.MigrationsDir, database.Up, zlog); err != nil {
				return err
			}
		}
		db, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		st := postgres.New(db)
		deps.Store, deps.Users, deps.DB = st, st, db
	}

	if _, err := os.Stat(importer.DefaultMappingPath); err == nil {
		mapping, err := importer.LoadMapping(importer.DefaultMappingPath)
		if err != nil {
			return err
		}
		deps.Mapping = mapping
	}

	srv, err := internal.NewServer(deps)
	if err != nil {
		return err
	}

	if cfg.OverdueSchedule != "" {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		sweeper := jobs.NewOverdueSweeper(srv.Engine, srv.Metrics, zlog, 0)
		if err := sweeper.Start(cfg.OverdueSchedule, loc); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("Starting Asset Lending API server",
			zap.String("addr", httpServer.Addr),
			zap.String("store", cfg.StoreDriver),
			zap.String("jwt_issuer", cfg.JWTIssuer),
			zap.Duration("jwt_expiry", cfg.JWTExpiry),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		zlog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return srv.Close(shutdownCtx)
}

// seedDemoUsers registers one user per role for the in-memory store
func seedDemoUsers(st *memory.Store, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	for _, u := range []models.User{
		{Username: "alice", Role: models.RoleStudent},
		{Username: "bob", Role: models.RoleLecturer},
		{Username: "carol", Role: models.RoleStaff},
	} {
		u.PasswordHash = hash
		u.CreatedAt = time.Now()
		st.AddUser(u)
	}
	return nil
}
