package database

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // register postgres DB
	_ "github.com/golang-migrate/migrate/v4/source/file"       // register file source
	"go.uber.org/zap"
)

// Direction selects which way migrations run
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MigrationsURL turns a directory into a golang-migrate file source URL
func MigrationsURL(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return "file://" + abs, nil
}

// Migrate applies migrations from dir to the database at dsn
func Migrate(dsn, dir string, direction Direction, log *zap.Logger) error {
	source, err := MigrationsURL(dir)
	if err != nil {
		return err
	}

	log.Info("Running database migration", zap.String("source", source), zap.String("direction", string(direction)))
	m, err := migrate.New(source, dsn)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()
	m.Log = NewMigrateLogger(log, false)

	switch direction {
	case Down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("Database migration: no change needed")
		return nil
	}
	if err != nil {
		log.Error("Database migration failed", zap.Error(err))
		return err
	}

	version, dirty, verr := m.Version()
	if verr == nil {
		log.Info("Database migration complete", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

// MigrateLogger adapts zap to migrate.Logger
type MigrateLogger struct {
	logger  *zap.Logger
	verbose bool
}

func (l *MigrateLogger) Printf(format string, v ...any) {
	l.logger.Sugar().Infof("DB Migration: "+format, v...)
}

func (l *MigrateLogger) Verbose() bool {
	return l.verbose
}

func NewMigrateLogger(logger *zap.Logger, verbose bool) *MigrateLogger {
	return &MigrateLogger{logger: logger, verbose: verbose}
}
