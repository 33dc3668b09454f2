package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/memohai/deckcrm/internal/config"
)

// MigrateCommand is a parsed migrate invocation.
type MigrateCommand struct {
	Name string
	N    int
}

// ParseMigrateCommand validates a migrate command and its numeric argument.
// Supported: "up", "down", "version", "force N", "steps N".
func ParseMigrateCommand(command string, args []string) (MigrateCommand, error) {
	switch command {
	case "up", "down", "version":
		return MigrateCommand{Name: command}, nil
	case "force", "steps":
		if len(args) == 0 {
			return MigrateCommand{}, fmt.Errorf("%s requires a number argument", command)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return MigrateCommand{}, fmt.Errorf("invalid %s argument %q: %w", command, args[0], err)
		}
		if command == "steps" && n == 0 {
			return MigrateCommand{}, fmt.Errorf("steps must be non-zero")
		}
		return MigrateCommand{Name: command, N: n}, nil
	default:
		return MigrateCommand{}, fmt.Errorf("unknown migrate command: %s (use: up, down, version, force, steps)", command)
	}
}

// RunMigrate applies or rolls back database migrations.
// The migrationsFS should contain .sql files at its root (not in a subdirectory).
func RunMigrate(logger *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS, command string, args []string) error {
	cmd, err := ParseMigrateCommand(command, args)
	if err != nil {
		return err
	}
	if migrationsFS == nil {
		return fmt.Errorf("migration source not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	sourceDriver, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, DSN(cfg))
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()
	m.Log = &migrateLogger{logger: logger}

	switch cmd.Name {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "steps":
		if err := m.Steps(cmd.N); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate steps: %w", err)
		}
	case "force":
		if err := m.Force(cmd.N); err != nil {
			return fmt.Errorf("migrate force: %w", err)
		}
	}

	ver, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migrate version: %w", err)
	}
	logger.Info("migration state", slog.String("command", cmd.Name), slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))
	return nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
