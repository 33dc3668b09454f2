package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/deckcrm/cmd/crm/modules"
	dbembed "github.com/memohai/deckcrm/db"
	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/db"
	"github.com/memohai/deckcrm/internal/logger"
	"github.com/memohai/deckcrm/internal/version"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "crm",
		Short:         "Deck services CRM backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if defaultConfig == "" {
		defaultConfig = config.DefaultConfigPath
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to config.toml")

	rootCmd.AddCommand(serveCmd(), migrateCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled-send dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app := fx.New(
				fx.Supply(cfg),
				modules.InfraModule,
				modules.DomainModule,
				modules.HandlersModule,
				modules.ServerModule,
				fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
					return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|version|force N|steps N>",
		Short: "Apply or roll back database migrations",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			migrations, err := fs.Sub(dbembed.MigrationsFS, "migrations")
			if err != nil {
				return err
			}
			if err := db.RunMigrate(logger.L, cfg.Postgres, migrations, args[0], args[1:]); err != nil {
				return err
			}
			logger.Info("migrate finished", slog.String("command", args[0]))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("deckcrm %s\n", version.GetInfo())
		},
	}
}
