package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "sdrops/cmd/automation-api/docs"
	"sdrops/internal/config"
	"sdrops/internal/constants"
	"sdrops/internal/logger"
	"sdrops/pkg/bootstrap"
	"sdrops/pkg/logging"
	"sdrops/pkg/migrations"
)

var (
	configFile string
)

// @title           SDR Automation API
// @version         1.0
// @description     Tag-triggered automation rules, their execution logs and analytics

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceNameAPI,
		Short: "SDR automation API",
		Long:  "Serves the automation rule, trigger and execution log endpoints",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the automation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				logging.NewEarlyLog().Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting automation API", "dispatch_runtime", cfg.Dispatch.Runtime)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.Fatalf("Failed to initialize application: %v", err)
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := bootstrap.NewDatabaseConnector(cfg, log).InitPostgreSQL(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if down {
				err = migrations.Down(db)
			} else {
				err = migrations.Up(db)
			}
			if err != nil {
				return err
			}

			version, dirty, err := migrations.Version(db)
			if err != nil {
				return err
			}
			log.Infow("Migrations applied", "version", version, "dirty", dirty, "down", down)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration")
	return cmd
}
