// Package main is the entry point for the sheetroll server and CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/sheetroll/pkg/api"
	grpcapi "github.com/lemonberrylabs/sheetroll/pkg/api/grpc"
	"github.com/lemonberrylabs/sheetroll/pkg/config"
	"github.com/lemonberrylabs/sheetroll/pkg/logging"
	"github.com/lemonberrylabs/sheetroll/pkg/store"
	"github.com/lemonberrylabs/sheetroll/pkg/store/sqlite"
	"github.com/lemonberrylabs/sheetroll/web"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sheetroll",
	Short: "Dice expressions and character sheets",
	Long: `sheetroll rolls dice expressions such as "2d6 + strMod" and resolves
character sheets whose properties are defined by them.

Run without a subcommand to start the HTTP, gRPC and web UI server.`,
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP, gRPC and web UI server",
	RunE:  runServe,
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("sheetroll version {{.Version}}\n")

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().Int("port", 0, "HTTP server port (default 8787, env SHEETROLL_PORT)")
		cmd.Flags().Int("grpc-port", -1, "gRPC server port, 0 disables (default 8788, env SHEETROLL_GRPC_PORT)")
		cmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env SHEETROLL_HOST)")
		cmd.Flags().String("sheets-dir", "", "Directory of sheet YAML/JSON files to watch (env SHEETROLL_SHEETS_DIR)")
		cmd.Flags().String("db", "", "SQLite database path; sheets are kept in memory when empty (env SHEETROLL_DB_PATH)")
		cmd.Flags().String("log-level", "", "Log level (default info, env SHEETROLL_LOG_LEVEL)")
		cmd.Flags().Bool("log-pretty", false, "Human-readable console logs (env SHEETROLL_LOG_PRETTY)")
	}

	rootCmd.AddCommand(serveCmd, rollCmd, resolveCmd, replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies any flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if v, _ := flags.GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := flags.GetInt("grpc-port"); v >= 0 {
		cfg.GRPCPort = v
	}
	if v, _ := flags.GetString("host"); v != "" {
		cfg.Host = v
	}
	if v, _ := flags.GetString("sheets-dir"); v != "" {
		cfg.SheetsDir = v
	}
	if v, _ := flags.GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if flags.Changed("log-pretty") {
		cfg.LogPretty, _ = flags.GetBool("log-pretty")
	}
	return cfg, nil
}

func openStore(cfg config.Config, log zerolog.Logger) (store.Store, func(), error) {
	if cfg.DBPath == "" {
		log.Info().Msg("using in-memory store")
		return store.New(), func() {}, nil
	}
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	log.Info().Str("path", cfg.DBPath).Msg("using sqlite store")
	return db, func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("close sqlite store")
		}
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	s, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.New(s, api.WithLogger(log))

	// Load sheets from directory if specified
	if cfg.SheetsDir != "" {
		log.Info().Str("dir", cfg.SheetsDir).Msg("watching sheets directory")
		if err := server.WatchDir(ctx, cfg.SheetsDir); err != nil {
			log.Warn().Err(err).Msg("failed to watch sheets directory")
		}
	}

	web.New(s).Register(server.App())

	var grpcServer *grpcapi.Server
	if cfg.GRPCPort != 0 {
		grpcServer = grpcapi.New(s, grpcapi.WithLogger(log))
		go func() {
			log.Info().Str("addr", cfg.GRPCAddr()).Msg("gRPC server listening")
			if err := grpcServer.Serve(cfg.GRPCAddr()); err != nil {
				log.Error().Err(err).Msg("gRPC server error")
				stop()
			}
		}()
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if err := server.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	log.Info().Str("addr", cfg.Addr()).Str("version", version).Msg("sheetroll listening")
	return server.Listen(cfg.Addr())
}
