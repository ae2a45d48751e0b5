package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localrivet/codematch"
	"github.com/localrivet/codematch/internal/config"
	"github.com/localrivet/codematch/internal/errortypes"
	"github.com/localrivet/codematch/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	source  string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "codematch",
	Short: "Find and explain the source file closest to a question",
	Long: `codematch embeds source trees and questions into SQLite embedding stores,
selects the stored file whose embedding is most similar to the current
question, and asks a hosted model to explain it.

Stores live in the data directory (PROJECT_ROOT/data by default).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, appLogger, err := newService()
		if err != nil {
			return err
		}

		setupSignalHandler(svc, appLogger)

		appLogger.WithContext("server").Info("Starting MCP server...")
		if err := svc.Serve(); err != nil {
			return errortypes.ExternalError(err, "MCP server failed")
		}
		return nil
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "codematch %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFilename, "config file path")
	rootCmd.PersistentFlags().StringVar(&source, "source", "", "source store UUID, UUID prefix or path (default: the common corpus)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(makeSourceDBCmd())
	rootCmd.AddCommand(makeQuestionDBCmd())
	rootCmd.AddCommand(selectDBCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(healthCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if verbose {
			errortypes.LogError(logger.GetDefaultLogger().Slog(), err)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newService loads the configuration, configures logging from it and
// builds the service. Logs go to stderr; stdout carries results and the
// MCP transport.
func newService() (*codematch.Service, *logger.Logger, error) {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.Load(context.Background(), cfgFile, bootstrap)
	if err != nil {
		return nil, nil, errortypes.ConfigError(err, "failed to load configuration")
	}

	appLogger := setupLogging(cfg)
	appLogger.Debug("Configuration loaded from %s", cfg.GetConfigPath())

	svc, err := codematch.NewService(codematch.ServiceOptions{
		Config: cfg,
		Logger: appLogger.Slog(),
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, appLogger, nil
}

// setupLogging configures and returns the application logger
func setupLogging(cfg *config.Config) *logger.Logger {
	appLogger := logger.FromSettings(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if verbose {
		appLogger.SetLevel(logger.DEBUG)
	}
	logger.SetDefaultLogger(appLogger)
	slog.SetDefault(appLogger.Slog())
	return appLogger
}

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// setupSignalHandler sets up a signal handler for graceful shutdown.
func setupSignalHandler(svc *codematch.Service, log *logger.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Info("Received shutdown signal, terminating gracefully...")
		if err := svc.Close(); err != nil {
			errortypes.LogError(log.Slog(), err)
		}
		log.Info("Shutdown complete")
		os.Exit(0)
	}()
}
