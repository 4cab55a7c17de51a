package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Aafreen2203/SafePostAI/internal/config"
	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
)

// resolvedVersion returns Version unless it is "dev" and Go build info
// contains a real module version (e.g. from go install ...@v0.3.0).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/cmd")

var (
	otelShutdown spotel.ShutdownFunc

	// Set with -ldflags "-X .../internal/cmd.Version=..." at release time.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "safepost",
	Short: "Catch personal data before you post it",
	Long: `SafePost scans text and images for personal and sensitive content
before they are published.

It combines:
- An embedded pattern library and document classifier
- Language-model and entity-recognition analyzers with fallback
- OCR, object and face detection for images
- Toxicity and policy screening
- An allow/warn/block verdict and an HMAC-signed scan history`,
	SilenceUsage: true,

	PersistentPreRunE: preRun,
}

func preRun(cmd *cobra.Command, args []string) error {
	setupLogging()
	shutdown, err := spotel.Setup("safepost", resolvedVersion(), otelFlag || viper.GetBool(config.KeyOtelEnabled))
	if err != nil {
		return fmt.Errorf("initializing OpenTelemetry: %w", err)
	}
	otelShutdown = shutdown
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./safepost.yaml or ~/.safepost/safepost.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&otelFlag, "otel", false, "enable OpenTelemetry (traces and metrics to stdout)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	config.LoadDotEnv()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".safepost"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("safepost")
		viper.SetConfigType("yaml")
	}
	// The file is optional; env and defaults still apply.
	_ = viper.ReadInConfig()
}

// Execute runs the CLI. Exporters are flushed before it returns.
func Execute() error {
	defer flushTelemetry()
	return rootCmd.Execute()
}

func flushTelemetry() {
	if otelShutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := otelShutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flushing telemetry: %v\n", err)
	}
}
