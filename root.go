package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ncdav/ncdav-sync/internal/config"
	"github.com/ncdav/ncdav-sync/internal/webdav"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// cfg holds the effective configuration loaded by PersistentPreRunE.
var cfg *config.Config

// Log rotation limits for the optional log file.
const (
	logMaxSizeMB = 10
	logMaxFiles  = 3
)

// newRootCmd builds the fully-assembled root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ncdav-sync",
		Short:   "Nextcloud WebDAV sync client",
		Long:    "A bidirectional file synchronizer between local directories and Nextcloud folders.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newPairCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration: defaults, then the
// config file, then environment overrides.
func loadConfig() error {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	loaded, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	config.ApplyEnvOverrides(loaded)
	cfg = loaded

	return nil
}

// buildLogger creates the slog.Logger used by every command. Terminals
// get the text handler, pipes get JSON; a configured log file receives a
// rotated copy of everything.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	// CLI flags override the config file.
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelWarn
	}

	var out io.Writer = os.Stderr

	if cfg != nil && cfg.LogFile != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxFiles,
		})
	}

	opts := &slog.HandlerOptions{Level: level}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(out, opts))
	}

	return slog.New(slog.NewJSONHandler(out, opts))
}

// newDavClient builds the WebDAV client from stored credentials. Missing
// or malformed credentials are fatal before any sync work starts.
func newDavClient(logger *slog.Logger) (*webdav.Client, error) {
	creds, err := config.LoadCredentials(config.NewFileCredentialStore(""))
	if err != nil {
		return nil, err
	}

	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("run \"ncdav-sync login\" first: %w", err)
	}

	httpClient := &http.Client{
		Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
	}

	return webdav.NewClient(creds.BaseURL, creds.Username, creds.Password, httpClient, logger), nil
}
