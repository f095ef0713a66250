// Package commands implements the sitebuilder command line.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// LogLevelEnv overrides the configured log level.
const LogLevelEnv = "SITEBUILDER_LOG_LEVEL"

// Global carries process-wide state into every command.
type Global struct {
	Context context.Context
	// Out receives command output; nil means stdout.
	Out io.Writer
}

func (g *Global) ctx() context.Context {
	if g == nil || g.Context == nil {
		return context.Background()
	}
	return g.Context
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"sitebuilder.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build  BuildCmd  `cmd:"" help:"Build the site from CMS content"`
	Init   InitCmd   `cmd:"" help:"Initialize a new configuration file"`
	Fetch  FetchCmd  `cmd:"" help:"Fetch and print the entries of one content kind"`
	Daemon DaemonCmd `cmd:"" help:"Rebuild continuously on schedule, content changes and config edits"`
	Cache  CacheCmd  `cmd:"" help:"Manage the image derivation cache"`
}

// AfterApply runs after flag parsing and installs a logger until the
// configuration is loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	slog.SetDefault(newLogger(os.Stderr, c.level(""), config.LogFormatText))
	return nil
}

// loadConfig loads the configuration named by --config and reconfigures
// logging from its monitoring section.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(os.Stderr, c.level(cfg.Monitoring.Logging.Level), cfg.Monitoring.Logging.Format))
	return cfg, nil
}

// level picks -v first, then the environment override, then the configuration.
func (c *CLI) level(configured config.LogLevel) slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	name := strings.ToLower(strings.TrimSpace(os.Getenv(LogLevelEnv)))
	if name == "" {
		name = string(configured)
	}
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level slog.Level, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
