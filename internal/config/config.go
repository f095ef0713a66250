package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// CurrentVersion is the configuration schema version accepted by Load.
const CurrentVersion = "1.0"

// Config is the root of sitebuilder.yaml.
type Config struct {
	Version    string            `yaml:"version"`
	Site       SiteConfig        `yaml:"site"`
	Content    ContentConfig     `yaml:"content"`
	Retry      RetryConfig       `yaml:"retry"`
	Images     ImagesConfig      `yaml:"images"`
	Build      BuildConfig       `yaml:"build"`
	Routes     []RouteConfig     `yaml:"routes,omitempty"`
	Daemon     *DaemonConfig     `yaml:"daemon,omitempty"`
	Publish    *PublishConfig    `yaml:"publish,omitempty"`
	Monitoring *MonitoringConfig `yaml:"monitoring,omitempty"`
}

// SiteConfig carries metadata rendered into every page head.
type SiteConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	BaseURL     string `yaml:"base_url"`
	// ContactEndpoint is where the contact form posts; empty disables the form.
	ContactEndpoint string `yaml:"contact_endpoint,omitempty"`
}

// ContentConfig describes the headless CMS connection.
type ContentConfig struct {
	SpaceID     string `yaml:"space_id"`
	AccessToken string `yaml:"access_token"`
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	// Fixtures points at a YAML fixture file; when set the CMS is not contacted.
	Fixtures  string          `yaml:"fixtures,omitempty"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Timeout   string          `yaml:"timeout"`
}

// RateLimitConfig bounds outgoing CMS requests.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// RetryConfig controls the content client's bounded retry.
type RetryConfig struct {
	Mode         RetryBackoffMode `yaml:"mode"`
	InitialDelay string           `yaml:"initial_delay"`
	MaxDelay     string           `yaml:"max_delay"`
	MaxAttempts  int              `yaml:"max_attempts"`
}

// ImagesConfig controls image derivation.
type ImagesConfig struct {
	CacheDir         string      `yaml:"cache_dir"`
	OutputSubdir     string      `yaml:"output_subdir"`
	Format           ImageFormat `yaml:"format"`
	ExtraFormats     []string    `yaml:"extra_formats,omitempty"`
	Quality          int         `yaml:"quality"`
	Placeholder      bool        `yaml:"placeholder"`
	PlaceholderWidth int         `yaml:"placeholder_width"`
	Hero             ImageSize   `yaml:"hero"`
	Photo            ImageSize   `yaml:"photo"`
	Body             ImageSize   `yaml:"body"`
}

// ImageSize is a target box; a zero height preserves the aspect ratio.
type ImageSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// BuildConfig controls the orchestrator.
type BuildConfig struct {
	Concurrency int    `yaml:"concurrency"`
	OutputDir   string `yaml:"output_dir"`
	Clean       bool   `yaml:"clean"`
}

// DaemonConfig controls continuous rebuilds.
type DaemonConfig struct {
	Schedule    string `yaml:"schedule"` // cron expression; empty disables scheduled builds
	NATSURL     string `yaml:"nats_url,omitempty"`
	Subject     string `yaml:"subject,omitempty"`
	EventPrefix string `yaml:"event_prefix,omitempty"`
	WatchConfig bool   `yaml:"watch_config"`
	Debounce    string `yaml:"debounce"`
	HTTPAddr    string `yaml:"http_addr"`
	// ContactRelay receives contact submissions posted to site.contact_endpoint; empty disables the handler.
	ContactRelay string `yaml:"contact_relay,omitempty"`
}

// PublishConfig controls deployment of the output directory.
type PublishConfig struct {
	Git GitPublishConfig `yaml:"git"`
}

// GitPublishConfig commits the output into a git repository.
type GitPublishConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RepoDir     string `yaml:"repo_dir"` // checkout the output is synced into
	Branch      string `yaml:"branch"`
	Remote      string `yaml:"remote,omitempty"`
	Token       string `yaml:"token,omitempty"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// MonitoringConfig represents logging and metrics configuration.
type MonitoringConfig struct {
	Metrics MonitoringMetrics `yaml:"metrics"`
	Logging MonitoringLogging `yaml:"logging"`
}

// MonitoringMetrics represents metrics configuration.
type MonitoringMetrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MonitoringLogging represents logging configuration.
type MonitoringLogging struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads, expands, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return nil, ferrors.ConfigError("configuration file not found").
			WithContext("path", configPath).Build()
	}

	// #nosec G304 -- path comes from the CLI flag
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).Fatal().Build()
	}
	return Parse(data)
}

// Parse decodes configuration bytes. Environment variables are expanded before decoding.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}

	if cfg.Version != CurrentVersion {
		return nil, ferrors.ConfigError(fmt.Sprintf("unsupported configuration version: %q (expected %s)", cfg.Version, CurrentVersion)).Build()
	}

	for _, w := range Normalize(&cfg) {
		slog.Warn("config normalization", "detail", w)
	}
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).Build()
	}

	example := Config{
		Version: CurrentVersion,
		Site: SiteConfig{
			Title:           "Technology Consulting Services",
			Description:     "Expert technology implementation services for small businesses",
			BaseURL:         "https://www.example.com",
			ContactEndpoint: "/api/contact",
		},
		Content: ContentConfig{
			SpaceID:     "${CONTENTFUL_SPACE_ID}",
			AccessToken: "${CONTENTFUL_ACCESS_TOKEN}",
			Environment: "master",
			Host:        "cdn.contentful.com",
		},
		Retry: RetryConfig{Mode: RetryBackoffExponential, InitialDelay: "500ms", MaxDelay: "8s", MaxAttempts: 3},
		Images: ImagesConfig{
			Format:      ImageFormatJPEG,
			Quality:     80,
			Placeholder: true,
		},
		Build:  BuildConfig{Concurrency: 4, OutputDir: "./public", Clean: true},
		Routes: DefaultRoutes(),
		Daemon: &DaemonConfig{Schedule: "0 */6 * * *", WatchConfig: true},
		Monitoring: &MonitoringConfig{
			Logging: MonitoringLogging{Level: LogLevelInfo, Format: LogFormatText},
		},
	}
	ApplyDefaults(&example)

	data, err := yaml.Marshal(&example)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal example config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).Build()
	}
	return nil
}
