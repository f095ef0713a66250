package config

import "time"

// ApplyDefaults fills unset fields. It runs after normalization so canonical values drive defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Site.Title == "" {
		cfg.Site.Title = "Technology Consulting Services"
	}

	c := &cfg.Content
	if c.Environment == "" {
		c.Environment = "master"
	}
	if c.Host == "" {
		c.Host = "cdn.contentful.com"
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.Timeout == "" {
		c.Timeout = "15s"
	}

	r := &cfg.Retry
	if r.Mode == "" {
		r.Mode = RetryBackoffExponential
	}
	if r.InitialDelay == "" {
		r.InitialDelay = "500ms"
	}
	if r.MaxDelay == "" {
		r.MaxDelay = "8s"
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}

	im := &cfg.Images
	if im.CacheDir == "" {
		im.CacheDir = ".sitebuilder/cache"
	}
	if im.OutputSubdir == "" {
		im.OutputSubdir = "img"
	}
	if im.Format == "" {
		im.Format = ImageFormatJPEG
	}
	if im.Quality <= 0 || im.Quality > 100 {
		im.Quality = 90
	}
	if im.PlaceholderWidth <= 0 {
		im.PlaceholderWidth = 20
	}
	if im.Hero.Width <= 0 {
		im.Hero = ImageSize{Width: 1920, Height: 1080}
	}
	if im.Photo.Width <= 0 {
		im.Photo = ImageSize{Width: 400, Height: 400}
	}
	if im.Body.Width <= 0 {
		im.Body = ImageSize{Width: 800}
	}

	b := &cfg.Build
	if b.Concurrency <= 0 {
		b.Concurrency = 4
	}
	if b.OutputDir == "" {
		b.OutputDir = "./public"
	}

	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes()
	}

	if cfg.Daemon != nil {
		if cfg.Daemon.Subject == "" {
			cfg.Daemon.Subject = "sitebuilder.content.published"
		}
		if cfg.Daemon.EventPrefix == "" {
			cfg.Daemon.EventPrefix = "sitebuilder.build"
		}
		if cfg.Daemon.Debounce == "" {
			cfg.Daemon.Debounce = "2s"
		}
		if cfg.Daemon.HTTPAddr == "" {
			cfg.Daemon.HTTPAddr = ":8090"
		}
	}

	if cfg.Publish != nil {
		g := &cfg.Publish.Git
		if g.Branch == "" {
			g.Branch = "gh-pages"
		}
		if g.RepoDir == "" {
			g.RepoDir = ".sitebuilder/publish"
		}
		if g.AuthorName == "" {
			g.AuthorName = "sitebuilder"
		}
		if g.AuthorEmail == "" {
			g.AuthorEmail = "sitebuilder@localhost"
		}
	}

	if cfg.Monitoring == nil {
		cfg.Monitoring = &MonitoringConfig{}
	}
	if cfg.Monitoring.Logging.Level == "" {
		cfg.Monitoring.Logging.Level = LogLevelInfo
	}
	if cfg.Monitoring.Logging.Format == "" {
		cfg.Monitoring.Logging.Format = LogFormatText
	}
	if cfg.Monitoring.Metrics.Path == "" {
		cfg.Monitoring.Metrics.Path = "/metrics"
	}
}

// Durations holds parsed duration fields. Validate guarantees these parse.
type Durations struct {
	ContentTimeout time.Duration
	RetryInitial   time.Duration
	RetryMax       time.Duration
	Debounce       time.Duration
}

// ParsedDurations parses the string durations of a validated config.
func (c *Config) ParsedDurations() Durations {
	d := Durations{}
	d.ContentTimeout, _ = time.ParseDuration(c.Content.Timeout)
	d.RetryInitial, _ = time.ParseDuration(c.Retry.InitialDelay)
	d.RetryMax, _ = time.ParseDuration(c.Retry.MaxDelay)
	if c.Daemon != nil {
		d.Debounce, _ = time.ParseDuration(c.Daemon.Debounce)
	}
	return d
}
