package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

var knownTemplates = sets.New(TemplateHome, TemplateAbout, TemplateServices, TemplateContact)

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	for _, check := range []func(*Config) error{validateContent, validateDurations, validateRoutes, validatePublish} {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateContent(cfg *Config) error {
	if cfg.Content.Fixtures != "" {
		return nil
	}
	if strings.TrimSpace(cfg.Content.SpaceID) == "" {
		return ferrors.ConfigError("content.space_id is required (or set content.fixtures)").
			WithContext("field", "content.space_id").Build()
	}
	if strings.TrimSpace(cfg.Content.AccessToken) == "" {
		return ferrors.ConfigError("content.access_token is required (or set content.fixtures)").
			WithContext("field", "content.access_token").Build()
	}
	return nil
}

func validateDurations(cfg *Config) error {
	fields := map[string]string{
		"content.timeout":     cfg.Content.Timeout,
		"retry.initial_delay": cfg.Retry.InitialDelay,
		"retry.max_delay":     cfg.Retry.MaxDelay,
	}
	if cfg.Daemon != nil {
		fields["daemon.debounce"] = cfg.Daemon.Debounce
	}
	for field, raw := range fields {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return ferrors.ConfigError(fmt.Sprintf("%s must be a positive duration, got %q", field, raw)).
				WithContext("field", field).Build()
		}
	}
	return nil
}

func validateRoutes(cfg *Config) error {
	seen := sets.New[string]()
	for i, r := range cfg.Routes {
		field := fmt.Sprintf("routes[%d]", i)
		if !strings.HasPrefix(r.Path, "/") {
			return ferrors.ConfigError(fmt.Sprintf("%s.path must start with '/', got %q", field, r.Path)).
				WithContext("field", field+".path").Build()
		}
		if seen.Has(r.Path) {
			return ferrors.ConfigError(fmt.Sprintf("duplicate route path %q", r.Path)).
				WithContext("field", field+".path").Build()
		}
		seen.Add(r.Path)
		if !knownTemplates.Has(r.Template) {
			return ferrors.ConfigError(fmt.Sprintf("%s.template %q is not one of home, about, services, contact", field, r.Template)).
				WithContext("field", field+".template").Build()
		}
		names := sets.New[string]()
		for j, q := range r.Queries {
			qfield := fmt.Sprintf("%s.queries[%d]", field, j)
			if q.Name == "" || names.Has(q.Name) {
				return ferrors.ConfigError(fmt.Sprintf("%s.name must be unique and non-empty", qfield)).
					WithContext("field", qfield+".name").Build()
			}
			names.Add(q.Name)
			if !slices.Contains(ContentKinds, q.Kind) {
				return ferrors.ConfigError(fmt.Sprintf("%s.kind %q is not a known content kind", qfield, q.Kind)).
					WithContext("field", qfield+".kind").Build()
			}
			if q.OrderBy != "" && q.OrderBy != "order" {
				return ferrors.ConfigError(fmt.Sprintf("%s.order_by only supports 'order'", qfield)).
					WithContext("field", qfield+".order_by").Build()
			}
		}
	}
	return nil
}

func validatePublish(cfg *Config) error {
	if cfg.Publish == nil || !cfg.Publish.Git.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Publish.Git.Branch) == "" {
		return ferrors.ConfigError("publish.git.branch is required when publishing is enabled").
			WithContext("field", "publish.git.branch").Build()
	}
	return nil
}
