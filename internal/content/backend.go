package content

import (
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// Backend is a source that also serves asset bytes.
type Backend interface {
	Source
	AssetFetcher
}

// BackendFromConfig returns the fixture source when the configuration names a
// fixture file and the CMS client otherwise.
func BackendFromConfig(cfg *config.Config, rec metrics.Recorder) (Backend, error) {
	if cfg.Content.Fixtures != "" {
		return LoadFixtures(cfg.Content.Fixtures)
	}
	return NewClientFromConfig(cfg, rec)
}
