package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/render"
	"git.home.luguber.info/inful/sitebuilder/internal/storage"
)

// runtime holds the stores shared by every build of one process.
type runtime struct {
	store    *storage.FSStore
	index    *asset.SQLiteIndex
	registry *prom.Registry
	recorder *metrics.PrometheusRecorder
}

// openRuntime opens the payload store and derivation index under images.cache_dir.
func openRuntime(cfg *config.Config) (*runtime, error) {
	dir := cfg.Images.CacheDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ferrors.FileSystemError("failed to create cache directory").
			WithCause(err).WithContext("path", dir).Build()
	}
	store, err := storage.NewFSStore(filepath.Join(dir, "objects"))
	if err != nil {
		return nil, ferrors.FileSystemError("failed to open payload store").WithCause(err).Build()
	}
	index, err := asset.NewSQLiteIndex(filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, ferrors.FileSystemError("failed to open derivation index").WithCause(err).Build()
	}
	reg := prom.NewRegistry()
	return &runtime{
		store:    store,
		index:    index,
		registry: reg,
		recorder: metrics.NewPrometheusRecorder(reg),
	}, nil
}

func (r *runtime) service() *build.DefaultService {
	return build.NewService(render.Factory).
		WithStore(r.store).
		WithIndex(r.index).
		WithRecorder(r.recorder)
}

func (r *runtime) Close() {
	if err := r.index.Close(); err != nil {
		slog.Warn("Failed to close derivation index", logfields.Error(err))
	}
	_ = r.store.Close()
}
