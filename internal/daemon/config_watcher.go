package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// ConfigWatcher monitors the configuration file and applies reloaded
// configurations once writes have been quiet for the debounce window.
type ConfigWatcher struct {
	configPath string
	debounce   time.Duration
	load       func(string) (*config.Config, error)
	apply      func(*config.Config)

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConfigWatcher creates a watcher for configPath. apply receives every
// configuration that loads and validates.
func NewConfigWatcher(configPath string, debounce time.Duration, apply func(*config.Config)) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &ConfigWatcher{
		configPath: absPath,
		debounce:   debounce,
		load:       config.Load,
		apply:      apply,
		watcher:    watcher,
		stopChan:   make(chan struct{}),
	}, nil
}

// Start begins monitoring. The directory is watched rather than the file so
// editors that replace the file on save are still seen.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", configDir, err)
	}
	slog.Info("Starting configuration watcher", logfields.Path(cw.configPath))

	cw.wg.Add(1)
	go cw.loop(ctx)
	return nil
}

// Stop ends monitoring and waits for the watch loop to exit.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		err = cw.watcher.Close()
		cw.wg.Wait()
	})
	return err
}

func (cw *ConfigWatcher) loop(ctx context.Context) {
	defer cw.wg.Done()
	configFile := filepath.Base(cw.configPath)

	timer := time.NewTimer(cw.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopChan:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			if event.Has(fsnotify.Remove) {
				slog.Warn("Config file removed", logfields.Path(event.Name))
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				slog.Debug("Config file change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				timer.Reset(cw.debounce)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", logfields.Error(err))
		case <-timer.C:
			cw.reload()
		}
	}
}

func (cw *ConfigWatcher) reload() {
	slog.Info("Reloading configuration", logfields.Path(cw.configPath))
	cfg, err := cw.load(cw.configPath)
	if err != nil {
		if ferrors.HasCategory(err, ferrors.CategoryConfig) {
			slog.Warn("Configuration invalid, keeping current", logfields.Error(err))
			return
		}
		slog.Error("Failed to reload configuration, keeping current", logfields.Error(err))
		return
	}
	cw.apply(cfg)
}
