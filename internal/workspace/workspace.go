package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Manager handles the build output directory (both staged and in-place).
type Manager struct {
	outputDir string
	dir       string
	inPlace   bool // If true, render directly into outputDir
}

// NewStaging creates a manager that renders into a staging directory next to outputDir.
func NewStaging(outputDir string) *Manager {
	return &Manager{outputDir: filepath.Clean(outputDir)}
}

// NewInPlace creates a manager that renders directly into outputDir.
func NewInPlace(outputDir string) *Manager {
	dir := filepath.Clean(outputDir)
	return &Manager{outputDir: dir, dir: dir, inPlace: true}
}

// Create creates the workspace directory.
// Staged mode creates a fresh timestamped sibling of the output directory;
// in-place mode ensures the output directory exists.
func (m *Manager) Create() error {
	if m.inPlace {
		if err := os.MkdirAll(m.dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		slog.Debug("Rendering in place", logfields.Path(m.dir))
		return nil
	}

	parent := filepath.Dir(m.outputDir)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("failed to create output parent directory: %w", err)
	}
	timestamp := time.Now().Format("20060102-150405")
	pattern := fmt.Sprintf(".%s-staging-%s-*", filepath.Base(m.outputDir), timestamp)
	dir, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	// MkdirTemp creates 0700; the published tree must be readable.
	// #nosec G302 - site output
	if err := os.Chmod(dir, 0o755); err != nil {
		return fmt.Errorf("failed to set staging permissions: %w", err)
	}

	m.dir = dir
	slog.Debug("Created staging directory", logfields.Path(dir))
	return nil
}

// Path returns the directory the build writes to.
func (m *Manager) Path() string {
	return m.dir
}

// OutputDir returns the final output directory.
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Promote makes the staged build the output directory. The previous output
// is moved aside first and removed once the swap succeeded. In-place mode
// has nothing to promote.
func (m *Manager) Promote() error {
	if m.inPlace {
		return nil
	}
	if m.dir == "" {
		return fmt.Errorf("workspace not created")
	}

	var previous string
	if _, err := os.Stat(m.outputDir); err == nil {
		previous = fmt.Sprintf("%s.previous-%d", m.outputDir, time.Now().UnixNano())
		if err := os.Rename(m.outputDir, previous); err != nil {
			return fmt.Errorf("failed to move previous output aside: %w", err)
		}
	}
	if err := os.Rename(m.dir, m.outputDir); err != nil {
		if previous != "" {
			if rerr := os.Rename(previous, m.outputDir); rerr != nil {
				slog.Error("Failed to restore previous output", logfields.Path(previous), logfields.Error(rerr))
			}
		}
		return fmt.Errorf("failed to promote staging directory: %w", err)
	}
	m.dir = ""
	slog.Info("Published build output", logfields.Path(m.outputDir))

	if previous != "" {
		if err := os.RemoveAll(previous); err != nil {
			slog.Warn("Failed to remove previous output", logfields.Path(previous), logfields.Error(err))
		}
	}
	return nil
}

// Cleanup discards the staging directory.
// For in-place mode: does nothing (the output is the workspace)
// For staged mode: removes the staging directory unless it was promoted
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}

	if m.inPlace {
		slog.Debug("Skipping cleanup for in-place output", logfields.Path(m.dir))
		return nil
	}

	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to cleanup staging directory: %w", err)
	}

	slog.Debug("Discarded staging directory", logfields.Path(m.dir))
	m.dir = ""
	return nil
}
