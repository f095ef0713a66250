package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/content"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// CacheCmd groups cache maintenance commands.
type CacheCmd struct {
	Prune CachePruneCmd `cmd:"" help:"Drop derivations of assets that are no longer current and collect unreferenced payloads"`
}

// CachePruneCmd implements 'cache prune'.
type CachePruneCmd struct{}

func (p *CachePruneCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	backend, err := content.BackendFromConfig(cfg, nil)
	if err != nil {
		return err
	}

	current := map[string]string{}
	for _, kind := range content.Kinds {
		entries, err := backend.FetchEntries(g.ctx(), kind, content.Filter{})
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryContent, "cannot list current assets, cache left untouched").
				WithContext("kind", string(kind)).Build()
		}
		for _, e := range entries {
			for _, ref := range e.Images() {
				current[ref.AssetID] = ref.ContentHash
			}
		}
	}

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	records, err := rt.index.Prune(g.ctx(), current)
	if err != nil {
		return ferrors.FileSystemError("failed to prune derivation index").WithCause(err).Build()
	}
	keep, err := rt.index.PayloadHashes(g.ctx())
	if err != nil {
		return ferrors.FileSystemError("failed to read derivation index").WithCause(err).Build()
	}
	objects, err := rt.store.GC(g.ctx(), keep)
	if err != nil {
		return ferrors.FileSystemError("failed to collect payloads").WithCause(err).Build()
	}

	slog.Info("Cache pruned", logfields.Count(records), slog.Int("objects", objects), slog.Int("live_assets", len(current)))
	_, _ = fmt.Fprintf(g.out(), "removed %d derivation records and %d payloads\n", records, objects)
	return nil
}
