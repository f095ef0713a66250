package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/content"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// FetchCmd implements the 'fetch' command.
type FetchCmd struct {
	Kind   string `arg:"" help:"Content kind (service, teamMember, testimonial, page)"`
	Slug   string `help:"Only entries with this slug"`
	Format string `short:"f" help:"Output format" enum:"json,yaml" default:"json"`
}

func (f *FetchCmd) Run(g *Global, root *CLI) error {
	kind, ok := content.ParseKind(f.Kind)
	if !ok {
		names := make([]string, len(content.Kinds))
		for i, k := range content.Kinds {
			names[i] = string(k)
		}
		return ferrors.ValidationError(fmt.Sprintf("unknown content kind %q (want one of %s)", f.Kind, strings.Join(names, ", "))).
			WithContext("kind", f.Kind).Build()
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	backend, err := content.BackendFromConfig(cfg, nil)
	if err != nil {
		return err
	}
	entries, err := backend.FetchEntries(g.ctx(), kind, content.Filter{Slug: f.Slug})
	if err != nil {
		return err
	}

	if f.Format == "yaml" {
		enc := yaml.NewEncoder(g.out())
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(entries)
	}
	enc := json.NewEncoder(g.out())
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
