package commands

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/publish"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output  string `short:"o" help:"Output directory (overrides build.output_dir)" type:"path"`
	Publish bool   `help:"Publish the output when publish.git is enabled"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Build.OutputDir = b.Output
	}

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.service().Run(g.ctx(), build.Request{Config: cfg, Trigger: "cli"})
	if res != nil {
		printSummary(g, res)
	}
	if err != nil {
		return err
	}

	if b.Publish && cfg.Publish != nil && cfg.Publish.Git.Enabled {
		pres, err := publish.NewGitPublisher(cfg.Publish.Git).Publish(g.ctx(), cfg.Build.OutputDir, res.BuildID)
		if err != nil {
			return err
		}
		if pres.Changed {
			_, _ = fmt.Fprintf(g.out(), "published commit %s\n", pres.Commit)
		} else {
			_, _ = fmt.Fprintln(g.out(), "output unchanged, nothing published")
		}
	}
	return nil
}

func printSummary(g *Global, res *build.Result) {
	out := g.out()
	_, _ = fmt.Fprintf(out, "build %s: %s in %s\n", res.BuildID, res.Outcome(), res.Duration.Round(time.Millisecond))
	for _, route := range res.SucceededRoutes() {
		_, _ = fmt.Fprintf(out, "  ok     %s\n", route)
	}
	for _, route := range slices.Sorted(maps.Keys(res.Failed)) {
		marker := "failed"
		if res.Critical[route] {
			marker = "FAILED"
		}
		_, _ = fmt.Fprintf(out, "  %s %s: %v\n", marker, route, res.Failed[route])
	}
}
