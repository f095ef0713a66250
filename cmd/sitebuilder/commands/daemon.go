package commands

import (
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/daemon"
	"git.home.luguber.info/inful/sitebuilder/internal/publish"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct{}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := daemon.Options{Registry: rt.registry}
	if cfg.Publish != nil && cfg.Publish.Git.Enabled {
		opts.Publisher = publish.NewGitPublisher(cfg.Publish.Git)
	}
	dm, err := daemon.New(root.Config, cfg, rt.service(), opts)
	if err != nil {
		return err
	}

	slog.Info("Starting daemon", slog.String("config", root.Config))
	return dm.Run(g.ctx())
}
