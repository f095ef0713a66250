package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/contact"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/publish"
)

const shutdownTimeout = 10 * time.Second

// Options carries the daemon's optional collaborators.
type Options struct {
	// Registry backs /metrics; nil serves an empty registry.
	Registry *prom.Registry
	// Publisher deploys successful builds when publish.git is enabled.
	Publisher publish.Publisher
	// HTTPClient relays contact submissions.
	HTTPClient *http.Client
}

// Daemon rebuilds the site whenever it is asked to and serves its HTTP surface.
type Daemon struct {
	configPath string
	cfg        atomic.Pointer[config.Config]
	opts       Options

	builder *ServiceBuilder
	queue   *BuildQueue

	mu     sync.RWMutex
	bridge *NATSBridge

	started  time.Time
	listener net.Listener
}

// New creates a daemon building with service. configPath is watched for
// changes when daemon.watch_config is set.
func New(configPath string, cfg *config.Config, service build.Service, opts Options) (*Daemon, error) {
	if cfg == nil || cfg.Daemon == nil {
		return nil, ferrors.DaemonError("daemon section missing from configuration").Build()
	}
	if service == nil {
		return nil, ferrors.DaemonError("build service required").Build()
	}
	d := &Daemon{configPath: configPath, opts: opts, started: time.Now()}
	d.cfg.Store(cfg)
	d.builder = NewServiceBuilder(service, d.Config).WithPublisher(opts.Publisher)
	d.queue = NewBuildQueue(d.builder)
	return d, nil
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Config {
	return d.cfg.Load()
}

// Trigger requests a build.
func (d *Daemon) Trigger(t Trigger) (Job, error) {
	job, _, err := d.queue.Enqueue(t)
	return job, err
}

// ReloadConfig swaps in cfg for subsequent builds and requests one. Daemon
// settings such as the schedule take effect on restart.
func (d *Daemon) ReloadConfig(cfg *config.Config) {
	d.cfg.Store(cfg)
	slog.Info("Configuration applied")
	if _, err := d.Trigger(TriggerConfig); err != nil {
		slog.Warn("Failed to queue build after config reload", logfields.Error(err))
	}
}

// Addr returns the HTTP listen address once Run has bound it.
func (d *Daemon) Addr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *Daemon) natsBridge() *NATSBridge {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bridge
}

// Run starts every configured trigger, queues an initial build and blocks
// until ctx is canceled or the HTTP server fails.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.Config()
	dcfg := cfg.Daemon

	if dcfg.NATSURL != "" {
		bridge, err := ConnectNATS(dcfg)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.bridge = bridge
		d.mu.Unlock()
		d.builder.WithEvents(bridge)
		defer func() {
			if err := bridge.Close(); err != nil {
				slog.Warn("Failed to drain NATS connection", logfields.Error(err))
			}
		}()
	}

	d.queue.Start(ctx)
	defer d.queue.Stop()

	if bridge := d.natsBridge(); bridge != nil {
		if err := bridge.Subscribe(d.onContentChange); err != nil {
			return err
		}
	}

	if dcfg.Schedule != "" {
		sched, err := NewScheduler()
		if err != nil {
			return ferrors.DaemonError("failed to create scheduler").WithCause(err).Build()
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				slog.Warn("Failed to stop scheduler", logfields.Error(err))
			}
		}()
		if _, err := sched.ScheduleCron("scheduled-build", dcfg.Schedule, func() {
			if _, err := d.Trigger(TriggerSchedule); err != nil {
				slog.Warn("Failed to queue scheduled build", logfields.Error(err))
			}
		}); err != nil {
			return ferrors.ConfigError("invalid daemon.schedule").WithCause(err).
				WithContext("field", "daemon.schedule").Build()
		}
		sched.Start()
	}

	if dcfg.WatchConfig && d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, cfg.ParsedDurations().Debounce, d.ReloadConfig)
		if err != nil {
			return ferrors.DaemonError("failed to create config watcher").WithCause(err).Build()
		}
		if err := watcher.Start(ctx); err != nil {
			_ = watcher.Stop()
			return ferrors.DaemonError("failed to start config watcher").WithCause(err).Build()
		}
		defer func() { _ = watcher.Stop() }()
	}

	ln, err := net.Listen("tcp", dcfg.HTTPAddr)
	if err != nil {
		return ferrors.DaemonError("failed to listen").WithCause(err).WithContext("addr", dcfg.HTTPAddr).Build()
	}
	d.mu.Lock()
	d.listener = ln
	d.mu.Unlock()

	srv := &http.Server{Handler: d.Handler(), ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	slog.Info("Daemon listening", slog.String("addr", ln.Addr().String()))

	if _, err := d.Trigger(TriggerStartup); err != nil {
		slog.Warn("Failed to queue startup build", logfields.Error(err))
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return ferrors.DaemonError("http server failed").WithCause(err).Build()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", logfields.Error(err))
	}
	slog.Info("Daemon stopped")
	return nil
}

func (d *Daemon) onContentChange(c ContentChange) {
	slog.Info("Content change received", logfields.Kind(c.Kind), logfields.EntryID(c.EntryID), slog.String("type", c.Type))
	if _, err := d.Trigger(TriggerContent); err != nil {
		slog.Warn("Failed to queue content build", logfields.Error(err))
	}
}

// Handler serves /healthz, /metrics, /builds and the contact relay.
func (d *Daemon) Handler() http.Handler {
	cfg := d.Config()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.handleHealth)
	mux.Handle(cfg.Monitoring.Metrics.Path, metrics.HTTPHandler(d.opts.Registry))
	mux.HandleFunc("/builds", d.handleBuilds)

	endpoint := cfg.Site.ContactEndpoint
	if relay := cfg.Daemon.ContactRelay; relay != "" && strings.HasPrefix(endpoint, "/") {
		client := d.opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 15 * time.Second}
		}
		mux.Handle(endpoint, contact.Handler(contact.NewHTTPSubmitter(relay, client)))
	}
	return mux
}

type buildsResponse struct {
	Running *Job  `json:"running,omitempty"`
	Pending *Job  `json:"pending,omitempty"`
	History []Job `json:"history"`
}

// handleBuilds lists jobs on GET and queues a manual build on POST.
func (d *Daemon) handleBuilds(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		running, pending, history := d.queue.Snapshot()
		_ = json.NewEncoder(w).Encode(buildsResponse{Running: running, Pending: pending, History: history})
	case http.MethodPost:
		job, err := d.Trigger(TriggerManual)
		if err != nil {
			ferrors.NewHTTPErrorAdapter(slog.Default()).WriteErrorResponse(w, r,
				ferrors.DaemonError("build not queued").WithCause(err).Build())
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(job)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
