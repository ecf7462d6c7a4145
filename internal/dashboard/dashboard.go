// Package dashboard is the composition root: it polls the three backend
// feeds, drives the path viewer from the path feed and serves the panels.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pathview/internal/config"
	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/history"
	"github.com/banshee-data/pathview/internal/httputil"
	"github.com/banshee-data/pathview/internal/monitoring"
	"github.com/banshee-data/pathview/internal/poll"
	"github.com/banshee-data/pathview/internal/scene"
	"github.com/banshee-data/pathview/internal/scenestream"
	"github.com/banshee-data/pathview/internal/viewer"
)

// Badge labels.
const (
	BadgeValid   = "Valid"
	BadgePending = "Pending"
)

// Backend endpoints, relative to the configured base URL.
const (
	StatusPath = "/api/latest/status"
	CodePath   = "/api/latest/code"
	PathPath   = "/api/latest/path"
)

// ErrStarted is returned by Start on a dashboard that already ran.
var ErrStarted = errors.New("dashboard: already started")

// Options wires optional collaborators into a Dashboard. Only Config is
// required.
type Options struct {
	Config *config.DashboardConfig

	// Client performs backend fetches. Nil uses a plain http.Client.
	Client httputil.HTTPClient

	// Recorder, when set, receives every accepted snapshot.
	Recorder *history.Recorder
	// Store, when set, seeds the panels and the viewer from the last stored
	// snapshots on Start and exposes the history database under /debug/.
	Store *history.Store
	// Publisher, when set, receives every rendered frame.
	Publisher *scenestream.Publisher

	// Clock drives the viewer's render loop. Nil ticks at the configured
	// frame rate.
	Clock viewer.FrameClock
	// StatusTicks, CodeTicks and PathTicks replace the feed intervals.
	StatusTicks <-chan time.Time
	CodeTicks   <-chan time.Time
	PathTicks   <-chan time.Time
}

// Dashboard owns the feed sources and the viewer.
type Dashboard struct {
	cfg       *config.DashboardConfig
	status    *poll.Source[feed.StatusSnapshot]
	code      *poll.Source[feed.CodeSnapshot]
	path      *poll.Source[*feed.Path]
	viewer    *viewer.Viewer
	element   *viewer.Element
	recorder  *history.Recorder
	store     *history.Store
	publisher *scenestream.Publisher
	log       monitoring.Logger

	statusVersion atomic.Uint64
	codeVersion   atomic.Uint64
	pathVersion   atomic.Uint64

	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds a dashboard from opts. Nothing polls or renders until Start.
func New(opts Options) (*Dashboard, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyDashboardConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dashboard config: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{})
	}

	base := strings.TrimRight(cfg.GetBackendURL(), "/")
	common := []poll.Option{
		poll.WithOverlapPolicy(cfg.GetOverlapPolicy()),
		poll.WithFetchTimeout(cfg.GetFetchTimeout()),
	}
	sourceOpts := func(name string, ticks <-chan time.Time) []poll.Option {
		o := append([]poll.Option{poll.WithName(name)}, common...)
		if ticks != nil {
			o = append(o, poll.WithTicks(ticks))
		}
		return o
	}

	vcfg := viewer.DefaultConfig()
	vcfg.DevicePixelRatio = cfg.GetDevicePixelRatio()
	vcfg.MaxPixelRatio = cfg.GetMaxPixelRatio()
	vcfg.FrameRate = cfg.GetFrameRate()
	vcfg.Clock = opts.Clock

	d := &Dashboard{
		cfg: cfg,
		status: poll.New(client, base+StatusPath, cfg.GetStatusInterval(),
			feed.DecodeStatus, sourceOpts(history.FeedStatus, opts.StatusTicks)...),
		code: poll.New(client, base+CodePath, cfg.GetCodeInterval(),
			feed.DecodeCode, sourceOpts(history.FeedCode, opts.CodeTicks)...),
		path: poll.New(client, base+PathPath, cfg.GetPathInterval(),
			feed.DecodePath, sourceOpts(history.FeedPath, opts.PathTicks)...),
		viewer:    viewer.New(vcfg),
		element:   viewer.NewElement(cfg.GetViewSize()),
		recorder:  opts.Recorder,
		store:     opts.Store,
		publisher: opts.Publisher,
		log:       monitoring.Component("Dashboard"),
	}
	d.wire()
	return d, nil
}

// wire connects feeds to the viewer, the history recorder and the frame
// publisher. Listeners run under the source's lock and only hand values off.
func (d *Dashboard) wire() {
	d.path.OnUpdate(func(p *feed.Path) {
		v := d.pathVersion.Add(1)
		d.viewer.SetPath(p)
		if d.recorder != nil {
			d.recorder.RecordPath(v, p)
		}
	})
	d.status.OnUpdate(func(s feed.StatusSnapshot) {
		v := d.statusVersion.Add(1)
		if d.recorder != nil {
			d.recorder.Record(history.FeedStatus, v, s)
		}
	})
	d.code.OnUpdate(func(c feed.CodeSnapshot) {
		v := d.codeVersion.Add(1)
		if d.recorder != nil {
			d.recorder.Record(history.FeedCode, v, c)
		}
	})
	if d.publisher != nil {
		d.viewer.OnFrame(d.publisher.Publish)
	}
}

// Start mounts the viewer and starts the three feeds. The feeds are
// independent: each fetches immediately and then on its own interval.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrStarted
	}
	d.started = true

	if d.store != nil {
		d.restore(ctx)
	}
	if err := d.viewer.Mount(ctx, d.element); err != nil {
		return fmt.Errorf("mount viewer: %w", err)
	}
	for _, start := range []func(context.Context) error{d.status.Start, d.code.Start, d.path.Start} {
		if err := start(ctx); err != nil {
			d.stopLocked()
			return fmt.Errorf("start feed: %w", err)
		}
	}
	d.log.Printf("polling %s", d.cfg.GetBackendURL())
	return nil
}

// restore seeds each feed from its last stored snapshot so a restart shows
// the previous state until the first fetch lands. Version counters resume
// from the stored versions. Missing or undecodable snapshots are skipped.
func (d *Dashboard) restore(ctx context.Context) {
	if s, v, ok := latestStored(ctx, d, history.FeedStatus, feed.DecodeStatus); ok && d.status.Seed(s) {
		d.statusVersion.Store(v)
	}
	if c, v, ok := latestStored(ctx, d, history.FeedCode, feed.DecodeCode); ok && d.code.Seed(c) {
		d.codeVersion.Store(v)
	}
	if p, v, ok := latestStored(ctx, d, history.FeedPath, feed.DecodePath); ok && d.path.Seed(p) {
		d.pathVersion.Store(v)
		d.viewer.SetPath(p)
	}
}

func latestStored[T any](ctx context.Context, d *Dashboard, name string, decode func([]byte) (T, error)) (T, uint64, bool) {
	var zero T
	snap, err := d.store.Latest(ctx, name)
	if errors.Is(err, history.ErrNotFound) {
		return zero, 0, false
	}
	if err != nil {
		d.log.Printf("restore %s: %v", name, err)
		return zero, 0, false
	}
	v, err := decode([]byte(snap.Payload))
	if err != nil {
		d.log.Printf("restore %s: stored snapshot %s: %v", name, snap.ID, err)
		return zero, 0, false
	}
	d.log.Printf("restored %s v%d from %s", name, snap.Version, snap.Received.Format(time.RFC3339))
	return v, snap.Version, true
}

// Stop stops every feed and tears the viewer down. No snapshot is applied
// after Stop returns. Stop is idempotent.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Dashboard) stopLocked() {
	if d.stopped {
		return
	}
	d.stopped = true
	d.status.Stop()
	d.code.Stop()
	d.path.Stop()
	if err := d.viewer.Teardown(); err != nil && !errors.Is(err, viewer.ErrNotMounted) {
		d.log.Printf("viewer teardown: %v", err)
	}
	d.log.Printf("stopped")
}

// Viewer returns the dashboard's viewer.
func (d *Dashboard) Viewer() *viewer.Viewer { return d.viewer }

// Element returns the container the viewer is mounted in.
func (d *Dashboard) Element() *viewer.Element { return d.element }

// Badge is "Valid" only when the last accepted status says so; before any
// status arrives it is "Pending".
func (d *Dashboard) Badge() string {
	s, ok := d.status.Latest()
	if ok && s.Valid {
		return BadgeValid
	}
	return BadgePending
}

// View is the dashboard's panel state.
type View struct {
	Badge     string       `json:"badge"`
	Message   string       `json:"message"`
	HasStatus bool         `json:"has_status"`
	Karel     string       `json:"karel"`
	KRL       string       `json:"krl"`
	HasCode   bool         `json:"has_code"`
	HasPath   bool         `json:"has_path"`
	Path      feed.Summary `json:"path"`
	Viewer    viewer.Stats `json:"viewer"`
	Feeds     []poll.Stats `json:"feeds"`
}

// View returns the current panel state. Panels show the last accepted
// snapshot of each feed, however old; fetch failures are not surfaced.
func (d *Dashboard) View() View {
	status, hasStatus := d.status.Latest()
	code, hasCode := d.code.Latest()
	path, hasPath := d.path.Latest()
	return View{
		Badge:     d.Badge(),
		Message:   status.Message,
		HasStatus: hasStatus,
		Karel:     code.Karel,
		KRL:       code.KRL,
		HasCode:   hasCode,
		HasPath:   hasPath,
		Path:      path.Summary(),
		Viewer:    d.viewer.Stats(),
		Feeds:     d.FeedStats(),
	}
}

// FeedStats returns the poll counters of each feed.
func (d *Dashboard) FeedStats() []poll.Stats {
	return []poll.Stats{d.status.Stats(), d.code.Stats(), d.path.Stats()}
}

// Path returns the last accepted path, or nil.
func (d *Dashboard) Path() *feed.Path {
	p, _ := d.path.Latest()
	return p
}

// Frame returns the viewer's last rendered frame, or nil.
func (d *Dashboard) Frame() *scene.Frame {
	return d.viewer.LastFrame()
}
