// Package viewer owns one scene, camera and renderer for the lifetime of a
// mount. A single loop goroutine renders frames, applies container resizes
// and swaps in new paths, so none of these ever interleave within a frame.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/monitoring"
	"github.com/banshee-data/pathview/internal/pathrender"
	"github.com/banshee-data/pathview/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrMounted is returned by Mount on a viewer that is already mounted.
	ErrMounted = errors.New("viewer: already mounted")
	// ErrNotMounted is returned by Teardown on a viewer that is not mounted.
	ErrNotMounted = errors.New("viewer: not mounted")
	// ErrClosed is returned by Mount after Teardown; a viewer mounts once.
	ErrClosed = errors.New("viewer: torn down")
)

// Config fixes the scene, camera and renderer set up at construction.
type Config struct {
	Background       scene.Color
	FOV              float64
	Near             float64
	Far              float64
	CameraPosition   r3.Vec
	CameraTarget     r3.Vec
	DevicePixelRatio float64
	MaxPixelRatio    float64
	GridSize         float64
	GridDivisions    int
	LightPosition    r3.Vec
	FrameRate        int
	Style            pathrender.Style

	// Clock drives the render loop. Nil means a ticker at FrameRate.
	Clock FrameClock
}

// DefaultConfig returns the standard dashboard view.
func DefaultConfig() Config {
	return Config{
		Background:       0x111111,
		FOV:              50,
		Near:             0.1,
		Far:              1000,
		CameraPosition:   r3.Vec{X: 3, Y: 3, Z: 3},
		DevicePixelRatio: 1,
		MaxPixelRatio:    2,
		GridSize:         10,
		GridDivisions:    10,
		LightPosition:    r3.Vec{X: 5, Y: 10, Z: 7},
		FrameRate:        60,
		Style:            pathrender.DefaultStyle,
	}
}

// Viewer is the scene lifecycle manager.
type Viewer struct {
	cfg      Config
	scene    *scene.Scene
	camera   *scene.PerspectiveCamera
	renderer *scene.Renderer
	log      monitoring.Logger

	mu         sync.Mutex
	container  Container
	disconnect func()
	clock      FrameClock
	cancel     context.CancelFunc
	done       chan struct{}
	mounted    bool
	closed     bool
	sinks      []func(*scene.Frame)

	// inbox is a latest-wins mailbox drained by the loop.
	inboxMu   sync.Mutex
	inPath    *feed.Path
	hasPath   bool
	inSize    [2]int
	hasSize   bool
	wake      chan struct{}
	pathDrops atomic.Uint64

	stateMu     sync.Mutex
	width       int
	height      int
	aspect      float64
	census      scene.Census
	pathUpdates uint64
	resizes     uint64
}

// New builds the scene, camera and renderer. Nothing runs until Mount.
func New(cfg Config) *Viewer {
	res := &scene.Resources{}
	cam := scene.NewPerspectiveCamera(cfg.FOV, 1, cfg.Near, cfg.Far)
	cam.SetPosition(cfg.CameraPosition)
	cam.LookAt(cfg.CameraTarget)

	return &Viewer{
		cfg:      cfg,
		scene:    scene.New(cfg.Background, res),
		camera:   cam,
		renderer: scene.NewRenderer(cfg.DevicePixelRatio, cfg.MaxPixelRatio),
		log:      monitoring.Component("Viewer"),
		wake:     make(chan struct{}, 1),
		aspect:   1,
	}
}

// Surface returns the renderer's drawing surface, the only attachment point.
func (v *Viewer) Surface() scene.Surface { return v.renderer.Surface() }

// Scene returns the viewer's scene. Callers outside the viewer must treat
// it as read-only.
func (v *Viewer) Scene() *scene.Scene { return v.scene }

// LastFrame returns the most recently rendered frame, or nil.
func (v *Viewer) LastFrame() *scene.Frame { return v.renderer.LastFrame() }

// OnFrame registers fn to receive every rendered frame. fn runs on the
// render loop and must not block. Must be called before Mount.
func (v *Viewer) OnFrame(fn func(*scene.Frame)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sinks = append(v.sinks, fn)
}

// Mount attaches the surface to c, adds the static helpers, starts
// observing c's size, sizes the renderer from it and starts the render loop.
func (v *Viewer) Mount(ctx context.Context, c Container) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if v.mounted {
		return ErrMounted
	}

	if err := c.Attach(v.renderer.Surface()); err != nil {
		return fmt.Errorf("attach surface: %w", err)
	}
	v.addHelpers()

	// Observe before sampling: a resize landing in between is then queued
	// for the loop instead of lost.
	v.container = c
	v.disconnect = c.Observe(v.postResize)
	w, h := c.Size()
	v.applyResize(w, h)

	if sinks := v.sinks; len(sinks) > 0 {
		v.renderer.SetFrameSink(func(f *scene.Frame) {
			for _, fn := range sinks {
				fn(f)
			}
		})
	}

	v.clock = v.cfg.Clock
	if v.clock == nil {
		v.clock = NewTickerClock(v.cfg.FrameRate)
	}

	ctx, v.cancel = context.WithCancel(ctx)
	v.done = make(chan struct{})
	v.mounted = true
	go v.loop(ctx, v.clock.Frames())

	v.log.Printf("mounted surface %s at %dx%d (pixel ratio %.2f)", v.renderer.Surface().ID, w, h, v.renderer.PixelRatio())
	return nil
}

func (v *Viewer) addHelpers() {
	res := v.scene.Resources()

	grid := scene.NewObject(scene.KindGrid, "grid", scene.TagHelper)
	grid.Geometry = res.NewGrid(v.cfg.GridSize, v.cfg.GridDivisions)
	grid.Material = res.NewMaterial(scene.MaterialLineBasic, 0x444444)

	sun := scene.NewObject(scene.KindDirectionalLight, "directional", scene.TagHelper)
	sun.Position = v.cfg.LightPosition
	sun.Color = 0xffffff
	sun.Intensity = 1

	ambient := scene.NewObject(scene.KindAmbientLight, "ambient", scene.TagHelper)
	ambient.Color = 0xffffff
	ambient.Intensity = 0.4

	v.scene.Add(grid, sun, ambient)
}

// SetPath hands a new path to the render loop. Only the latest path
// waiting in the mailbox is applied. Every call triggers a full rebuild,
// even for an identical path.
func (v *Viewer) SetPath(p *feed.Path) {
	v.inboxMu.Lock()
	if v.hasPath {
		v.pathDrops.Add(1)
	}
	v.inPath, v.hasPath = p, true
	v.inboxMu.Unlock()
	v.signal()
}

func (v *Viewer) postResize(w, h int) {
	v.inboxMu.Lock()
	v.inSize, v.hasSize = [2]int{w, h}, true
	v.inboxMu.Unlock()
	v.signal()
}

func (v *Viewer) signal() {
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

func (v *Viewer) loop(ctx context.Context, frames <-chan time.Time) {
	defer close(v.done)
	v.drain()
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.wake:
			v.drain()
		case _, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			v.drain()
			if _, err := v.renderer.Render(v.scene, v.camera); err != nil {
				v.log.Printf("render: %v", err)
				return
			}
		}
	}
}

// drain applies whatever is waiting in the mailbox: resize first, then path.
func (v *Viewer) drain() {
	v.inboxMu.Lock()
	size, hasSize := v.inSize, v.hasSize
	p, hasPath := v.inPath, v.hasPath
	v.inPath, v.hasPath, v.hasSize = nil, false, false
	v.inboxMu.Unlock()

	if hasSize {
		v.applyResize(size[0], size[1])
	}
	if hasPath {
		census := v.cfg.Style.Replace(v.scene, p)
		v.stateMu.Lock()
		v.census = census
		v.pathUpdates++
		v.stateMu.Unlock()
		v.log.Debugf("path replaced: %d waypoints, %d objects", p.Len(), census.Total)
	}
}

// applyResize keeps the renderer and camera in step with the container.
// A zero-area box is ignored.
func (v *Viewer) applyResize(w, h int) {
	if w <= 0 || h <= 0 {
		v.log.Debugf("ignoring resize to %dx%d", w, h)
		return
	}
	aspect := float64(w) / float64(h)
	v.renderer.SetSize(w, h)
	v.camera.SetAspect(aspect)

	v.stateMu.Lock()
	v.width, v.height, v.aspect = w, h, aspect
	v.resizes++
	v.stateMu.Unlock()
}

// Teardown stops the render loop, disconnects the resize observer, detaches
// the surface and releases every geometry, material and the renderer.
func (v *Viewer) Teardown() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted {
		return ErrNotMounted
	}

	v.cancel()
	<-v.done
	v.clock.Stop()
	v.disconnect()
	v.container.Detach(v.renderer.Surface().ID)

	v.scene.Dispose()
	v.renderer.Dispose()

	v.mounted = false
	v.closed = true
	v.container = nil

	v.stateMu.Lock()
	v.census = scene.Census{}
	v.stateMu.Unlock()

	v.log.Printf("torn down after %d frames", v.renderer.Info().Frames)
	return nil
}

// Stats describes the viewer's current state.
type Stats struct {
	Mounted     bool               `json:"mounted"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	Aspect      float64            `json:"aspect"`
	Path        scene.Census       `json:"path"`
	PathUpdates uint64             `json:"path_updates"`
	PathDrops   uint64             `json:"path_drops"`
	Resizes     uint64             `json:"resizes"`
	Objects     int                `json:"objects"`
	Memory      scene.MemoryInfo   `json:"memory"`
	Renderer    scene.RendererInfo `json:"renderer"`
}

// Stats returns a snapshot of the viewer's state.
func (v *Viewer) Stats() Stats {
	v.mu.Lock()
	mounted := v.mounted
	v.mu.Unlock()

	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	return Stats{
		Mounted:     mounted,
		Width:       v.width,
		Height:      v.height,
		Aspect:      v.aspect,
		Path:        v.census,
		PathUpdates: v.pathUpdates,
		PathDrops:   v.pathDrops.Load(),
		Resizes:     v.resizes,
		Objects:     v.scene.Len(),
		Memory:      v.scene.Resources().Info(),
		Renderer:    v.renderer.Info(),
	}
}
