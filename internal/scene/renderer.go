package scene

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrRendererDisposed is returned by Render after Dispose.
var ErrRendererDisposed = errors.New("scene: renderer disposed")

// Surface is the renderer's drawing target, the element a container
// attaches. Width and Height are in device pixels.
type Surface struct {
	ID     string
	Width  int
	Height int
}

// Renderer projects a scene through a camera into Frames. The drawing
// buffer is the CSS size multiplied by the pixel ratio.
type Renderer struct {
	pixelRatio float64

	mu       sync.Mutex
	width    int
	height   int
	surface  Surface
	disposed bool
	sink     func(*Frame)

	frames atomic.Uint64
	last   atomic.Pointer[Frame]
}

// NewRenderer creates a renderer whose pixel ratio is devicePixelRatio
// capped at maxPixelRatio. Non-positive ratios fall back to 1.
func NewRenderer(devicePixelRatio, maxPixelRatio float64) *Renderer {
	if devicePixelRatio <= 0 {
		devicePixelRatio = 1
	}
	pr := devicePixelRatio
	if maxPixelRatio > 0 {
		pr = math.Min(pr, maxPixelRatio)
	}
	return &Renderer{
		pixelRatio: pr,
		surface:    Surface{ID: uuid.NewString()},
	}
}

// PixelRatio returns the effective pixel ratio.
func (r *Renderer) PixelRatio() float64 { return r.pixelRatio }

// SetSize sets the CSS size and resizes the drawing buffer to match. Device
// pixel sizes are truncated, so 101px at ratio 1.5 is a 151px buffer.
func (r *Renderer) SetSize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = width, height
	r.surface.Width = int(math.Floor(float64(width) * r.pixelRatio))
	r.surface.Height = int(math.Floor(float64(height) * r.pixelRatio))
}

// Size returns the CSS size.
func (r *Renderer) Size() (width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// DrawingBufferSize returns the size in device pixels.
func (r *Renderer) DrawingBufferSize() (width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface.Width, r.surface.Height
}

// Surface returns a copy of the drawing surface descriptor.
func (r *Renderer) Surface() Surface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface
}

// SetFrameSink registers fn to receive every rendered frame. fn runs on the
// rendering goroutine and must not retain mutable state from the scene.
func (r *Renderer) SetFrameSink(fn func(*Frame)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = fn
}

// Render draws one frame of s as seen by cam. Objects whose geometry or
// material has been disposed are not drawn.
func (r *Renderer) Render(s *Scene, cam *PerspectiveCamera) (*Frame, error) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil, ErrRendererDisposed
	}
	w, h := r.surface.Width, r.surface.Height
	sink := r.sink
	r.mu.Unlock()

	f := &Frame{
		Number:     r.frames.Add(1),
		Time:       time.Now(),
		Width:      w,
		Height:     h,
		PixelRatio: r.pixelRatio,
		Background: s.Background.Hex(),
		Camera: FrameCamera{
			Position: cam.Position,
			Target:   cam.Target,
			FOV:      cam.FOV,
			Aspect:   cam.Aspect,
		},
	}
	for _, o := range s.Children() {
		if o.Geometry.Disposed() || o.Material.Disposed() {
			continue
		}
		fo, ok := projectObject(o, cam, w, h)
		if !ok {
			continue
		}
		f.Objects = append(f.Objects, fo)
	}

	r.last.Store(f)
	if sink != nil {
		sink(f)
	}
	return f, nil
}

// LastFrame returns the most recently rendered frame, or nil.
func (r *Renderer) LastFrame() *Frame { return r.last.Load() }

// RendererInfo reports render statistics.
type RendererInfo struct {
	Frames     uint64  `json:"frames"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	PixelRatio float64 `json:"pixel_ratio"`
	Disposed   bool    `json:"disposed"`
}

// Info returns render statistics.
func (r *Renderer) Info() RendererInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RendererInfo{
		Frames:     r.frames.Load(),
		Width:      r.surface.Width,
		Height:     r.surface.Height,
		PixelRatio: r.pixelRatio,
		Disposed:   r.disposed,
	}
}

// Dispose releases the drawing context. Later Render calls fail.
func (r *Renderer) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
	r.sink = nil
}
