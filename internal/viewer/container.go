package viewer

import (
	"errors"
	"sync"

	"github.com/banshee-data/pathview/internal/scene"
)

// Container is the mount point a Viewer attaches its surface to. It reports
// its own box size and notifies observers when that size changes.
type Container interface {
	Size() (width, height int)
	Attach(s scene.Surface) error
	Detach(id string)
	// Observe registers fn for size changes and returns a function that
	// disconnects it.
	Observe(fn func(width, height int)) (disconnect func())
}

// ErrSurfaceAttached is returned when a surface is attached twice.
var ErrSurfaceAttached = errors.New("viewer: surface already attached")

// Element is an in-process Container. The dashboard sizes it from the
// browser's reported viewport; tests drive it directly.
type Element struct {
	mu        sync.Mutex
	width     int
	height    int
	surfaces  []scene.Surface
	observers map[int]func(int, int)
	nextID    int
}

// NewElement creates an Element with an initial CSS box size.
func NewElement(width, height int) *Element {
	return &Element{width: width, height: height, observers: make(map[int]func(int, int))}
}

// Size returns the current box size.
func (e *Element) Size() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// Resize changes the box size and notifies observers. Observers are called
// outside the lock.
func (e *Element) Resize(width, height int) {
	e.mu.Lock()
	if e.width == width && e.height == height {
		e.mu.Unlock()
		return
	}
	e.width, e.height = width, height
	fns := make([]func(int, int), 0, len(e.observers))
	for _, fn := range e.observers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(width, height)
	}
}

// Attach adds s as a child.
func (e *Element) Attach(s scene.Surface) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.surfaces {
		if c.ID == s.ID {
			return ErrSurfaceAttached
		}
	}
	e.surfaces = append(e.surfaces, s)
	return nil
}

// Detach removes the child with the given ID, if present.
func (e *Element) Detach(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.surfaces {
		if c.ID == id {
			e.surfaces = append(e.surfaces[:i], e.surfaces[i+1:]...)
			return
		}
	}
}

// Observe registers fn for size changes.
func (e *Element) Observe(fn func(int, int)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.observers, id)
			e.mu.Unlock()
		})
	}
}

// ElementInfo describes a container's box and what is bound to it.
type ElementInfo struct {
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Surfaces  []string `json:"surfaces"`
	Observers int      `json:"observers"`
}

// Info returns the box size, the IDs of attached surfaces and the number of
// connected observers.
func (e *Element) Info() ElementInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.surfaces))
	for i, s := range e.surfaces {
		ids[i] = s.ID
	}
	return ElementInfo{Width: e.width, Height: e.height, Surfaces: ids, Observers: len(e.observers)}
}
