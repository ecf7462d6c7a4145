package synthetic

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/httputil"
	"github.com/banshee-data/pathview/internal/monitoring"
)

// Feed names served under /api/latest/.
const (
	FeedStatus = "status"
	FeedCode   = "code"
	FeedPath   = "path"
)

// Faults controls failure injection per feed. Rates are per-request
// probabilities in [0, 1] and share one roll, so their sum caps at 1.
type Faults struct {
	ErrorRate   float64 // respond 503
	CorruptRate float64 // respond 200 with a body of the wrong shape
}

type faultCounters struct {
	served    atomic.Uint64
	errors    atomic.Uint64
	corrupted atomic.Uint64
}

// Backend serves the current plan over HTTP.
type Backend struct {
	gen *Generator
	log monitoring.Logger

	mu      sync.RWMutex
	current Plan
	faults  map[string]Faults
	rng     *rand.Rand

	counters map[string]*faultCounters
}

// NewBackend creates a backend holding gen's first plan.
func NewBackend(gen *Generator) *Backend {
	b := &Backend{
		gen:      gen,
		log:      monitoring.Component("Synthetic"),
		faults:   make(map[string]Faults),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		counters: make(map[string]*faultCounters),
	}
	for _, f := range []string{FeedStatus, FeedCode, FeedPath} {
		b.counters[f] = &faultCounters{}
	}
	b.current = gen.Next()
	return b
}

// SetFaults configures failure injection for one feed.
func (b *Backend) SetFaults(feedName string, f Faults) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[feedName] = f
}

// SetPlan replaces the served plan.
func (b *Backend) SetPlan(p Plan) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = p
}

// Advance replaces the served plan with the generator's next one.
func (b *Backend) Advance() Plan {
	p := b.gen.Next()
	b.SetPlan(p)
	b.log.Printf("plan %d: %d waypoints, valid=%t", p.Number, p.Path.Len(), p.Status.Valid)
	return p
}

// Current returns the served plan.
func (b *Backend) Current() Plan {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Run advances the plan every interval until ctx is cancelled.
func (b *Backend) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Advance()
		}
	}
}

// Stats reports requests per feed.
type Stats struct {
	Served    uint64 `json:"served"`
	Errors    uint64 `json:"errors"`
	Corrupted uint64 `json:"corrupted"`
}

// Stats returns per-feed request counters.
func (b *Backend) Stats() map[string]Stats {
	out := make(map[string]Stats, len(b.counters))
	for name, c := range b.counters {
		out[name] = Stats{Served: c.served.Load(), Errors: c.errors.Load(), Corrupted: c.corrupted.Load()}
	}
	return out
}

// Handler returns the backend routes.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/latest/status", b.serve(FeedStatus, func(p Plan) interface{} {
		return p.Status
	}))
	mux.HandleFunc("/api/latest/code", b.serve(FeedCode, func(p Plan) interface{} {
		return p.Code
	}))
	mux.HandleFunc("/api/latest/path", b.serve(FeedPath, func(p Plan) interface{} {
		if p.Path == nil {
			return &feed.Path{}
		}
		return p.Path
	}))
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, b.Stats())
	})
	return mux
}

func (b *Backend) serve(name string, body func(Plan) interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		c := b.counters[name]
		c.served.Add(1)

		b.mu.Lock()
		f := b.faults[name]
		roll := b.rng.Float64()
		plan := b.current
		b.mu.Unlock()

		switch {
		case roll < f.ErrorRate:
			c.errors.Add(1)
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, "injected failure")
		case roll < f.ErrorRate+f.CorruptRate:
			c.corrupted.Add(1)
			httputil.WriteJSONOK(w, map[string]interface{}{"unexpected": name})
		default:
			httputil.WriteJSONOK(w, body(plan))
		}
	}
}
