// Package poll implements a generic polling data source: it repeatedly
// GETs one endpoint, decodes the body and exposes the latest accepted value.
//
// Failures of any kind (network, non-2xx status, decode) are swallowed and
// the previous value is kept. Polling never pauses or backs off. Stop
// guarantees that nothing is published afterwards, even by a fetch that was
// already in flight.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pathview/internal/httputil"
	"github.com/banshee-data/pathview/internal/monitoring"
)

// OverlapPolicy decides which of several concurrently pending fetches may
// publish. There is no overlap guard: a tick that fires while an earlier
// fetch is pending always issues a new request.
type OverlapPolicy int

const (
	// LatestIssued accepts a response only if no newer request has been
	// issued since it was sent.
	LatestIssued OverlapPolicy = iota
	// Monotonic accepts a response if it was issued after the last accepted
	// one, so an older response never overwrites a newer one, but a slow
	// response is still accepted when its successor has not completed.
	Monotonic
	// LatestCompleted accepts every successful response; whichever completes
	// last wins regardless of issue order.
	LatestCompleted
)

// String implements fmt.Stringer.
func (p OverlapPolicy) String() string {
	switch p {
	case LatestIssued:
		return "latest_issued"
	case Monotonic:
		return "monotonic"
	case LatestCompleted:
		return "latest_completed"
	default:
		return fmt.Sprintf("OverlapPolicy(%d)", int(p))
	}
}

// ParseOverlapPolicy converts a config string to an OverlapPolicy.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch s {
	case "", "latest_issued":
		return LatestIssued, nil
	case "monotonic":
		return Monotonic, nil
	case "latest_completed":
		return LatestCompleted, nil
	}
	return 0, fmt.Errorf("unknown overlap policy %q", s)
}

// Decoder turns a 2xx response body into a value or rejects it.
type Decoder[T any] func(body []byte) (T, error)

var (
	// ErrAlreadyStarted is returned by Start on a source that was started before.
	ErrAlreadyStarted = errors.New("poll: source already started")
	// ErrStopped is returned by Start on a source that was already stopped.
	ErrStopped = errors.New("poll: source stopped")
	// ErrInvalidInterval is returned by Start when the interval is not positive.
	ErrInvalidInterval = errors.New("poll: interval must be positive")
)

// Option configures a Source.
type Option func(*options)

type options struct {
	name         string
	policy       OverlapPolicy
	fetchTimeout time.Duration
	ticks        <-chan time.Time
}

// WithName sets the name used in log lines and stats.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithOverlapPolicy selects how overlapping fetches are reconciled.
func WithOverlapPolicy(p OverlapPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithFetchTimeout bounds each fetch. Zero (the default) means no timeout:
// a slow fetch may outlive several later ticks.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) { o.fetchTimeout = d }
}

// WithTicks replaces the interval ticker with an external tick source.
// Each receive issues one fetch. Used by tests and by callers that drive
// several sources from one clock.
func WithTicks(ticks <-chan time.Time) Option {
	return func(o *options) { o.ticks = ticks }
}

// Source polls one URL and holds the latest accepted value.
type Source[T any] struct {
	url      string
	interval time.Duration
	client   httputil.HTTPClient
	decode   Decoder[T]
	opts     options
	log      monitoring.Logger

	// mu guards the published state and the stopped flag. Listeners run
	// while it is held so Stop cannot return while one is mid-call.
	mu           sync.Mutex
	value        T
	has          bool
	version      uint64
	lastAccepted uint64
	started      bool
	stopped      bool
	failing      bool
	lastSuccess  time.Time
	listeners    []func(T)
	cancel       context.CancelFunc
	done         chan struct{}

	issued atomic.Uint64
	stats  counters
}

type counters struct {
	networkErrors atomic.Uint64
	statusErrors  atomic.Uint64
	decodeErrors  atomic.Uint64
	superseded    atomic.Uint64
	discarded     atomic.Uint64
	accepted      atomic.Uint64
}

// Stats is a point-in-time snapshot of a source's counters.
type Stats struct {
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	Policy        string    `json:"policy"`
	Issued        uint64    `json:"issued"`
	Accepted      uint64    `json:"accepted"`
	NetworkErrors uint64    `json:"network_errors"`
	StatusErrors  uint64    `json:"status_errors"`
	DecodeErrors  uint64    `json:"decode_errors"`
	Superseded    uint64    `json:"superseded"`
	Discarded     uint64    `json:"discarded_after_stop"`
	HasValue      bool      `json:"has_value"`
	Version       uint64    `json:"version"`
	LastSuccess   time.Time `json:"last_success"`
}

// New creates a Source. Nothing is fetched until Start.
func New[T any](client httputil.HTTPClient, url string, interval time.Duration, decode Decoder[T], opts ...Option) *Source[T] {
	o := options{name: url, policy: LatestIssued}
	for _, opt := range opts {
		opt(&o)
	}
	return &Source[T]{
		url:      url,
		interval: interval,
		client:   client,
		decode:   decode,
		opts:     o,
		log:      monitoring.Component("Poll:" + o.name),
		done:     make(chan struct{}),
	}
}

// Name returns the configured source name.
func (s *Source[T]) Name() string { return s.opts.name }

// OnUpdate registers fn to be called with every accepted value. fn runs on
// the fetching goroutine while the source's lock is held, so it must be
// quick and must not call back into the source.
func (s *Source[T]) OnUpdate(fn func(T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Latest returns the last accepted value and whether one exists.
func (s *Source[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.has
}

// Seed installs v as the latest value of a source that has not started and
// holds no value yet, typically a snapshot restored from disk. Listeners are
// not called. It reports whether v was installed.
func (s *Source[T]) Seed(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped || s.has {
		return false
	}
	s.value = v
	s.has = true
	s.version++
	return true
}

// Start issues the first fetch immediately and then one per interval until
// ctx is cancelled or Stop is called. A Source can be started once.
func (s *Source[T]) Start(ctx context.Context) error {
	if s.interval <= 0 && s.opts.ticks == nil {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.Printf("polling %s every %v (policy=%s)", s.url, s.interval, s.opts.policy)

	s.issue(ctx)
	go s.run(ctx)
	return nil
}

func (s *Source[T]) run(ctx context.Context) {
	defer close(s.done)

	ticks := s.opts.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.markStopped()
			return
		case _, ok := <-ticks:
			if !ok {
				<-ctx.Done()
				s.markStopped()
				return
			}
			s.issue(ctx)
		}
	}
}

// Stop cancels scheduling and any in-flight fetch. After Stop returns no
// value is published and no listener is invoked. It is safe to call more
// than once and before Start.
func (s *Source[T]) Stop() {
	s.mu.Lock()
	if !s.started {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.done
}

func (s *Source[T]) markStopped() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *Source[T]) issue(ctx context.Context) {
	seq := s.issued.Add(1)
	go s.fetch(ctx, seq)
}

func (s *Source[T]) fetch(ctx context.Context, seq uint64) {
	fctx := ctx
	if s.opts.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.opts.fetchTimeout)
		defer cancel()
	}

	body, err := httputil.GetBody(fctx, s.client, s.url)
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) {
			s.stats.statusErrors.Add(1)
		} else {
			s.stats.networkErrors.Add(1)
		}
		s.failed(seq, err)
		return
	}

	v, err := s.decode(body)
	if err != nil {
		s.stats.decodeErrors.Add(1)
		s.failed(seq, err)
		return
	}

	s.publish(ctx, seq, v)
}

func (s *Source[T]) failed(seq uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if !s.failing {
		s.failing = true
		s.log.Printf("fetch #%d failed, keeping last value: %v", seq, err)
		return
	}
	s.log.Debugf("fetch #%d failed: %v", seq, err)
}

func (s *Source[T]) publish(ctx context.Context, seq uint64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || ctx.Err() != nil {
		s.stats.discarded.Add(1)
		return
	}

	switch s.opts.policy {
	case LatestIssued:
		if seq != s.issued.Load() {
			s.stats.superseded.Add(1)
			s.log.Debugf("fetch #%d superseded by #%d", seq, s.issued.Load())
			return
		}
	case Monotonic:
		if seq <= s.lastAccepted {
			s.stats.superseded.Add(1)
			s.log.Debugf("fetch #%d older than accepted #%d", seq, s.lastAccepted)
			return
		}
	}

	if s.failing {
		s.failing = false
		s.log.Printf("fetch #%d succeeded, feed recovered", seq)
	}

	s.value = v
	s.has = true
	s.version++
	s.lastAccepted = seq
	s.lastSuccess = time.Now()
	s.stats.accepted.Add(1)

	for _, fn := range s.listeners {
		fn(v)
	}
}

// Stats returns the current counters.
func (s *Source[T]) Stats() Stats {
	s.mu.Lock()
	has, version, last := s.has, s.version, s.lastSuccess
	s.mu.Unlock()

	return Stats{
		Name:          s.opts.name,
		URL:           s.url,
		Policy:        s.opts.policy.String(),
		Issued:        s.issued.Load(),
		Accepted:      s.stats.accepted.Load(),
		NetworkErrors: s.stats.networkErrors.Load(),
		StatusErrors:  s.stats.statusErrors.Load(),
		DecodeErrors:  s.stats.decodeErrors.Load(),
		Superseded:    s.stats.superseded.Load(),
		Discarded:     s.stats.discarded.Load(),
		HasValue:      has,
		Version:       version,
		LastSuccess:   last,
	}
}
