package history

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/monitoring"
)

// Recorder writes snapshots to a Store from a background goroutine so that
// feed listeners never block on the database. When the queue is full new
// snapshots are dropped and counted.
type Recorder struct {
	store  *Store
	retain int
	queue  chan entry
	log    monitoring.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

type entry struct {
	snap    Snapshot
	summary *feed.Summary
}

// DefaultQueueSize bounds the number of snapshots waiting to be written.
const DefaultQueueSize = 64

// NewRecorder creates a Recorder over store keeping at most retain rows per
// feed (zero keeps everything).
func NewRecorder(store *Store, retain int) *Recorder {
	return &Recorder{
		store:  store,
		retain: retain,
		queue:  make(chan entry, DefaultQueueSize),
		log:    monitoring.Component("History"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs the writer goroutine.
func (r *Recorder) Start() {
	go r.run()
}

// Stop drains queued snapshots and stops the writer. Later Record calls
// are dropped.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-r.stop:
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := r.store.Insert(ctx, e.snap)
	if err != nil {
		r.failed.Add(1)
		r.log.Printf("write failed: %v", err)
		return
	}
	if e.summary != nil {
		if err := r.store.InsertPathSummary(ctx, snap.ID, *e.summary); err != nil {
			r.failed.Add(1)
			r.log.Printf("write failed: %v", err)
		}
	}
	if n, err := r.store.Prune(ctx, snap.Feed, r.retain); err != nil {
		r.log.Printf("prune failed: %v", err)
	} else if n > 0 {
		r.log.Debugf("pruned %d %s snapshots", n, snap.Feed)
	}
	r.written.Add(1)
}

// Record queues v, encoded as JSON, as the given version of feedName.
func (r *Recorder) Record(feedName string, version uint64, v interface{}) {
	r.enqueue(feedName, version, v, nil)
}

// RecordPath queues a path snapshot together with its summary.
func (r *Recorder) RecordPath(version uint64, p *feed.Path) {
	sum := p.Summary()
	r.enqueue(FeedPath, version, p, &sum)
}

func (r *Recorder) enqueue(feedName string, version uint64, v interface{}, sum *feed.Summary) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.failed.Add(1)
		r.log.Printf("encode %s snapshot: %v", feedName, err)
		return
	}
	e := entry{
		snap: Snapshot{
			Feed:     feedName,
			Version:  version,
			Payload:  string(payload),
			Received: time.Now(),
		},
		summary: sum,
	}

	select {
	case <-r.stop:
		r.dropped.Add(1)
		return
	default:
	}
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
	}
}

// RecorderStats reports writer counters.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
	Queued  int    `json:"queued"`
}

// Stats returns the writer counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Queued:  len(r.queue),
	}
}
