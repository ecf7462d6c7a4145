package dashboard

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/pathview/internal/config"
	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/history"
	"github.com/banshee-data/pathview/internal/monitoring"
	"github.com/banshee-data/pathview/internal/scene"
	"github.com/banshee-data/pathview/internal/synthetic"
	"github.com/banshee-data/pathview/internal/testutil"
	"github.com/banshee-data/pathview/internal/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

const waitFor = 5 * time.Second

type harness struct {
	backend *synthetic.Backend
	dash    *Dashboard
	clock   *viewer.ManualClock
	status  chan time.Time
	code    chan time.Time
	path    chan time.Time
}

func basePlan() synthetic.Plan {
	return synthetic.Plan{
		Number: 1,
		Path:   testutil.ThreePointPath(),
		Status: feed.StatusSnapshot{Valid: true, Message: "OK"},
		Code:   feed.CodeSnapshot{Karel: "PROGRAM a\nEND a", KRL: "DEF a()\nEND"},
	}
}

// newHarness starts a dashboard against a synthetic backend. Feeds and the
// render loop only advance when the test ticks them.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	return startHarness(t, opts, nil)
}

// startHarness is newHarness with a hook to configure the backend before
// the first fetch is issued.
func startHarness(t *testing.T, opts Options, prepare func(*synthetic.Backend)) *harness {
	t.Helper()
	backend := synthetic.NewBackend(synthetic.NewGenerator(1))
	backend.SetPlan(basePlan())
	if prepare != nil {
		prepare(backend)
	}
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	cfg := config.EmptyDashboardConfig()
	cfg.BackendURL = &srv.URL
	opts.Config = cfg

	h := &harness{
		backend: backend,
		clock:   viewer.NewManualClock(),
		status:  make(chan time.Time),
		code:    make(chan time.Time),
		path:    make(chan time.Time),
	}
	opts.Clock = h.clock
	opts.StatusTicks = h.status
	opts.CodeTicks = h.code
	opts.PathTicks = h.path

	d, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)
	h.dash = d
	return h
}

func (h *harness) waitAccepted(t *testing.T, name string, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range h.dash.FeedStats() {
			if s.Name == name {
				return s.Accepted >= n
			}
		}
		return false
	}, waitFor, time.Millisecond, "feed %s never reached %d accepted", name, n)
}

func (h *harness) waitIssuedSettled(t *testing.T, name string, issued uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range h.dash.FeedStats() {
			if s.Name == name {
				settled := s.Accepted + s.NetworkErrors + s.StatusErrors + s.DecodeErrors + s.Superseded
				return s.Issued >= issued && settled >= issued
			}
		}
		return false
	}, waitFor, time.Millisecond, "feed %s never settled %d fetches", name, issued)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	bad := "ftp://example.com"
	cfg := config.EmptyDashboardConfig()
	cfg.BackendURL = &bad
	_, err := New(Options{Config: cfg})
	assert.Error(t, err)
}

func TestBadge_PendingBeforeAnyStatus(t *testing.T) {
	d, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, BadgePending, d.Badge())

	v := d.View()
	assert.False(t, v.HasStatus)
	assert.False(t, v.HasCode)
	assert.False(t, v.HasPath)
	assert.Equal(t, "", v.Message)
}

func TestStatusBadgeFollowsValidity(t *testing.T) {
	h := newHarness(t, Options{})
	h.waitAccepted(t, history.FeedStatus, 1)

	v := h.dash.View()
	assert.Equal(t, BadgeValid, v.Badge)
	assert.Equal(t, "OK", v.Message)

	plan := basePlan()
	plan.Status = feed.StatusSnapshot{Valid: false, Message: "Bad move"}
	h.backend.SetPlan(plan)
	h.status <- time.Now()
	h.waitAccepted(t, history.FeedStatus, 2)

	v = h.dash.View()
	assert.Equal(t, BadgePending, v.Badge)
	assert.Equal(t, "Bad move", v.Message)
}

func TestFailedCodeFetchKeepsPanel(t *testing.T) {
	h := newHarness(t, Options{})
	h.waitAccepted(t, history.FeedCode, 1)
	before := h.dash.View()
	require.Equal(t, "PROGRAM a\nEND a", before.Karel)

	h.backend.SetFaults(synthetic.FeedCode, synthetic.Faults{ErrorRate: 1})
	plan := basePlan()
	plan.Code = feed.CodeSnapshot{Karel: "PROGRAM b\nEND b", KRL: "DEF b()\nEND"}
	h.backend.SetPlan(plan)
	h.code <- time.Now()
	h.waitIssuedSettled(t, history.FeedCode, 2)

	after := h.dash.View()
	assert.Equal(t, before.Karel, after.Karel)
	assert.Equal(t, before.KRL, after.KRL)
	assert.True(t, after.HasCode)

	// The next tick fetches again and picks up the new programs.
	h.backend.SetFaults(synthetic.FeedCode, synthetic.Faults{})
	h.code <- time.Now()
	h.waitAccepted(t, history.FeedCode, 2)
	assert.Equal(t, "PROGRAM b\nEND b", h.dash.View().Karel)

	codeStats := h.dash.FeedStats()[1]
	assert.Equal(t, uint64(1), codeStats.StatusErrors)
	assert.Equal(t, uint64(3), codeStats.Issued)
}

func TestMalformedStatusKeepsLastSnapshot(t *testing.T) {
	h := newHarness(t, Options{})
	h.waitAccepted(t, history.FeedStatus, 1)

	h.backend.SetFaults(synthetic.FeedStatus, synthetic.Faults{CorruptRate: 1})
	h.status <- time.Now()
	h.waitIssuedSettled(t, history.FeedStatus, 2)

	assert.Equal(t, BadgeValid, h.dash.Badge())
	assert.Equal(t, uint64(1), h.dash.FeedStats()[0].DecodeErrors)
}

func TestPathFeedDrivesViewer(t *testing.T) {
	h := newHarness(t, Options{})
	h.waitAccepted(t, history.FeedPath, 1)

	want := scene.Census{Lines: 1, Spheres: 3, Cubes: 2, Total: 6}
	require.Eventually(t, func() bool {
		return h.dash.Viewer().Stats().Path == want
	}, waitFor, time.Millisecond)

	// Re-fetching the same path replaces, never accumulates.
	h.path <- time.Now()
	h.waitAccepted(t, history.FeedPath, 2)
	require.Eventually(t, func() bool {
		return h.dash.Viewer().Stats().PathUpdates >= 2
	}, waitFor, time.Millisecond)
	assert.Equal(t, want, h.dash.Viewer().Stats().Path)
	assert.Equal(t, 6, h.dash.Viewer().Scene().CountTag(scene.TagPath).Total)

	// A single point clears the path objects.
	plan := basePlan()
	plan.Path = &feed.Path{Points: []feed.Waypoint{{X: 1, Y: 2, Z: 3}}}
	h.backend.SetPlan(plan)
	h.path <- time.Now()
	h.waitAccepted(t, history.FeedPath, 3)
	require.Eventually(t, func() bool {
		return h.dash.Viewer().Stats().Path == scene.Census{}
	}, waitFor, time.Millisecond)

	v := h.dash.View()
	assert.True(t, v.HasPath)
	assert.Equal(t, 1, v.Path.Waypoints)
	assert.False(t, v.Path.Renderable)
}

func TestStopHaltsEverything(t *testing.T) {
	h := newHarness(t, Options{})
	h.waitAccepted(t, history.FeedPath, 1)

	h.dash.Stop()
	h.dash.Stop()

	st := h.dash.Viewer().Stats()
	assert.False(t, st.Mounted)
	assert.Equal(t, scene.MemoryInfo{}, st.Memory)
	assert.Equal(t, 0, h.dash.Element().Info().Observers)
	assert.Empty(t, h.dash.Element().Info().Surfaces)

	assert.ErrorIs(t, h.dash.Start(context.Background()), ErrStarted)
}

func TestSnapshotsAreRecorded(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	rec := history.NewRecorder(store, 100)
	rec.Start()
	t.Cleanup(rec.Stop)

	h := newHarness(t, Options{Recorder: rec, Store: store})
	h.waitAccepted(t, history.FeedStatus, 1)
	h.waitAccepted(t, history.FeedCode, 1)
	h.waitAccepted(t, history.FeedPath, 1)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		for _, f := range []string{history.FeedStatus, history.FeedCode, history.FeedPath} {
			if n, err := store.Count(ctx, f); err != nil || n != 1 {
				return false
			}
		}
		return true
	}, waitFor, 5*time.Millisecond)

	sum, err := store.LatestPathSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Waypoints)
	assert.Equal(t, 1, sum.GraspClose)
	assert.Equal(t, 1, sum.GraspOpen)
}

func TestStartRestoresStoredSnapshots(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for _, snap := range []history.Snapshot{
		{Feed: history.FeedStatus, Version: 4, Payload: testutil.StatusBody(false, "Collision at waypoint 2")},
		{Feed: history.FeedCode, Version: 4, Payload: testutil.CodeBody("PROGRAM old\nEND old", "DEF old()\nEND")},
		{Feed: history.FeedPath, Version: 9, Payload: testutil.PathBody(testutil.ThreePointPath())},
	} {
		_, err := store.Insert(ctx, snap)
		require.NoError(t, err)
	}
	rec := history.NewRecorder(store, 100)
	rec.Start()
	t.Cleanup(rec.Stop)

	feeds := []string{history.FeedStatus, history.FeedCode, history.FeedPath}
	h := startHarness(t, Options{Recorder: rec, Store: store}, func(b *synthetic.Backend) {
		for _, f := range feeds {
			b.SetFaults(f, synthetic.Faults{ErrorRate: 1})
		}
	})
	for _, f := range feeds {
		h.waitIssuedSettled(t, f, 1)
	}

	// The backend is down, so everything shown comes from the store.
	v := h.dash.View()
	assert.True(t, v.HasStatus)
	assert.Equal(t, BadgePending, v.Badge)
	assert.Equal(t, "Collision at waypoint 2", v.Message)
	assert.True(t, v.HasCode)
	assert.Equal(t, "PROGRAM old\nEND old", v.Karel)
	assert.True(t, v.HasPath)
	assert.Equal(t, 3, v.Path.Waypoints)

	want := scene.Census{Lines: 1, Spheres: 3, Cubes: 2, Total: 6}
	require.Eventually(t, func() bool {
		return h.dash.Viewer().Stats().Path == want
	}, waitFor, time.Millisecond)

	// The first fresh path continues the stored version sequence.
	h.backend.SetFaults(history.FeedPath, synthetic.Faults{})
	h.path <- time.Now()
	h.waitAccepted(t, history.FeedPath, 1)
	require.Eventually(t, func() bool {
		latest, err := store.Latest(ctx, history.FeedPath)
		return err == nil && latest.Version == 10
	}, waitFor, 5*time.Millisecond)
}

func TestStartSkipsUndecodableStoredSnapshot(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.Insert(context.Background(), history.Snapshot{
		Feed: history.FeedPath, Version: 1, Payload: `{"Points":[{"X":0}]}`,
	})
	require.NoError(t, err)

	h := startHarness(t, Options{Store: store}, func(b *synthetic.Backend) {
		b.SetFaults(history.FeedPath, synthetic.Faults{ErrorRate: 1})
	})
	h.waitIssuedSettled(t, history.FeedPath, 1)
	assert.False(t, h.dash.View().HasPath)
	assert.Nil(t, h.dash.Path())
}
