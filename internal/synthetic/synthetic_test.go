package synthetic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/monitoring"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestGenerator_PickAndPlace(t *testing.T) {
	g := NewGenerator(42)
	p := g.Next()

	want := 3 + g.TravelSteps + 3
	if p.Path.Len() != want {
		t.Fatalf("expected %d waypoints, got %d", want, p.Path.Len())
	}

	s := p.Path.Summary()
	if s.GraspClose != 1 || s.GraspOpen != 1 {
		t.Errorf("expected one close and one open, got %d/%d", s.GraspClose, s.GraspOpen)
	}
	assert.True(t, *p.Path.Points[1].Grasp)
	assert.False(t, *p.Path.Points[p.Path.Len()-2].Grasp)
	for _, wp := range p.Path.Points {
		assert.GreaterOrEqual(t, wp.Z, g.TableHeight)
	}
	assert.Equal(t, uint64(1), p.Number)
	assert.True(t, p.Status.Valid)
	assert.Equal(t, "OK", p.Status.Message)
}

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(7).Next()
	b := NewGenerator(7).Next()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different plans (-a +b):\n%s", diff)
	}
}

func TestGenerator_InvalidEvery(t *testing.T) {
	g := NewGenerator(1)
	g.InvalidEvery = 3
	var valid []bool
	for i := 0; i < 6; i++ {
		valid = append(valid, g.Next().Status.Valid)
	}
	assert.Equal(t, []bool{true, true, false, true, true, false}, valid)
}

func TestPrograms(t *testing.T) {
	path := &feed.Path{Points: []feed.Waypoint{
		{X: 0.1, Y: 0.2, Z: 0.3},
		{X: 0.1, Y: 0.2, Z: 0, Grasp: feed.Bool(true)},
	}}

	karel := KarelProgram(3, path)
	assert.True(t, strings.HasPrefix(karel, "PROGRAM pick_place_3\n"))
	assert.Contains(t, karel, "target.x = 100.0")
	assert.Contains(t, karel, "DOUT[1] = ON")
	assert.Equal(t, 2, strings.Count(karel, "MOVE TO target"))

	krl := KRLProgram(3, path)
	assert.Contains(t, krl, "PTP {X 100.0, Y 200.0, Z 300.0, A 0, B 90, C 0}")
	assert.Contains(t, krl, "LIN {X 100.0, Y 200.0, Z 0.0")
	assert.Contains(t, krl, "$OUT[1] = TRUE")
	assert.True(t, strings.HasSuffix(krl, "END\n"))
}

func get(t *testing.T, h http.Handler, path string) (int, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, body
}

func TestBackend_ServesDecodableFeeds(t *testing.T) {
	b := NewBackend(NewGenerator(5))
	h := b.Handler()
	plan := b.Current()

	code, body := get(t, h, "/api/latest/status")
	require.Equal(t, http.StatusOK, code)
	status, err := feed.DecodeStatus(body)
	require.NoError(t, err)
	assert.Equal(t, plan.Status, status)

	code, body = get(t, h, "/api/latest/code")
	require.Equal(t, http.StatusOK, code)
	programs, err := feed.DecodeCode(body)
	require.NoError(t, err)
	assert.Equal(t, plan.Code, programs)

	code, body = get(t, h, "/api/latest/path")
	require.Equal(t, http.StatusOK, code)
	path, err := feed.DecodePath(body)
	require.NoError(t, err)
	if diff := cmp.Diff(plan.Path, path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, string(body), `"grasp":null`)

	assert.Equal(t, uint64(1), b.Stats()[FeedPath].Served)
}

func TestBackend_MethodNotAllowed(t *testing.T) {
	b := NewBackend(NewGenerator(5))
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/latest/path", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBackend_FaultInjection(t *testing.T) {
	b := NewBackend(NewGenerator(5))
	b.SetFaults(FeedCode, Faults{ErrorRate: 1})
	b.SetFaults(FeedStatus, Faults{CorruptRate: 1})
	h := b.Handler()

	code, _ := get(t, h, "/api/latest/code")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body := get(t, h, "/api/latest/status")
	assert.Equal(t, http.StatusOK, code)
	_, err := feed.DecodeStatus(body)
	assert.True(t, errors.Is(err, feed.ErrMalformed), "expected ErrMalformed, got %v", err)

	// Unaffected feed still serves normally.
	code, _ = get(t, h, "/api/latest/path")
	assert.Equal(t, http.StatusOK, code)

	stats := b.Stats()
	assert.Equal(t, Stats{Served: 1, Errors: 1}, stats[FeedCode])
	assert.Equal(t, Stats{Served: 1, Corrupted: 1}, stats[FeedStatus])
	assert.Equal(t, Stats{Served: 1}, stats[FeedPath])
}

func TestBackend_RunAdvances(t *testing.T) {
	b := NewBackend(NewGenerator(5))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return b.Current().Number >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBackend_SetPlan(t *testing.T) {
	b := NewBackend(NewGenerator(5))
	b.SetPlan(Plan{Path: &feed.Path{}, Status: feed.StatusSnapshot{Valid: false, Message: "Bad move"}})

	_, body := get(t, b.Handler(), "/api/latest/path")
	assert.JSONEq(t, `{"path":{"points":[]}}`, string(body))
	_, body = get(t, b.Handler(), "/api/latest/status")
	assert.JSONEq(t, `{"valid":false,"message":"Bad move"}`, string(body))
}
