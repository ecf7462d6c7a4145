package dashboard

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/pathview/internal/history"
	"github.com/banshee-data/pathview/internal/scene"
	"github.com/banshee-data/pathview/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, bytes.NewReader(body)))
	return rec
}

func readyHarness(t *testing.T) (*harness, http.Handler) {
	t.Helper()
	h := newHarness(t, Options{})
	h.waitAccepted(t, history.FeedStatus, 1)
	h.waitAccepted(t, history.FeedCode, 1)
	h.waitAccepted(t, history.FeedPath, 1)
	handler, err := h.dash.Handler()
	require.NoError(t, err)
	return h, handler
}

func TestHandler_Health(t *testing.T) {
	_, handler := readyHarness(t)
	rec := serve(t, handler, http.MethodGet, "/health", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, `{"status":"ok","version":"dev","git_sha":"unknown"}`, rec.Body.String())
}

func TestHandler_Dashboard(t *testing.T) {
	_, handler := readyHarness(t)
	rec := serve(t, handler, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var v View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, BadgeValid, v.Badge)
	assert.Equal(t, "OK", v.Message)
	assert.Equal(t, "DEF a()\nEND", v.KRL)
	assert.Equal(t, 3, v.Path.Waypoints)
	assert.Len(t, v.Feeds, 3)

	rec = serve(t, handler, http.MethodPost, "/api/dashboard", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_Index(t *testing.T) {
	_, handler := readyHarness(t)
	rec := serve(t, handler, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `<span class="badge Valid">Valid</span>`)
	assert.Contains(t, body, "PROGRAM a\nEND a")
	assert.Contains(t, body, "3 waypoints")
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))

	rec = serve(t, handler, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Scene(t *testing.T) {
	h, handler := readyHarness(t)

	rec := serve(t, handler, http.MethodGet, "/api/scene", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Eventually(t, func() bool {
		return h.dash.Viewer().Stats().Path.Total == 6
	}, waitFor, time.Millisecond)
	// The second tick is only taken once the first frame is rendered.
	require.True(t, h.clock.Tick())
	require.True(t, h.clock.Tick())

	rec = serve(t, handler, http.MethodGet, "/api/scene", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var f scene.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.NotZero(t, f.Number)
	assert.Equal(t, 960, f.Width)
	assert.Equal(t, 540, f.Height)
	assert.NotZero(t, f.Count(scene.TagHelper))
}

func TestHandler_ViewResize(t *testing.T) {
	h, handler := readyHarness(t)

	rec := serve(t, handler, http.MethodGet, "/api/view", nil)
	assert.JSONEq(t, `{"width":960,"height":540}`, rec.Body.String())

	rec = serve(t, handler, http.MethodPost, "/api/view", []byte(`{"width":400,"height":200}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		st := h.dash.Viewer().Stats()
		return st.Width == 400 && st.Height == 200
	}, waitFor, time.Millisecond)
	assert.Equal(t, 2.0, h.dash.Viewer().Stats().Aspect)

	for _, body := range []string{`{"width":0,"height":200}`, `not json`} {
		rec = serve(t, handler, http.MethodPost, "/api/view", []byte(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	rec = serve(t, handler, http.MethodDelete, "/api/view", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_Charts(t *testing.T) {
	_, handler := readyHarness(t)

	rec := serve(t, handler, http.MethodGet, "/chart/path", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "waypoints=3")

	rec = serve(t, handler, http.MethodGet, "/chart/path.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(rec.Body)
	assert.NoError(t, err)

	rec = serve(t, handler, http.MethodGet, "/chart/frame", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Viewer Frame")
}

func TestHandler_DebugRoutesRegistered(t *testing.T) {
	_, handler := readyHarness(t)
	for _, path := range []string{"/debug/", "/debug/feeds"} {
		rec := serve(t, handler, http.MethodGet, path, nil)
		assert.NotEqual(t, http.StatusNotFound, rec.Code, path)
	}
}
