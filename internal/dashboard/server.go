package dashboard

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"net/http"

	"github.com/banshee-data/pathview/internal/charts"
	"github.com/banshee-data/pathview/internal/httputil"
	"github.com/banshee-data/pathview/internal/monitoring"
	"github.com/banshee-data/pathview/internal/version"
	"tailscale.com/tsweb"
)

//go:embed templates/*
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html.tmpl"))

// ServeMux returns the dashboard routes. Debug routes are added separately
// by AttachAdminRoutes.
func (d *Dashboard) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handleIndex)
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/api/dashboard", d.handleDashboard)
	mux.HandleFunc("/api/scene", d.handleScene)
	mux.HandleFunc("/api/view", d.handleView)
	mux.HandleFunc("/chart/path", d.handlePathChart)
	mux.HandleFunc("/chart/path.png", d.handlePathPNG)
	mux.HandleFunc("/chart/frame", d.handleFrameChart)
	return mux
}

// AttachAdminRoutes mounts the tsweb debugger with live feed, viewer and
// stream counters, plus the history console when a store is configured.
func (d *Dashboard) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Feeds", func() any { return d.FeedStats() })
	debug.KVFunc("Viewer", func() any { return d.viewer.Stats() })
	debug.KVFunc("Viewer container", func() any { return d.element.Info() })
	if d.publisher != nil {
		debug.KVFunc("Scene stream", func() any { return d.publisher.Stats() })
	}
	if d.recorder != nil {
		debug.KVFunc("History recorder", func() any { return d.recorder.Stats() })
	}
	debug.Handle("feeds", "Poll counters per feed (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, d.FeedStats())
	}))
	if d.store != nil {
		return d.store.AttachAdminRoutes(mux)
	}
	return nil
}

// Handler returns every route wrapped in the access logger.
func (d *Dashboard) Handler() (http.Handler, error) {
	mux := d.ServeMux()
	if err := d.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	return httputil.AccessLog(monitoring.Component("HTTP").Printf, mux), nil
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	buf := bytes.NewBuffer(nil)
	if err := indexTemplate.Execute(buf, d.View()); err != nil {
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.Copy(w, buf)
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"git_sha": version.GitSHA,
	})
}

func (d *Dashboard) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, d.View())
}

func (d *Dashboard) handleScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	f := d.Frame()
	if f == nil {
		httputil.NotFound(w, "no frame rendered")
		return
	}
	httputil.WriteJSONOK(w, f)
}

type viewSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// handleView reports the container size on GET and resizes it on POST,
// standing in for the browser window's resize events.
func (d *Dashboard) handleView(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		width, height := d.element.Size()
		httputil.WriteJSONOK(w, viewSize{Width: width, Height: height})
	case http.MethodPost:
		var req viewSize
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Width <= 0 || req.Height <= 0 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "width and height must be positive")
			return
		}
		d.element.Resize(req.Width, req.Height)
		httputil.WriteJSONOK(w, req)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (d *Dashboard) handlePathChart(w http.ResponseWriter, r *http.Request) {
	buf := bytes.NewBuffer(nil)
	if err := charts.RenderPathPage(buf, d.Path()); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteBody(w, "text/html; charset=utf-8", buf.Bytes())
}

func (d *Dashboard) handlePathPNG(w http.ResponseWriter, r *http.Request) {
	buf := bytes.NewBuffer(nil)
	if err := charts.RenderPathPNG(buf, d.Path(), charts.PNGWidth, charts.PNGHeight); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteBody(w, "image/png", buf.Bytes())
}

func (d *Dashboard) handleFrameChart(w http.ResponseWriter, r *http.Request) {
	buf := bytes.NewBuffer(nil)
	if err := charts.RenderFramePage(buf, d.Frame()); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteBody(w, "text/html; charset=utf-8", buf.Bytes())
}
