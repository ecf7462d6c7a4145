package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/pathview/internal/poll"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/pathview.defaults.json"

// DashboardConfig is the root configuration of the dashboard process.
// Every field is optional; the Get* methods supply defaults for fields that
// are absent, so partial files are safe.
type DashboardConfig struct {
	// Backend feeds
	BackendURL     *string `json:"backend_url,omitempty"`
	StatusInterval *string `json:"status_interval,omitempty"` // duration string like "3s"
	CodeInterval   *string `json:"code_interval,omitempty"`
	PathInterval   *string `json:"path_interval,omitempty"`
	FetchTimeout   *string `json:"fetch_timeout,omitempty"` // "0s" disables
	OverlapPolicy  *string `json:"overlap_policy,omitempty"`

	// Served surfaces
	Listen     *string `json:"listen,omitempty"`
	GRPCListen *string `json:"grpc_listen,omitempty"`

	// History
	DBPath         *string `json:"db_path,omitempty"`
	HistoryEnabled *bool   `json:"history_enabled,omitempty"`
	HistoryRetain  *int    `json:"history_retain,omitempty"`

	// Viewer
	DevicePixelRatio *float64 `json:"device_pixel_ratio,omitempty"`
	MaxPixelRatio    *float64 `json:"max_pixel_ratio,omitempty"`
	FrameRate        *int     `json:"frame_rate,omitempty"`
	ViewWidth        *int     `json:"view_width,omitempty"`
	ViewHeight       *int     `json:"view_height,omitempty"`

	Debug *bool `json:"debug,omitempty"`
}

func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// EmptyDashboardConfig returns a config with every field unset.
func EmptyDashboardConfig() *DashboardConfig {
	return &DashboardConfig{}
}

// DefaultDashboardConfig returns a config with every field set to its default.
func DefaultDashboardConfig() *DashboardConfig {
	return &DashboardConfig{
		BackendURL:       ptrString("http://localhost:8000"),
		StatusInterval:   ptrString("3s"),
		CodeInterval:     ptrString("5s"),
		PathInterval:     ptrString("5s"),
		FetchTimeout:     ptrString("0s"),
		OverlapPolicy:    ptrString(poll.LatestIssued.String()),
		Listen:           ptrString(":8080"),
		GRPCListen:       ptrString("localhost:50061"),
		DBPath:           ptrString("pathview.db"),
		HistoryEnabled:   ptrBool(true),
		HistoryRetain:    ptrInt(10000),
		DevicePixelRatio: ptrFloat64(1),
		MaxPixelRatio:    ptrFloat64(2),
		FrameRate:        ptrInt(60),
		ViewWidth:        ptrInt(960),
		ViewHeight:       ptrInt(540),
		Debug:            ptrBool(false),
	}
}

// LoadDashboardConfig loads a DashboardConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadDashboardConfig(path string) (*DashboardConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDashboardConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *DashboardConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadDashboardConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set values are usable.
func (c *DashboardConfig) Validate() error {
	if c.BackendURL != nil {
		u, err := url.Parse(*c.BackendURL)
		if err != nil {
			return fmt.Errorf("invalid backend_url '%s': %w", *c.BackendURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("backend_url must be http or https, got %q", *c.BackendURL)
		}
	}

	intervals := []struct {
		name string
		v    *string
	}{
		{"status_interval", c.StatusInterval},
		{"code_interval", c.CodeInterval},
		{"path_interval", c.PathInterval},
	}
	for _, iv := range intervals {
		if iv.v == nil || *iv.v == "" {
			continue
		}
		d, err := time.ParseDuration(*iv.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", iv.name, *iv.v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", iv.name, *iv.v)
		}
	}

	if c.FetchTimeout != nil && *c.FetchTimeout != "" {
		d, err := time.ParseDuration(*c.FetchTimeout)
		if err != nil {
			return fmt.Errorf("invalid fetch_timeout '%s': %w", *c.FetchTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("fetch_timeout must be non-negative, got %s", *c.FetchTimeout)
		}
	}

	if c.OverlapPolicy != nil {
		if _, err := poll.ParseOverlapPolicy(*c.OverlapPolicy); err != nil {
			return err
		}
	}

	if c.DevicePixelRatio != nil && *c.DevicePixelRatio <= 0 {
		return fmt.Errorf("device_pixel_ratio must be positive, got %f", *c.DevicePixelRatio)
	}
	if c.MaxPixelRatio != nil && *c.MaxPixelRatio <= 0 {
		return fmt.Errorf("max_pixel_ratio must be positive, got %f", *c.MaxPixelRatio)
	}
	if c.FrameRate != nil && (*c.FrameRate < 1 || *c.FrameRate > 240) {
		return fmt.Errorf("frame_rate must be between 1 and 240, got %d", *c.FrameRate)
	}
	if c.HistoryRetain != nil && *c.HistoryRetain < 0 {
		return fmt.Errorf("history_retain must be non-negative, got %d", *c.HistoryRetain)
	}
	if c.ViewWidth != nil && *c.ViewWidth <= 0 {
		return fmt.Errorf("view_width must be positive, got %d", *c.ViewWidth)
	}
	if c.ViewHeight != nil && *c.ViewHeight <= 0 {
		return fmt.Errorf("view_height must be positive, got %d", *c.ViewHeight)
	}

	return nil
}

func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetBackendURL returns the backend base URL or the default.
func (c *DashboardConfig) GetBackendURL() string {
	if c.BackendURL == nil {
		return "http://localhost:8000"
	}
	return *c.BackendURL
}

// GetStatusInterval returns the status poll interval or the default (3s).
func (c *DashboardConfig) GetStatusInterval() time.Duration {
	return duration(c.StatusInterval, 3*time.Second)
}

// GetCodeInterval returns the code poll interval or the default (5s).
func (c *DashboardConfig) GetCodeInterval() time.Duration {
	return duration(c.CodeInterval, 5*time.Second)
}

// GetPathInterval returns the path poll interval or the default (5s).
func (c *DashboardConfig) GetPathInterval() time.Duration {
	return duration(c.PathInterval, 5*time.Second)
}

// GetFetchTimeout returns the per-fetch timeout; zero means none.
func (c *DashboardConfig) GetFetchTimeout() time.Duration {
	return duration(c.FetchTimeout, 0)
}

// GetOverlapPolicy returns the parsed overlap policy or LatestIssued.
func (c *DashboardConfig) GetOverlapPolicy() poll.OverlapPolicy {
	if c.OverlapPolicy == nil {
		return poll.LatestIssued
	}
	p, err := poll.ParseOverlapPolicy(*c.OverlapPolicy)
	if err != nil {
		return poll.LatestIssued
	}
	return p
}

// GetListen returns the HTTP listen address or the default.
func (c *DashboardConfig) GetListen() string {
	if c.Listen == nil {
		return ":8080"
	}
	return *c.Listen
}

// GetGRPCListen returns the gRPC listen address or the default. An empty
// string disables the stream service.
func (c *DashboardConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return "localhost:50061"
	}
	return *c.GRPCListen
}

// GetDBPath returns the history database path or the default.
func (c *DashboardConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "pathview.db"
	}
	return *c.DBPath
}

// GetHistoryEnabled returns whether snapshots are recorded.
func (c *DashboardConfig) GetHistoryEnabled() bool {
	if c.HistoryEnabled == nil {
		return true
	}
	return *c.HistoryEnabled
}

// GetHistoryRetain returns how many rows per feed are kept; zero keeps all.
func (c *DashboardConfig) GetHistoryRetain() int {
	if c.HistoryRetain == nil {
		return 10000
	}
	return *c.HistoryRetain
}

// GetDevicePixelRatio returns the device pixel ratio or 1.
func (c *DashboardConfig) GetDevicePixelRatio() float64 {
	if c.DevicePixelRatio == nil {
		return 1
	}
	return *c.DevicePixelRatio
}

// GetMaxPixelRatio returns the pixel ratio cap or 2.
func (c *DashboardConfig) GetMaxPixelRatio() float64 {
	if c.MaxPixelRatio == nil {
		return 2
	}
	return *c.MaxPixelRatio
}

// GetFrameRate returns the render loop rate or 60.
func (c *DashboardConfig) GetFrameRate() int {
	if c.FrameRate == nil {
		return 60
	}
	return *c.FrameRate
}

// GetViewSize returns the initial viewer container size.
func (c *DashboardConfig) GetViewSize() (width, height int) {
	width, height = 960, 540
	if c.ViewWidth != nil {
		width = *c.ViewWidth
	}
	if c.ViewHeight != nil {
		height = *c.ViewHeight
	}
	return width, height
}

// GetDebug returns whether debug logging is enabled.
func (c *DashboardConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}
