package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for capture, arena masking
// and shot detection. Every field is optional; the Get* methods supply the
// built-in default when a field is absent.
type TuningConfig struct {
	// Sector grid shared by arena masks and detections
	SectorRows    *int `json:"sector_rows,omitempty"`
	SectorColumns *int `json:"sector_columns,omitempty"`

	// Arena mask matching
	ArenaDelayMs       *int     `json:"arena_delay_ms,omitempty"`
	ArenaFPS           *int     `json:"arena_fps,omitempty"`
	MaskQueueSlack     *int     `json:"mask_queue_slack,omitempty"`
	MaskPixelThreshold *int     `json:"mask_pixel_threshold,omitempty"`
	MaskActiveFraction *float64 `json:"mask_active_fraction,omitempty"`
	MaskReferenceAlpha *float64 `json:"mask_reference_alpha,omitempty"`
	ArenaBaselineMasks *int     `json:"arena_baseline_masks,omitempty"`
	ArenaWorkWidth     *int     `json:"arena_work_width,omitempty"`

	// Frame source and capture loop
	ConnectionTimeoutMs *int    `json:"connection_timeout_ms,omitempty"`
	PollInterval        *string `json:"poll_interval,omitempty"`    // duration string like "2ms"
	MaxPollBackoff      *string `json:"max_poll_backoff,omitempty"` // duration string like "20ms"
	AsyncClose          *bool   `json:"async_close,omitempty"`

	// FPS estimation
	FPSRefreshCap *int     `json:"fps_refresh_cap,omitempty"`
	FPSWindow     *int     `json:"fps_window,omitempty"`
	DefaultFPS    *float64 `json:"default_fps,omitempty"`

	// Calibration and flash detection
	CalibrationTimeout *string  `json:"calibration_timeout,omitempty"` // duration string like "10s"
	FlashThreshold     *int     `json:"flash_threshold,omitempty"`
	FlashMinPixels     *int     `json:"flash_min_pixels,omitempty"`
	BaselineFrames     *int     `json:"baseline_frames,omitempty"`
	BaselineAlpha      *float64 `json:"baseline_alpha,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated with
// its built-in default. AsyncClose stays nil so the platform default applies.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		SectorRows:          ptrInt(3),
		SectorColumns:       ptrInt(3),
		ArenaDelayMs:        ptrInt(200),
		ArenaFPS:            ptrInt(30),
		MaskQueueSlack:      ptrInt(10),
		MaskPixelThreshold:  ptrInt(25),
		MaskActiveFraction:  ptrFloat64(0.002),
		MaskReferenceAlpha:  ptrFloat64(0.05),
		ArenaBaselineMasks:  ptrInt(10),
		ArenaWorkWidth:      ptrInt(320),
		ConnectionTimeoutMs: ptrInt(6000),
		PollInterval:        ptrString("2ms"),
		MaxPollBackoff:      ptrString("20ms"),
		FPSRefreshCap:       ptrInt(5),
		FPSWindow:           ptrInt(10),
		DefaultFPS:          ptrFloat64(0),
		CalibrationTimeout:  ptrString("10s"),
		FlashThreshold:      ptrInt(40),
		FlashMinPixels:      ptrInt(4),
		BaselineFrames:      ptrInt(10),
		BaselineAlpha:       ptrFloat64(0.1),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/camera/ipcam/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	positive := []struct {
		name string
		v    *int
	}{
		{"sector_rows", c.SectorRows},
		{"sector_columns", c.SectorColumns},
		{"arena_fps", c.ArenaFPS},
		{"connection_timeout_ms", c.ConnectionTimeoutMs},
		{"fps_refresh_cap", c.FPSRefreshCap},
		{"arena_work_width", c.ArenaWorkWidth},
		{"flash_min_pixels", c.FlashMinPixels},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, *p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *int
	}{
		{"arena_delay_ms", c.ArenaDelayMs},
		{"mask_queue_slack", c.MaskQueueSlack},
		{"arena_baseline_masks", c.ArenaBaselineMasks},
		{"baseline_frames", c.BaselineFrames},
	}
	for _, p := range nonNegative {
		if p.v != nil && *p.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", p.name, *p.v)
		}
	}

	if c.FPSWindow != nil && *c.FPSWindow < 2 {
		return fmt.Errorf("fps_window must be at least 2, got %d", *c.FPSWindow)
	}
	if c.DefaultFPS != nil && *c.DefaultFPS < 0 {
		return fmt.Errorf("default_fps must be non-negative, got %f", *c.DefaultFPS)
	}

	luma := []struct {
		name string
		v    *int
	}{
		{"mask_pixel_threshold", c.MaskPixelThreshold},
		{"flash_threshold", c.FlashThreshold},
	}
	for _, p := range luma {
		if p.v != nil && (*p.v < 1 || *p.v > 255) {
			return fmt.Errorf("%s must be between 1 and 255, got %d", p.name, *p.v)
		}
	}

	fractions := []struct {
		name string
		v    *float64
	}{
		{"mask_active_fraction", c.MaskActiveFraction},
		{"mask_reference_alpha", c.MaskReferenceAlpha},
		{"baseline_alpha", c.BaselineAlpha},
	}
	for _, f := range fractions {
		if f.v != nil && (*f.v < 0 || *f.v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", f.name, *f.v)
		}
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"poll_interval", c.PollInterval},
		{"max_poll_backoff", c.MaxPollBackoff},
		{"calibration_timeout", c.CalibrationTimeout},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		if _, err := time.ParseDuration(*d.v); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
	}

	if c.GetPollInterval() > c.GetMaxPollBackoff() {
		return fmt.Errorf("poll_interval %v exceeds max_poll_backoff %v", c.GetPollInterval(), c.GetMaxPollBackoff())
	}

	return nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetSectorRows returns the number of sector grid rows.
func (c *TuningConfig) GetSectorRows() int { return intOr(c.SectorRows, 3) }

// GetSectorColumns returns the number of sector grid columns.
func (c *TuningConfig) GetSectorColumns() int { return intOr(c.SectorColumns, 3) }

// GetArenaDelay returns the arena mask match window.
func (c *TuningConfig) GetArenaDelay() time.Duration {
	return time.Duration(intOr(c.ArenaDelayMs, 200)) * time.Millisecond
}

// GetArenaFPS returns the expected arena feed rate, used to size the mask queue.
func (c *TuningConfig) GetArenaFPS() int { return intOr(c.ArenaFPS, 30) }

// GetMaskQueueSlack returns the extra mask slots kept beyond the delay window.
func (c *TuningConfig) GetMaskQueueSlack() int { return intOr(c.MaskQueueSlack, 10) }

// GetMaskPixelThreshold returns the per-pixel luma change that counts as changed.
func (c *TuningConfig) GetMaskPixelThreshold() int { return intOr(c.MaskPixelThreshold, 25) }

// GetMaskActiveFraction returns the changed-pixel fraction above which a sector is active.
func (c *TuningConfig) GetMaskActiveFraction() float64 {
	return floatOr(c.MaskActiveFraction, 0.002)
}

// GetMaskReferenceAlpha returns the quiescent reference learning rate.
func (c *TuningConfig) GetMaskReferenceAlpha() float64 {
	return floatOr(c.MaskReferenceAlpha, 0.05)
}

// GetArenaBaselineMasks returns how many masks establish the arena baseline.
func (c *TuningConfig) GetArenaBaselineMasks() int { return intOr(c.ArenaBaselineMasks, 10) }

// GetArenaWorkWidth returns the width arena frames are downscaled to before masking.
func (c *TuningConfig) GetArenaWorkWidth() int { return intOr(c.ArenaWorkWidth, 320) }

// GetConnectionTimeout returns the network source registration deadline.
func (c *TuningConfig) GetConnectionTimeout() time.Duration {
	return time.Duration(intOr(c.ConnectionTimeoutMs, 6000)) * time.Millisecond
}

// GetPollInterval returns the initial wait after a "no new frame" poll.
func (c *TuningConfig) GetPollInterval() time.Duration {
	return durationOr(c.PollInterval, 2*time.Millisecond)
}

// GetMaxPollBackoff returns the cap on the frame poll backoff.
func (c *TuningConfig) GetMaxPollBackoff() time.Duration {
	return durationOr(c.MaxPollBackoff, 20*time.Millisecond)
}

// GetAsyncClose reports whether sources should tear down on a separate
// goroutine. Unset means only on darwin, where native capture close blocks.
func (c *TuningConfig) GetAsyncClose() bool {
	if c.AsyncClose == nil {
		return runtime.GOOS == "darwin"
	}
	return *c.AsyncClose
}

// GetFPSRefreshCap returns the cap on the FPS refresh divisor.
func (c *TuningConfig) GetFPSRefreshCap() int { return intOr(c.FPSRefreshCap, 5) }

// GetFPSWindow returns the FPS sample window length.
func (c *TuningConfig) GetFPSWindow() int { return intOr(c.FPSWindow, 10) }

// GetDefaultFPS returns the FPS reported before enough samples exist.
func (c *TuningConfig) GetDefaultFPS() float64 { return floatOr(c.DefaultFPS, 0) }

// GetCalibrationTimeout returns how long CALIBRATING may last before it is
// forced to complete.
func (c *TuningConfig) GetCalibrationTimeout() time.Duration {
	return durationOr(c.CalibrationTimeout, 10*time.Second)
}

// GetFlashThreshold returns the luma rise over baseline that marks a flash pixel.
func (c *TuningConfig) GetFlashThreshold() int { return intOr(c.FlashThreshold, 40) }

// GetFlashMinPixels returns the smallest blob accepted as a shot.
func (c *TuningConfig) GetFlashMinPixels() int { return intOr(c.FlashMinPixels, 4) }

// GetBaselineFrames returns how many frames establish the camera noise floor.
func (c *TuningConfig) GetBaselineFrames() int { return intOr(c.BaselineFrames, 10) }

// GetBaselineAlpha returns the camera noise floor learning rate.
func (c *TuningConfig) GetBaselineAlpha() float64 { return floatOr(c.BaselineAlpha, 0.1) }

// MaskQueueBound returns the mask queue capacity: enough masks to cover the
// delay window at the arena frame rate, plus slack.
func (c *TuningConfig) MaskQueueBound() int {
	delayMs := int(c.GetArenaDelay() / time.Millisecond)
	perWindow := (delayMs*c.GetArenaFPS() + 999) / 1000
	return perWindow + c.GetMaskQueueSlack()
}
