// Package config loads and persists the dashcam configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ReportMode selects the report policy
type ReportMode string

const (
	ModeAuto    ReportMode = "auto"
	ModeConfirm ReportMode = "confirm"
)

// LocationSource selects where fixes come from
type LocationSource string

const (
	LocationSerial LocationSource = "serial"
	LocationStatic LocationSource = "static"
	LocationNone   LocationSource = "none"
)

// Duration is a time.Duration written as "1s", "500ms" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig holds the backend connection settings
type ServerConfig struct {
	URL      string   `yaml:"url"`
	Email    string   `yaml:"email,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	Timeout  Duration `yaml:"timeout"`
}

// DetectorConfig holds the frame analysis service settings
type DetectorConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// CameraConfig holds camera settings. FramesDir replays recorded JPEGs
// instead of capturing from Input.
type CameraConfig struct {
	Input       string   `yaml:"input,omitempty"`
	FramesDir   string   `yaml:"frames_dir,omitempty"`
	WorkDir     string   `yaml:"work_dir,omitempty"`
	Width       int      `yaml:"width,omitempty"`
	Height      int      `yaml:"height,omitempty"`
	JPEGQuality int      `yaml:"jpeg_quality,omitempty"`
	Timeout     Duration `yaml:"timeout"`
}

type LocationConfig struct {
	Source    LocationSource `yaml:"source"`
	Port      string         `yaml:"port,omitempty"`
	Baud      int            `yaml:"baud,omitempty"`
	Latitude  float64        `yaml:"latitude,omitempty"`
	Longitude float64        `yaml:"longitude,omitempty"`
}

type SamplingConfig struct {
	Period      Duration `yaml:"period"`
	MinInterval Duration `yaml:"min_interval"`
}

type ReportConfig struct {
	Mode         ReportMode `yaml:"mode"`
	DismissAfter Duration   `yaml:"dismiss_after"`
}

// Config is the complete dashcam configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	Camera   CameraConfig   `yaml:"camera"`
	Location LocationConfig `yaml:"location"`
	Sampling SamplingConfig `yaml:"sampling"`
	Report   ReportConfig   `yaml:"report"`
	LogLevel string         `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:     "http://localhost:5000",
			Timeout: Duration(30 * time.Second),
		},
		Detector: DetectorConfig{
			URL:     "http://localhost:6000/analyze",
			Timeout: Duration(3000 * time.Millisecond),
		},
		Camera: CameraConfig{
			Input:       "/dev/video0",
			JPEGQuality: 75,
			Timeout:     Duration(5 * time.Second),
		},
		Location: LocationConfig{
			Source: LocationSerial,
			Port:   "/dev/ttyACM0",
			Baud:   9600,
		},
		Sampling: SamplingConfig{
			Period:      Duration(time.Second),
			MinInterval: Duration(1000 * time.Millisecond),
		},
		Report: ReportConfig{
			Mode:         ModeConfirm,
			DismissAfter: Duration(5000 * time.Millisecond),
		},
		LogLevel: "info",
	}
}

// Validate checks the settings a capture session depends on.
func (c Config) Validate() error {
	var errs []string
	if c.Server.URL == "" {
		errs = append(errs, "server.url is required")
	}
	if c.Detector.URL == "" {
		errs = append(errs, "detector.url is required")
	}
	if c.Camera.Input == "" && c.Camera.FramesDir == "" {
		errs = append(errs, "camera.input or camera.frames_dir is required")
	}
	switch c.Report.Mode {
	case ModeAuto, ModeConfirm:
	default:
		errs = append(errs, fmt.Sprintf("report.mode must be %q or %q", ModeAuto, ModeConfirm))
	}
	switch c.Location.Source {
	case LocationSerial:
		if c.Location.Port == "" {
			errs = append(errs, "location.port is required for a serial receiver")
		}
	case LocationStatic, LocationNone:
	default:
		errs = append(errs, fmt.Sprintf("location.source %q is not supported", c.Location.Source))
	}
	if c.Sampling.Period <= 0 || c.Sampling.MinInterval < 0 {
		errs = append(errs, "sampling intervals must be positive")
	}
	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// Manager handles configuration persistence and access
type Manager struct {
	path   string
	config Config
	mu     sync.RWMutex
}

// NewManager loads path over the defaults. A missing file leaves the
// defaults in place.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path, config: Default()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &m.config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

func (m *Manager) Path() string {
	return m.path
}

// Get returns a copy of the current config
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Update applies fn to the config and saves it.
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.config)
	return m.saveUnsafe()
}

// SetToken stores the bearer token from a successful login
func (m *Manager) SetToken(token string) error {
	return m.Update(func(c *Config) {
		c.Server.Token = token
	})
}

func (m *Manager) saveUnsafe() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// Holds credentials.
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultPath is ~/.patrolvision/dashcam.yaml, or ./dashcam.yaml when the
// home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "dashcam.yaml"
	}
	return filepath.Join(home, ".patrolvision", "dashcam.yaml")
}
