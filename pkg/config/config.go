// Package config provides configuration management for facedetect.
// Settings come from a YAML file or from a plain key/value mapping and are
// layered over sensible defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects between still image and stream processing.
type Mode string

const (
	ModeImage Mode = "image"
	ModeVideo Mode = "video"
)

// Method selects between plain detection and labelling with known faces.
type Method string

const (
	MethodDetect    Method = "detect"
	MethodRecognize Method = "recognize"
)

// Detector backends.
const (
	BackendHOG  = "hog"
	BackendCNN  = "cnn"
	BackendHaar = "haar"
)

// FeatureAll selects every landmark group the detector can provide.
const FeatureAll = "face"

// FaceFeatureNames lists the landmark groups accepted in face-features.
var FaceFeatureNames = []string{
	FeatureAll,
	"chin",
	"left_eye",
	"right_eye",
	"left_eyebrow",
	"right_eyebrow",
	"nose_bridge",
	"nose_tip",
	"top_lip",
	"bottom_lip",
}

// Settings are the options of the configuration mapping handed to the facade.
type Settings struct {
	Mode         Mode              `yaml:"mode"`
	Method       Method            `yaml:"method"`
	Draw         bool              `yaml:"draw"`
	Custom       bool              `yaml:"custom"`
	FaceFeatures []string          `yaml:"face-features"`
	KnownFaces   map[string]string `yaml:"known-faces"`
}

// Config holds all facedetect configuration.
type Config struct {
	Settings `yaml:",inline"`

	Detector DetectorConfig `yaml:"detector"`
	Camera   CameraConfig   `yaml:"camera"`
	Display  DisplayConfig  `yaml:"display"`
	Cache    CacheConfig    `yaml:"cache"`
	Events   EventsConfig   `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DetectorConfig holds face detection settings.
type DetectorConfig struct {
	Backend     string  `yaml:"backend"`
	ModelPath   string  `yaml:"model_path"`
	CascadeFile string  `yaml:"cascade_file"`
	Tolerance   float64 `yaml:"tolerance"`
	MaxWidth    int     `yaml:"max_width"`
	// Landmarks is the shape predictor layout, 5 or 68 points. Zero picks
	// 68 when face-features are drawn and 5 otherwise.
	Landmarks int `yaml:"landmarks"`
}

// CameraConfig holds webcam settings. Zero width/height keep the driver default.
type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DisplayConfig holds window and output settings.
type DisplayConfig struct {
	WindowTitle string `yaml:"window_title"`
	QuitKey     string `yaml:"quit_key"`
	Output      string `yaml:"output"`
	Headless    bool   `yaml:"headless"`
}

// CacheConfig holds the known-face descriptor cache settings.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	Encryption bool   `yaml:"encryption"`
}

// EventsConfig holds MQTT detection event settings. An empty broker disables events.
type EventsConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultSettings returns the mapping defaults: webcam stream, detection only, boxes drawn.
func DefaultSettings() Settings {
	return Settings{
		Mode:   ModeVideo,
		Method: MethodDetect,
		Draw:   true,
		Custom: false,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Settings: DefaultSettings(),
		Detector: DetectorConfig{
			Backend:     BackendHOG,
			ModelPath:   filepath.Join(homeDir, ".local/share/facedetect/models"),
			CascadeFile: "/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
			Tolerance:   0.6,
		},
		Camera: CameraConfig{
			Device: 0,
		},
		Display: DisplayConfig{
			WindowTitle: "FaceDetect",
			QuitKey:     "q",
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(homeDir, ".cache/facedetect"),
		},
		Events: EventsConfig{
			Topic: "facedetect/events",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the specified file.
// The defaults are returned alongside any error.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := decodeStrict(data, config); err != nil {
		return config, fmt.Errorf("parse %s: %w", path, err)
	}

	return config, nil
}

// LoadDefault tries the system and user config locations before falling back to defaults.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat("/etc/facedetect/facedetect.yaml"); err == nil {
		return Load("/etc/facedetect/facedetect.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, ".config/facedetect/facedetect.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	return DefaultConfig(), nil
}

// FromMap builds a configuration from a key/value mapping such as
// {"mode": "image", "method": "recognize", "known-faces": {...}}.
// Keys are the YAML keys; unknown keys and mistyped values are errors.
func FromMap(settings map[string]interface{}) (*Config, error) {
	config := DefaultConfig()
	if len(settings) == 0 {
		return config, nil
	}

	if err := checkSettingTypes(settings); err != nil {
		return config, fmt.Errorf("invalid settings: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return config, fmt.Errorf("encode settings: %w", err)
	}

	if err := decodeStrict(data, config); err != nil {
		return config, fmt.Errorf("invalid settings: %w", err)
	}

	return config, nil
}

// checkSettingTypes rejects mapping values whose Go type does not match the
// setting. YAML would otherwise coerce "no" into false or 7 into "7".
func checkSettingTypes(settings map[string]interface{}) error {
	for key, v := range settings {
		var ok bool
		switch key {
		case "mode":
			ok = isString(v) || isType[Mode](v)
		case "method":
			ok = isString(v) || isType[Method](v)
		case "draw", "custom":
			ok = isType[bool](v)
		case "face-features":
			ok = isStringList(v)
		case "known-faces":
			ok = isStringMap(v)
		default:
			continue
		}
		if !ok {
			return fmt.Errorf("%s: unexpected value %v (%T)", key, v, v)
		}
	}
	return nil
}

func isType[T any](v interface{}) bool {
	_, ok := v.(T)
	return ok
}

func isString(v interface{}) bool {
	return isType[string](v)
}

func isStringList(v interface{}) bool {
	switch list := v.(type) {
	case nil, []string:
		return true
	case []interface{}:
		for _, item := range list {
			if !isString(item) {
				return false
			}
		}
		return true
	}
	return false
}

func isStringMap(v interface{}) bool {
	switch m := v.(type) {
	case nil, map[string]string:
		return true
	case map[string]interface{}:
		for _, path := range m {
			if !isString(path) {
				return false
			}
		}
		return true
	case map[interface{}]interface{}:
		for name, path := range m {
			if !isString(name) || !isString(path) {
				return false
			}
		}
		return true
	}
	return false
}

func decodeStrict(data []byte, config *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		// An empty document leaves the defaults untouched.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overrides settings from FACEDETECT_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("FACEDETECT_MODEL_PATH"); v != "" {
		c.Detector.ModelPath = v
	}
	if v := os.Getenv("FACEDETECT_BACKEND"); v != "" {
		c.Detector.Backend = v
	}
	if v := os.Getenv("FACEDETECT_CAMERA_DEVICE"); v != "" {
		device, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FACEDETECT_CAMERA_DEVICE: %w", err)
		}
		c.Camera.Device = device
	}
	if v := os.Getenv("FACEDETECT_MQTT_BROKER"); v != "" {
		c.Events.Broker = v
	}
	if v := os.Getenv("FACEDETECT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// IsFeatureName reports whether name is an accepted face-features entry.
func IsFeatureName(name string) bool {
	for _, n := range FaceFeatureNames {
		if n == name {
			return true
		}
	}
	return false
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeImage, ModeVideo:
	default:
		return fmt.Errorf("invalid mode: %q (must be image or video)", c.Mode)
	}

	switch c.Method {
	case MethodDetect, MethodRecognize:
	default:
		return fmt.Errorf("invalid method: %q (must be detect or recognize)", c.Method)
	}

	switch c.Detector.Backend {
	case BackendHOG, BackendCNN, BackendHaar:
	default:
		return fmt.Errorf("invalid detector backend: %q (must be hog, cnn or haar)", c.Detector.Backend)
	}

	for _, f := range c.FaceFeatures {
		if !IsFeatureName(f) {
			return fmt.Errorf("unknown face feature: %q", f)
		}
	}
	if len(c.FaceFeatures) > 0 && c.Detector.Backend == BackendHaar {
		return fmt.Errorf("face-features need landmarks, which the haar backend does not provide")
	}

	if c.Method == MethodRecognize {
		if len(c.KnownFaces) == 0 {
			return fmt.Errorf("method recognize needs at least one entry in known-faces")
		}
		if c.Detector.Backend == BackendHaar {
			return fmt.Errorf("method recognize needs face descriptors, which the haar backend does not provide")
		}
	}
	for name, path := range c.KnownFaces {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("known-faces contains an empty name")
		}
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("known face %q has no image path", name)
		}
	}

	if c.Detector.Tolerance <= 0 || c.Detector.Tolerance > 1 {
		return fmt.Errorf("tolerance must be in (0, 1], got %f", c.Detector.Tolerance)
	}
	if c.Detector.MaxWidth < 0 {
		return fmt.Errorf("max_width must not be negative, got %d", c.Detector.MaxWidth)
	}
	switch c.Detector.Landmarks {
	case 0, 5, 68:
	default:
		return fmt.Errorf("invalid landmarks: %d (must be 5 or 68)", c.Detector.Landmarks)
	}

	if c.Camera.Device < 0 {
		return fmt.Errorf("invalid camera device index: %d", c.Camera.Device)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}

	// Key codes from the window are compared as single bytes.
	if k := c.Display.QuitKey; len(k) != 1 || k[0] < ' ' || k[0] > '~' {
		return fmt.Errorf("quit_key must be a single printable ASCII character, got %q", k)
	}

	if c.Events.QoS < 0 || c.Events.QoS > 2 {
		return fmt.Errorf("events qos must be 0, 1 or 2, got %d", c.Events.QoS)
	}
	if c.Events.Broker != "" && c.Events.Topic == "" {
		return fmt.Errorf("events topic must be set when a broker is configured")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	if c.FaceFeatures != nil {
		out.FaceFeatures = append([]string(nil), c.FaceFeatures...)
	}
	if c.KnownFaces != nil {
		out.KnownFaces = make(map[string]string, len(c.KnownFaces))
		for name, path := range c.KnownFaces {
			out.KnownFaces[name] = path
		}
	}
	return &out
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Detector.ModelPath = ExpandPath(c.Detector.ModelPath)
	c.Detector.CascadeFile = ExpandPath(c.Detector.CascadeFile)
	c.Display.Output = ExpandPath(c.Display.Output)
	c.Cache.Dir = ExpandPath(c.Cache.Dir)
	c.Logging.File = ExpandPath(c.Logging.File)
	for name, path := range c.KnownFaces {
		c.KnownFaces[name] = ExpandPath(path)
	}
}

// EnsureDirectories creates the cache, output and log directories.
func (c *Config) EnsureDirectories() error {
	if c.Cache.Enabled {
		if err := os.MkdirAll(c.Cache.Dir, 0700); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	if c.Display.Output != "" {
		if err := os.MkdirAll(filepath.Dir(c.Display.Output), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// WantsLandmarks reports whether any landmark group must be drawn.
func (c *Config) WantsLandmarks() bool {
	return len(c.FaceFeatures) > 0
}

// LandmarkPoints returns the landmark layout the detector should load.
func (c *Config) LandmarkPoints() int {
	switch {
	case c.Detector.Landmarks != 0:
		return c.Detector.Landmarks
	case c.WantsLandmarks():
		return 68
	default:
		return 5
	}
}

// ShowsWindow reports whether frames are shown in a window.
func (c *Config) ShowsWindow() bool {
	return !c.Custom && !c.Display.Headless
}

// QuitKeyCode returns the key code the display compares against.
func (c *Config) QuitKeyCode() int {
	if c.Display.QuitKey == "" {
		return 'q'
	}
	return int(c.Display.QuitKey[0])
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
