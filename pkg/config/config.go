// Package config provides configuration management for facewatch.
// It loads configuration from YAML files with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name searched for by LoadDefault.
const FileName = "facewatch.yaml"

// Config holds all facewatch configuration.
type Config struct {
	Camera      CameraConfig      `yaml:"camera"`
	Detection   DetectionConfig   `yaml:"detection"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Enrollment  EnrollmentConfig  `yaml:"enrollment"`
	Storage     StorageConfig     `yaml:"storage"`
	UI          UIConfig          `yaml:"ui"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CameraConfig holds capture device settings.
type CameraConfig struct {
	DeviceID int `yaml:"device_id"`
	// TickMS is the key wait per loop iteration, in milliseconds.
	TickMS int `yaml:"tick_ms"`
}

// DetectionConfig holds cascade scanning settings shared by both modes.
type DetectionConfig struct {
	ScaleFactor   float64 `yaml:"scale_factor"`
	MinNeighbors  int     `yaml:"min_neighbors"`
	MinSize       int     `yaml:"min_size"`
	ObjectCaption string  `yaml:"object_caption"`
	FaceCascade   string  `yaml:"face_cascade"`
	// Classifier is an optional object cascade loaded at startup.
	Classifier string `yaml:"classifier"`
}

// RecognitionConfig holds LBPH settings.
type RecognitionConfig struct {
	Radius    int     `yaml:"radius"`
	Neighbors int     `yaml:"neighbors"`
	Threshold float64 `yaml:"threshold"`
	FaceSize  int     `yaml:"face_size"`
}

// EnrollmentConfig holds capture burst settings.
type EnrollmentConfig struct {
	SampleCount  int `yaml:"sample_count"`
	FrameDelayMS int `yaml:"frame_delay_ms"`
	// MaxEmptyReads ends a burst after that many consecutive empty frames.
	// Zero keeps reading until SampleCount is reached.
	MaxEmptyReads  int  `yaml:"max_empty_reads"`
	SingleFaceOnly bool `yaml:"single_face_only"`
}

// StorageConfig holds enrollment storage settings.
type StorageConfig struct {
	DataDir           string `yaml:"data_dir"`
	ModelFile         string `yaml:"model_file"`
	LabelsFile        string `yaml:"labels_file"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
}

// UIConfig holds window settings.
type UIConfig struct {
	WindowTitle string `yaml:"window_title"`
	ShowStatus  bool   `yaml:"show_status"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Camera: CameraConfig{
			DeviceID: 0,
			TickMS:   1,
		},
		Detection: DetectionConfig{
			ScaleFactor:   1.1,
			MinNeighbors:  5,
			MinSize:       30,
			ObjectCaption: "OBJECT",
			FaceCascade:   "haarcascade_frontalface_default.xml",
		},
		Recognition: RecognitionConfig{
			Radius:    1,
			Neighbors: 8,
			Threshold: 200,
			FaceSize:  100,
		},
		Enrollment: EnrollmentConfig{
			SampleCount:  20,
			FrameDelayMS: 100,
		},
		Storage: StorageConfig{
			DataDir:    "face_data",
			ModelFile:  "face_model.xml",
			LabelsFile: "face_labels.txt",
		},
		UI: UIConfig{
			WindowTitle: "facewatch",
			ShowStatus:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the specified file on top of the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, fmt.Errorf("parse %s: %w", path, err)
	}

	return config, nil
}

// LoadDefault tries ./facewatch.yaml, then the user config directory.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(FileName); err == nil {
		return Load(FileName)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(configDir, "facewatch", FileName)
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	return DefaultConfig(), nil
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

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Detection.FaceCascade = ExpandPath(c.Detection.FaceCascade)
	c.Detection.Classifier = ExpandPath(c.Detection.Classifier)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Camera.DeviceID < 0 {
		return fmt.Errorf("invalid camera device id: %d", c.Camera.DeviceID)
	}
	if c.Camera.TickMS <= 0 {
		return fmt.Errorf("tick_ms must be positive, got %d", c.Camera.TickMS)
	}

	if c.Detection.ScaleFactor <= 1 {
		return fmt.Errorf("scale_factor must be greater than 1, got %f", c.Detection.ScaleFactor)
	}
	if c.Detection.MinNeighbors < 0 {
		return fmt.Errorf("min_neighbors must not be negative, got %d", c.Detection.MinNeighbors)
	}
	if c.Detection.MinSize <= 0 {
		return fmt.Errorf("min_size must be positive, got %d", c.Detection.MinSize)
	}
	if c.Detection.FaceCascade == "" {
		return fmt.Errorf("face_cascade must be set")
	}

	if c.Recognition.Radius <= 0 || c.Recognition.Neighbors <= 0 {
		return fmt.Errorf("invalid LBPH parameters: radius=%d neighbors=%d", c.Recognition.Radius, c.Recognition.Neighbors)
	}
	if c.Recognition.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %f", c.Recognition.Threshold)
	}
	if c.Recognition.FaceSize <= 0 {
		return fmt.Errorf("face_size must be positive, got %d", c.Recognition.FaceSize)
	}

	if c.Enrollment.SampleCount <= 0 {
		return fmt.Errorf("sample_count must be positive, got %d", c.Enrollment.SampleCount)
	}
	if c.Enrollment.FrameDelayMS < 0 {
		return fmt.Errorf("frame_delay_ms must not be negative, got %d", c.Enrollment.FrameDelayMS)
	}
	if c.Enrollment.MaxEmptyReads < 0 {
		return fmt.Errorf("max_empty_reads must not be negative, got %d", c.Enrollment.MaxEmptyReads)
	}

	if c.Storage.DataDir == "" || c.Storage.ModelFile == "" || c.Storage.LabelsFile == "" {
		return fmt.Errorf("storage paths must be set")
	}
	if !strings.EqualFold(filepath.Ext(c.Storage.ModelFile), ".xml") {
		return fmt.Errorf("model_file must be an .xml file, got %s", c.Storage.ModelFile)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, warning, or error)", c.Logging.Level)
	}

	return nil
}

// TickInterval returns the capture loop key wait.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Camera.TickMS) * time.Millisecond
}

// FrameDelay returns the pause between frames of an enrollment burst.
func (c *Config) FrameDelay() time.Duration {
	return time.Duration(c.Enrollment.FrameDelayMS) * time.Millisecond
}

// ModelPath returns the path of the persisted recognizer state.
func (c *Config) ModelPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.ModelFile)
}

// LabelsPath returns the path of the id:name label file.
func (c *Config) LabelsPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.LabelsFile)
}

// EnsureDirectories creates the storage and log directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// Write saves the configuration as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
