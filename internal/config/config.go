package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-ingest/pkg/presets"
)

// Config holds the application configuration
type Config struct {
	Pipeline PipelineConfig        `json:"pipeline" yaml:"pipeline"`
	Presets  []presets.Compression `json:"presets,omitempty" yaml:"presets,omitempty"`
	Source   SourceConfig          `json:"source" yaml:"source"`
	Vision   VisionConfig          `json:"vision" yaml:"vision"`
	Storage  StorageConfig         `json:"storage" yaml:"storage"`
	Log      LogConfig             `json:"log" yaml:"log"`
}

// PipelineConfig holds the crop modal settings
type PipelineConfig struct {
	MinZoom       float64 `json:"min_zoom" yaml:"min_zoom"`
	MaxZoom       float64 `json:"max_zoom" yaml:"max_zoom"`
	DefaultAspect string  `json:"default_aspect" yaml:"default_aspect"`
	PreviewSize   int     `json:"preview_size" yaml:"preview_size"`
}

// SourceConfig holds configuration for loading source images
type SourceConfig struct {
	SupportedFormats []string `json:"supported_formats" yaml:"supported_formats"`
	MinImageSize     int      `json:"min_image_size" yaml:"min_image_size"`
	MaxFileMB        float64  `json:"max_file_mb" yaml:"max_file_mb"`
}

// Vision backends
const (
	VisionNone     = "none"
	VisionSaliency = "saliency"
	VisionOllama   = "ollama"
)

// VisionConfig selects the focus locator used for auto-framing
type VisionConfig struct {
	Backend        string  `json:"backend" yaml:"backend"`
	OllamaURL      string  `json:"ollama_url" yaml:"ollama_url"`
	Model          string  `json:"model" yaml:"model"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	MinConfidence  float64 `json:"min_confidence" yaml:"min_confidence"`
	AnalysisSize   int     `json:"analysis_size" yaml:"analysis_size"`
	Threshold      float64 `json:"threshold" yaml:"threshold"`
}

// Storage backends
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// StorageConfig holds configuration for the upload sink
type StorageConfig struct {
	Backend       string `json:"backend" yaml:"backend"`
	Dir           string `json:"dir" yaml:"dir"`
	Bucket        string `json:"bucket" yaml:"bucket"`
	Region        string `json:"region" yaml:"region"`
	Prefix        string `json:"prefix" yaml:"prefix"`
	Endpoint      string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MinZoom:       1,
			MaxZoom:       3,
			DefaultAspect: presets.AspectFree.Name,
			PreviewSize:   1024,
		},
		Source: SourceConfig{
			SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
			MinImageSize:     1,
			MaxFileMB:        50,
		},
		Vision: VisionConfig{
			Backend:        VisionSaliency,
			OllamaURL:      "http://localhost:11434",
			Model:          "llava",
			TimeoutSeconds: 300,
			MinConfidence:  0.2,
			AnalysisSize:   256,
			Threshold:      0.02,
		},
		Storage: StorageConfig{
			Backend: StorageLocal,
			Dir:     "./output",
			Prefix:  "uploads",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// extension. Missing fields keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration as JSON or YAML, chosen by extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Pipeline.MinZoom <= 0 {
		return fmt.Errorf("pipeline.min_zoom must be positive")
	}

	if c.Pipeline.MaxZoom < c.Pipeline.MinZoom {
		return fmt.Errorf("pipeline.max_zoom must not be below pipeline.min_zoom")
	}

	if _, err := presets.ParseAspect(c.Pipeline.DefaultAspect); err != nil {
		return fmt.Errorf("pipeline.default_aspect: %w", err)
	}

	if _, err := presets.NewRegistry(c.Presets); err != nil {
		return fmt.Errorf("presets: %w", err)
	}

	if c.Source.MinImageSize < 1 {
		return fmt.Errorf("source.min_image_size must be positive")
	}

	if c.Source.MaxFileMB <= 0 {
		return fmt.Errorf("source.max_file_mb must be positive")
	}

	if len(c.Source.SupportedFormats) == 0 {
		return fmt.Errorf("source.supported_formats cannot be empty")
	}

	switch c.Vision.Backend {
	case VisionNone, VisionSaliency:
	case VisionOllama:
		if c.Vision.OllamaURL == "" || c.Vision.Model == "" {
			return fmt.Errorf("vision.ollama_url and vision.model are required for the ollama backend")
		}
	default:
		return fmt.Errorf("vision.backend must be one of none, saliency, ollama")
	}

	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		return fmt.Errorf("vision.min_confidence must be between 0 and 1")
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the local backend")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of local, s3")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-ingest", "config.yaml")
}
