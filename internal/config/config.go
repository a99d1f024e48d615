package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Cropper CropperConfig `json:"cropper" yaml:"cropper"`
	Output  OutputConfig  `json:"output" yaml:"output"`
	Caption CaptionConfig `json:"caption" yaml:"caption"`
	Browser BrowserConfig `json:"browser" yaml:"browser"`
	License LicenseConfig `json:"license" yaml:"license"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// CropperConfig holds configuration for circular cropping
type CropperConfig struct {
	Interpolation  string  `json:"interpolation" yaml:"interpolation"`
	ScalePolicy    string  `json:"scale_policy" yaml:"scale_policy"`
	ScaleTolerance float64 `json:"scale_tolerance" yaml:"scale_tolerance"`
	MaxDiameter    int     `json:"max_diameter" yaml:"max_diameter"`
}

// OutputConfig holds configuration for the clipboard and file sinks
type OutputConfig struct {
	Dir         string `json:"dir" yaml:"dir"`
	Format      string `json:"format" yaml:"format"`
	Compression string `json:"compression" yaml:"compression"`
	Clipboard   bool   `json:"clipboard" yaml:"clipboard"`
	Save        bool   `json:"save" yaml:"save"`
}

// CaptionConfig holds configuration for alt-text generation
type CaptionConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Backend string `json:"backend" yaml:"backend"`
	URL     string `json:"url" yaml:"url"`
	Model   string `json:"model" yaml:"model"`
	Prompt  string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

// BrowserConfig holds configuration for live page capture
type BrowserConfig struct {
	RemoteURL         string  `json:"remote_url" yaml:"remote_url"`
	Width             int     `json:"width" yaml:"width"`
	Height            int     `json:"height" yaml:"height"`
	DeviceScaleFactor float64 `json:"device_scale_factor" yaml:"device_scale_factor"`
	Stealth           bool    `json:"stealth" yaml:"stealth"`
	TimeoutSeconds    int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// LicenseConfig holds configuration for entitlement checks
type LicenseConfig struct {
	ServerURL string `json:"server_url" yaml:"server_url"`
	StatePath string `json:"state_path" yaml:"state_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Cropper: CropperConfig{
			Interpolation:  "catmullrom",
			ScalePolicy:    "average",
			ScaleTolerance: 0.01,
			MaxDiameter:    16384,
		},
		Output: OutputConfig{
			Dir:         "~/Downloads",
			Format:      "png",
			Compression: "default",
			Clipboard:   true,
			Save:        true,
		},
		Caption: CaptionConfig{
			Enabled: false,
			Backend: "ollama",
			URL:     "http://localhost:11434",
			Model:   "llava",
		},
		Browser: BrowserConfig{
			Width:             1280,
			Height:            800,
			DeviceScaleFactor: 1,
			TimeoutSeconds:    30,
		},
		License: LicenseConfig{
			ServerURL: "https://api.circlesnip.com",
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

// LoadFromFile loads configuration from a JSON or YAML file. Keys missing
// from the file keep their default values.
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

// SaveToFile saves configuration to a JSON or YAML file
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
	switch c.Cropper.Interpolation {
	case "catmullrom", "bilinear", "approxbilinear", "nearest":
	default:
		return fmt.Errorf("cropper.interpolation must be one of catmullrom, bilinear, approxbilinear, nearest")
	}

	if c.Cropper.ScalePolicy != "average" && c.Cropper.ScalePolicy != "strict" {
		return fmt.Errorf("cropper.scale_policy must be average or strict")
	}

	if c.Cropper.ScaleTolerance < 0 || c.Cropper.ScaleTolerance > 1 {
		return fmt.Errorf("cropper.scale_tolerance must be between 0 and 1")
	}

	if c.Cropper.MaxDiameter < 1 {
		return fmt.Errorf("cropper.max_diameter must be positive")
	}

	if c.Output.Format != "png" && c.Output.Format != "webp" {
		return fmt.Errorf("output.format must be png or webp")
	}

	switch c.Output.Compression {
	case "", "default", "best", "fast", "none":
	default:
		return fmt.Errorf("output.compression must be one of default, best, fast, none")
	}

	if c.Caption.Enabled {
		if c.Caption.Backend != "ollama" && c.Caption.Backend != "llamacpp" {
			return fmt.Errorf("caption.backend must be ollama or llamacpp")
		}
		if c.Caption.Model == "" {
			return fmt.Errorf("caption.model cannot be empty")
		}
	}

	if c.Browser.Width < 1 || c.Browser.Height < 1 {
		return fmt.Errorf("browser.width and browser.height must be positive")
	}

	if c.Browser.DeviceScaleFactor <= 0 {
		return fmt.Errorf("browser.device_scale_factor must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "circle-snip", "config.json")
}
