package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"interpolation", func(c *Config) { c.Cropper.Interpolation = "lanczos" }, "cropper.interpolation"},
		{"policy", func(c *Config) { c.Cropper.ScalePolicy = "loose" }, "cropper.scale_policy"},
		{"tolerance", func(c *Config) { c.Cropper.ScaleTolerance = 2 }, "cropper.scale_tolerance"},
		{"max diameter", func(c *Config) { c.Cropper.MaxDiameter = 0 }, "cropper.max_diameter"},
		{"format", func(c *Config) { c.Output.Format = "jpg" }, "output.format"},
		{"compression", func(c *Config) { c.Output.Compression = "max" }, "output.compression"},
		{"backend", func(c *Config) { c.Caption.Enabled = true; c.Caption.Backend = "openai" }, "caption.backend"},
		{"model", func(c *Config) { c.Caption.Enabled = true; c.Caption.Model = "" }, "caption.model"},
		{"viewport", func(c *Config) { c.Browser.Width = 0 }, "browser.width"},
		{"dpr", func(c *Config) { c.Browser.DeviceScaleFactor = 0 }, "browser.device_scale_factor"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := Default()
			test.modify(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), test.field) {
				t.Errorf("Expected error about %s, got %v", test.field, err)
			}
		})
	}
}

func TestDisabledCaptionSkipsBackendCheck(t *testing.T) {
	c := Default()
	c.Caption.Backend = "whatever"
	if err := c.Validate(); err != nil {
		t.Errorf("Disabled caption should not be validated: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			c := Default()
			c.Output.Format = "webp"
			c.Caption.Enabled = true
			c.Caption.Backend = "llamacpp"
			c.Browser.DeviceScaleFactor = 2

			if err := c.SaveToFile(path); err != nil {
				t.Fatalf("SaveToFile failed: %v", err)
			}
			loaded, err := LoadFromFile(path)
			if err != nil {
				t.Fatalf("LoadFromFile failed: %v", err)
			}
			if loaded.Output.Format != "webp" || !loaded.Caption.Enabled ||
				loaded.Caption.Backend != "llamacpp" || loaded.Browser.DeviceScaleFactor != 2 {
				t.Errorf("Round trip lost values: %+v", loaded)
			}
		})
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := "output:\n  format: webp\ncropper:\n  scale_policy: strict\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if c.Output.Format != "webp" || c.Cropper.ScalePolicy != "strict" {
		t.Errorf("File values not applied: %+v", c)
	}
	if c.Cropper.Interpolation != "catmullrom" || c.Browser.Width != 1280 {
		t.Errorf("Defaults not kept: %+v", c)
	}
	// nested section partially set keeps its other defaults
	if !c.Output.Clipboard || c.Output.Dir != "~/Downloads" {
		t.Errorf("Output defaults not kept: %+v", c.Output)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestGetConfigPath(t *testing.T) {
	if p := GetConfigPath(); !strings.HasSuffix(p, filepath.Join("circle-snip", "config.json")) {
		t.Errorf("Unexpected config path %s", p)
	}
}
