package browser

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	c := NewCapturer(Config{})
	if c.cfg.Width != 1280 || c.cfg.Height != 720 {
		t.Errorf("Expected 1280x720 default viewport, got %dx%d", c.cfg.Width, c.cfg.Height)
	}
	if c.cfg.DeviceScaleFactor != 1 {
		t.Errorf("Expected device scale factor 1, got %g", c.cfg.DeviceScaleFactor)
	}
	if c.cfg.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", c.cfg.Timeout)
	}
	if c.cfg.Logger == nil {
		t.Error("Expected a default logger")
	}
}

func TestConfigKeepsExplicitValues(t *testing.T) {
	c := NewCapturer(Config{Width: 800, Height: 600, DeviceScaleFactor: 2, Timeout: time.Second})
	if c.cfg.Width != 800 || c.cfg.Height != 600 || c.cfg.DeviceScaleFactor != 2 || c.cfg.Timeout != time.Second {
		t.Errorf("explicit values overwritten: %+v", c.cfg)
	}
}

func TestCloseWithoutBrowser(t *testing.T) {
	if err := NewCapturer(Config{}).Close(); err != nil {
		t.Errorf("Close on an unused capturer failed: %v", err)
	}
}
