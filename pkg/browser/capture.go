// Package browser captures the visible viewport of a web page with headless
// Chrome, recording the CSS viewport measured at the same instant.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/menta2k/circle-snip/pkg/types"
)

// Config configures the capturer
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	// Width and Height are the CSS viewport size. Default: 1280x720.
	Width  int
	Height int

	// DeviceScaleFactor emulates a high-DPI display. Default: 1.
	DeviceScaleFactor float64

	// Stealth hides common automation fingerprints
	Stealth bool

	// Timeout bounds navigation and load. Default: 30s.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	if c.DeviceScaleFactor <= 0 {
		c.DeviceScaleFactor = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Capturer owns one Chrome connection, started lazily
type Capturer struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewCapturer creates a Capturer. Chrome is not started until the first capture.
func NewCapturer(cfg Config) *Capturer {
	cfg.defaults()
	return &Capturer{cfg: cfg}
}

// viewportMetrics is what the page reports about itself at capture time
type viewportMetrics struct {
	Width  float64
	Height float64
	DPR    float64
}

const measureJS = `() => ({w: window.innerWidth, h: window.innerHeight, dpr: window.devicePixelRatio || 1})`

// CaptureVisible navigates to pageURL and screenshots the visible viewport as
// PNG. The returned viewport is measured right before the screenshot so the
// two stay consistent; the reported device pixel ratio is kept for diagnostics only.
func (c *Capturer) CaptureVisible(ctx context.Context, pageURL string) (types.Screenshot, error) {
	b, err := c.connect()
	if err != nil {
		return types.Screenshot{}, err
	}

	page, err := c.newPage(b)
	if err != nil {
		return types.Screenshot{}, fmt.Errorf("browser: create page: %w", err)
	}
	defer page.Close()

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.cfg.Width,
		Height:            c.cfg.Height,
		DeviceScaleFactor: c.cfg.DeviceScaleFactor,
	})
	if err != nil {
		return types.Screenshot{}, fmt.Errorf("browser: set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return types.Screenshot{}, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		c.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	m, err := measure(page.Context(navCtx))
	if err != nil {
		return types.Screenshot{}, err
	}

	img, err := page.Context(navCtx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return types.Screenshot{}, fmt.Errorf("browser: screenshot: %w", err)
	}

	c.cfg.Logger.Debug("browser: captured viewport",
		"url", pageURL, "css", fmt.Sprintf("%gx%g", m.Width, m.Height), "dpr", m.DPR, "bytes", len(img))

	return types.Screenshot{
		Image:       img,
		Viewport:    types.Viewport{Width: m.Width, Height: m.Height},
		ReportedDPR: m.DPR,
		Source:      pageURL,
	}, nil
}

func measure(page *rod.Page) (viewportMetrics, error) {
	res, err := page.Eval(measureJS)
	if err != nil {
		return viewportMetrics{}, fmt.Errorf("browser: measure viewport: %w", err)
	}
	m := viewportMetrics{
		Width:  res.Value.Get("w").Num(),
		Height: res.Value.Get("h").Num(),
		DPR:    res.Value.Get("dpr").Num(),
	}
	if m.Width <= 0 || m.Height <= 0 {
		return viewportMetrics{}, fmt.Errorf("browser: page reported empty viewport %gx%g", m.Width, m.Height)
	}
	return m, nil
}

func (c *Capturer) newPage(b *rod.Browser) (*rod.Page, error) {
	if c.cfg.Stealth {
		return stealth.Page(b)
	}
	return b.Page(proto.TargetCreateTarget{URL: ""})
}

func (c *Capturer) connect() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return c.browser, nil
	}

	wsURL := c.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		c.lnch = l
		c.cfg.Logger.Info("browser: launched local chrome", "url", wsURL)
	} else {
		c.cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	c.browser = b
	return b, nil
}

// Close shuts the browser down, killing a locally launched Chrome
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	if c.lnch != nil {
		c.lnch.Kill()
		c.lnch = nil
	}
	return err
}
