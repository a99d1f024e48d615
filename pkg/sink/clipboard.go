package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/clipboard"
)

// ErrClipboardRejected is returned when the platform refuses the image write
var ErrClipboardRejected = errors.New("clipboard rejected image data")

// ClipboardBackend writes PNG bytes to a clipboard
type ClipboardBackend interface {
	WriteImage(png []byte) error
}

// systemClipboard is the process-wide platform clipboard
type systemClipboard struct {
	once    sync.Once
	initErr error
}

var system = &systemClipboard{}

// SystemClipboard returns the platform clipboard backend
func SystemClipboard() ClipboardBackend {
	return system
}

func (s *systemClipboard) WriteImage(png []byte) error {
	s.once.Do(func() {
		s.initErr = clipboard.Init()
	})
	if s.initErr != nil {
		return fmt.Errorf("clipboard unavailable: %w", s.initErr)
	}
	if changed := clipboard.Write(clipboard.FmtImage, png); changed == nil {
		return ErrClipboardRejected
	}
	return nil
}

// ClipboardSink copies snips to a clipboard backend
type ClipboardSink struct {
	backend ClipboardBackend
	logger  *slog.Logger
}

// NewClipboardSink creates a clipboard sink. A nil backend uses the system clipboard.
func NewClipboardSink(backend ClipboardBackend) *ClipboardSink {
	if backend == nil {
		backend = SystemClipboard()
	}
	return &ClipboardSink{backend: backend, logger: slog.Default()}
}

// SetLogger sets the logger used to report clipboard failures
func (c *ClipboardSink) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Copy writes the PNG to the clipboard and reports success. Failures are
// logged, never returned.
func (c *ClipboardSink) Copy(png []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("clipboard write panicked", "panic", fmt.Sprint(r))
			ok = false
		}
	}()

	if len(png) == 0 {
		c.logger.Warn("clipboard write skipped", "error", "empty image")
		return false
	}
	if err := c.backend.WriteImage(png); err != nil {
		c.logger.Warn("clipboard write failed", "error", err)
		return false
	}
	return true
}
