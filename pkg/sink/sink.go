package sink

import (
	"fmt"
	"log/slog"
	"strings"
)

// Targets selects which sinks receive a snip
type Targets struct {
	Clipboard bool
	File      bool
}

// Status records which sinks actually succeeded for one snip
type Status struct {
	Copied    bool   `json:"copied"`
	Saved     bool   `json:"saved"`
	Captioned bool   `json:"captioned"`
	Path      string `json:"path,omitempty"`
}

// String renders the composite status shown to the user. Sinks that failed
// are never mentioned.
func (s Status) String() string {
	var parts []string
	if s.Copied {
		parts = append(parts, "Copied")
	}
	if s.Saved {
		parts = append(parts, "Saved")
	}
	return strings.Join(parts, " + ")
}

// Any reports whether at least one sink succeeded
func (s Status) Any() bool {
	return s.Copied || s.Saved
}

// Exporter hands one encoded snip to each enabled sink independently
type Exporter struct {
	clipboard *ClipboardSink
	file      *FileSink
	logger    *slog.Logger
}

// NewExporter creates an exporter. Either sink may be nil.
func NewExporter(clipboard *ClipboardSink, file *FileSink) *Exporter {
	return &Exporter{
		clipboard: clipboard,
		file:      file,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger used to report sink failures
func (e *Exporter) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// File returns the file sink, if any
func (e *Exporter) File() *FileSink {
	return e.file
}

// Export runs every enabled sink. A failing or panicking sink only clears its
// own flag in the returned Status.
func (e *Exporter) Export(png []byte, filename string, targets Targets) Status {
	var status Status

	if targets.Clipboard && e.clipboard != nil {
		e.isolate("clipboard", func() {
			status.Copied = e.clipboard.Copy(png)
		})
	}

	if targets.File && e.file != nil {
		e.isolate("file", func() {
			status.Path, status.Saved = e.file.download(png, filename)
		})
	}

	e.logger.Debug("export finished", "status", status.String(), "path", status.Path)
	return status
}

func (e *Exporter) isolate(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sink panicked", "sink", name, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
