// Package circlesnip captures a circular region of a screenshot and hands the
// result to the clipboard and file sinks.
//
// A capture runs as one session: the screenshot and the viewport measured with
// it are pinned when the session begins, the user positions a circle in CSS
// pixels, and Snip crops that circle at the screenshot's native resolution.
//
// Basic usage:
//
//	snipper := circlesnip.New(circlesnip.Options{
//		Exporter: sink.NewExporter(
//			sink.NewClipboardSink(sink.SystemClipboard()),
//			sink.NewFileSink("~/Downloads", "png"),
//		),
//	})
//
//	shot := types.Screenshot{Image: pngBytes, Viewport: types.Viewport{Width: 1280, Height: 800}}
//	result, err := snipper.Capture(ctx, shot, types.Circle{X: 640, Y: 400, Diameter: 256},
//		sink.Targets{Clipboard: true, File: true})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(result.Status) // "Copied + Saved"
//
// The package consists of these components:
//
//  1. Cropper (pkg/cropper): maps CSS pixels to source pixels and draws the anti-aliased circle
//  2. Sinks (pkg/sink): clipboard and file outputs, each isolated from the other's failure
//  3. Session (pkg/session): enforces one capture at a time
//  4. Caption (pkg/caption): optional alt text from a local vision model
//  5. Notify (pkg/notify): reports the composite outcome to the user
package circlesnip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/menta2k/circle-snip/internal/utils"
	"github.com/menta2k/circle-snip/pkg/caption"
	"github.com/menta2k/circle-snip/pkg/cropper"
	"github.com/menta2k/circle-snip/pkg/notify"
	"github.com/menta2k/circle-snip/pkg/session"
	"github.com/menta2k/circle-snip/pkg/sink"
	"github.com/menta2k/circle-snip/pkg/types"
)

// Version of the circle snip library
const Version = "1.0.0"

// ErrNoOutput is returned when the crop succeeded but no sink accepted it
var ErrNoOutput = errors.New("no output succeeded")

// NothingExported is shown when every enabled sink failed
const NothingExported = "Nothing was copied or saved"

// Options configures a Snipper. Zero values select defaults.
type Options struct {
	Cropper   cropper.CropConfig
	Exporter  *sink.Exporter
	Notifier  notify.Notifier
	Captioner *caption.Captioner
	Logger    *slog.Logger
}

// Snipper runs capture sessions end to end
type Snipper struct {
	cropper   *cropper.CircleCropper
	exporter  *sink.Exporter
	tracker   *session.Tracker
	notifier  notify.Notifier
	captioner *caption.Captioner
	logger    *slog.Logger
	now       func() time.Time
}

// Result is the outcome of one snip
type Result struct {
	PNG      []byte
	Filename string
	Status   sink.Status
	Geometry types.Geometry
	Caption  *types.Caption
}

// New creates a Snipper
func New(opts Options) *Snipper {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := opts.Cropper
	if cfg == (cropper.CropConfig{}) {
		cfg = cropper.DefaultConfig()
	}
	c := cropper.NewWithConfig(cfg)
	c.SetLogger(logger)

	exporter := opts.Exporter
	if exporter == nil {
		exporter = sink.NewExporter(nil, nil)
	}
	exporter.SetLogger(logger)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Snipper{
		cropper:   c,
		exporter:  exporter,
		tracker:   session.NewTracker(),
		notifier:  notifier,
		captioner: opts.Captioner,
		logger:    logger,
		now:       time.Now,
	}
}

// Begin opens a capture session for shot. It fails with
// session.ErrSessionActive while another session is open.
func (s *Snipper) Begin(shot types.Screenshot) (*session.Session, error) {
	sess, err := s.tracker.Begin(shot)
	if err != nil {
		s.logger.Warn("capture rejected", "error", err)
		return nil, err
	}
	s.logger.Debug("session started", "session", sess.ID, "source", shot.Source,
		"viewport", fmt.Sprintf("%gx%g", shot.Viewport.Width, shot.Viewport.Height),
		"reported_dpr", shot.ReportedDPR)
	return sess, nil
}

// Snip crops circle out of the session's screenshot, exports it and ends the
// session. A session that was already snipped or canceled fails with
// session.ErrSessionEnded and nothing is processed. Crop failures are reported as a capture failure; sink failures
// only shape the composite status.
func (s *Snipper) Snip(ctx context.Context, sess *session.Session, circle types.Circle, targets sink.Targets) (Result, error) {
	if err := sess.Claim(); err != nil {
		s.logger.Warn("snip rejected", "session", sess.ID, "error", err)
		return Result{}, err
	}
	defer sess.End()

	shot := sess.Screenshot
	png, geometry, err := s.cropper.ProcessWithGeometry(shot.Image, circle, shot.Viewport)
	if err != nil {
		s.fail(err)
		return Result{}, err
	}

	result := Result{
		PNG:      png,
		Filename: utils.GenerateFilename(s.now()),
		Geometry: geometry,
	}
	result.Status = s.exporter.Export(png, result.Filename, targets)

	if s.captioner != nil {
		s.caption(ctx, &result)
	}

	s.logger.Info("snip complete",
		"session", sess.ID,
		"filename", result.Filename,
		"size", geometry.Diameter,
		"status", result.Status.String(),
		"elapsed", sess.Duration())

	if !result.Status.Any() && (targets.Clipboard || targets.File) {
		s.show(NothingExported)
		return result, ErrNoOutput
	}
	if msg := result.Status.String(); msg != "" {
		s.show(msg)
	}
	return result, nil
}

// Capture begins a session for shot and snips circle out of it
func (s *Snipper) Capture(ctx context.Context, shot types.Screenshot, circle types.Circle, targets sink.Targets) (Result, error) {
	sess, err := s.Begin(shot)
	if err != nil {
		s.fail(err)
		return Result{}, err
	}
	return s.Snip(ctx, sess, circle, targets)
}

// Cancel discards a session without processing it
func (s *Snipper) Cancel(sess *session.Session) {
	s.logger.Debug("session canceled", "session", sess.ID)
	sess.End()
}

// Cropper returns the underlying cropper
func (s *Snipper) Cropper() *cropper.CircleCropper {
	return s.cropper
}

func (s *Snipper) caption(ctx context.Context, result *Result) {
	c, err := s.captioner.Describe(ctx, result.PNG)
	if err != nil {
		s.logger.Warn("caption failed", "error", err)
		return
	}
	result.Caption = c
	result.Status.Captioned = true

	if file := s.exporter.File(); file != nil && result.Status.Saved {
		if _, err := file.WriteSidecar(result.Filename, c.Alt); err != nil {
			s.logger.Warn("caption sidecar failed", "error", err)
		}
	}
}

func (s *Snipper) fail(err error) {
	s.logger.Error("capture failed", "error", err)
	s.show(notify.CaptureFailed(err))
}

func (s *Snipper) show(message string) {
	if err := s.notifier.Show(notify.AppID, message); err != nil {
		s.logger.Warn("notification failed", "error", err)
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
