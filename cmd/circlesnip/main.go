package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	circlesnip "github.com/menta2k/circle-snip"
	"github.com/menta2k/circle-snip/internal/config"
	"github.com/menta2k/circle-snip/internal/utils"
	"github.com/menta2k/circle-snip/pkg/browser"
	"github.com/menta2k/circle-snip/pkg/caption"
	"github.com/menta2k/circle-snip/pkg/client"
	"github.com/menta2k/circle-snip/pkg/cropper"
	"github.com/menta2k/circle-snip/pkg/license"
	"github.com/menta2k/circle-snip/pkg/llamacpp"
	"github.com/menta2k/circle-snip/pkg/notify"
	"github.com/menta2k/circle-snip/pkg/ollama"
	"github.com/menta2k/circle-snip/pkg/processing"
	"github.com/menta2k/circle-snip/pkg/selection"
	"github.com/menta2k/circle-snip/pkg/sink"
	"github.com/menta2k/circle-snip/pkg/types"
	"github.com/menta2k/circle-snip/pkg/vision"
)

type options struct {
	configPath string
	in         string
	page       string
	x, y, d    float64
	vw, vh     float64
	snap       bool
	fit        bool
	auto       bool
	debug      bool
	preview    int
	checkout   string
}

func main() {
	var opts options
	cfg := config.Default()

	flag.StringVar(&opts.configPath, "config", "", "config file (.json or .yaml); default "+config.GetConfigPath())
	flag.StringVar(&opts.in, "in", "", "screenshot path, URL or data URL (png/jpg/webp)")
	flag.StringVar(&opts.page, "page", "", "web page to capture with headless Chrome instead of -in")
	flag.Float64Var(&opts.x, "x", -1, "circle center X in CSS pixels (default: viewport center)")
	flag.Float64Var(&opts.y, "y", -1, "circle center Y in CSS pixels (default: viewport center)")
	flag.Float64Var(&opts.d, "d", selection.DefaultDiameter, "circle diameter in CSS pixels")
	flag.Float64Var(&opts.vw, "vw", 0, "CSS viewport width the screenshot was taken at (default: image width)")
	flag.Float64Var(&opts.vh, "vh", 0, "CSS viewport height the screenshot was taken at (default: image height)")
	flag.BoolVar(&opts.snap, "snap", false, "snap the diameter to the nearest preset size")
	flag.BoolVar(&opts.fit, "fit", false, "keep the circle inside the viewport like the interactive overlay")
	flag.BoolVar(&opts.auto, "auto", false, "place the circle over the most salient region when -x/-y are not given")
	flag.BoolVar(&opts.debug, "debug", false, "write a debug overlay of the sampled region")
	flag.IntVar(&opts.preview, "preview", 0, "also write a preview thumbnail with this max side (px)")
	flag.StringVar(&opts.checkout, "checkout", "", "print a checkout link for monthly|lifetime and exit")

	flag.StringVar(&cfg.Output.Dir, "out", cfg.Output.Dir, "output directory")
	flag.StringVar(&cfg.Output.Format, "format", cfg.Output.Format, "saved file format: png|webp")
	flag.StringVar(&cfg.Output.Compression, "compression", cfg.Output.Compression, "PNG compression: default|best|fast|none")
	flag.BoolVar(&cfg.Output.Clipboard, "copy", cfg.Output.Clipboard, "copy the snip to the clipboard")
	flag.BoolVar(&cfg.Output.Save, "save", cfg.Output.Save, "save the snip to the output directory")
	flag.StringVar(&cfg.Cropper.ScalePolicy, "scale-policy", cfg.Cropper.ScalePolicy, "average|strict")
	flag.StringVar(&cfg.Cropper.Interpolation, "interp", cfg.Cropper.Interpolation, "catmullrom|bilinear|approxbilinear|nearest")
	flag.BoolVar(&cfg.Caption.Enabled, "caption", cfg.Caption.Enabled, "generate alt text with a local vision model")
	flag.StringVar(&cfg.Caption.Backend, "backend", cfg.Caption.Backend, "caption backend: ollama or llamacpp")
	flag.StringVar(&cfg.Caption.URL, "caption-url", cfg.Caption.URL, "caption backend URL")
	flag.StringVar(&cfg.Caption.Model, "model", cfg.Caption.Model, "caption model name")
	flag.StringVar(&cfg.Browser.RemoteURL, "chrome", cfg.Browser.RemoteURL, "DevTools URL of a running Chrome (default: launch one)")
	flag.Float64Var(&cfg.Browser.DeviceScaleFactor, "dpr", cfg.Browser.DeviceScaleFactor, "device scale factor for -page captures")
	flag.StringVar(&cfg.License.ServerURL, "license-server", cfg.License.ServerURL, "license service URL (empty disables checks)")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug|info|warn|error")
	flag.Parse()

	if err := loadConfig(cfg, opts.configPath); err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.checkout != "" {
		if err := printCheckout(ctx, cfg, opts.checkout); err != nil {
			fatal(err)
		}
		return
	}

	if opts.in == "" && opts.page == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in screenshot.png|URL [-vw 1280 -vh 800] [-x 640 -y 400 -d 256] [-out dir] [-format png|webp]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "       %s -page https://example.com [-dpr 2] [-x ... -y ... -d ...]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	if err := run(ctx, cfg, opts, logger); err != nil {
		if errors.Is(err, circlesnip.ErrNoOutput) {
			os.Exit(3)
		}
		fatal(err)
	}
}

// loadConfig applies a config file underneath the flags the user set explicitly
func loadConfig(cfg *config.Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return nil
		}
	}

	fromFile, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	merged := *fromFile
	override := func(name string, apply func()) {
		if set[name] {
			apply()
		}
	}
	override("out", func() { merged.Output.Dir = cfg.Output.Dir })
	override("format", func() { merged.Output.Format = cfg.Output.Format })
	override("compression", func() { merged.Output.Compression = cfg.Output.Compression })
	override("copy", func() { merged.Output.Clipboard = cfg.Output.Clipboard })
	override("save", func() { merged.Output.Save = cfg.Output.Save })
	override("scale-policy", func() { merged.Cropper.ScalePolicy = cfg.Cropper.ScalePolicy })
	override("interp", func() { merged.Cropper.Interpolation = cfg.Cropper.Interpolation })
	override("caption", func() { merged.Caption.Enabled = cfg.Caption.Enabled })
	override("backend", func() { merged.Caption.Backend = cfg.Caption.Backend })
	override("caption-url", func() { merged.Caption.URL = cfg.Caption.URL })
	override("model", func() { merged.Caption.Model = cfg.Caption.Model })
	override("chrome", func() { merged.Browser.RemoteURL = cfg.Browser.RemoteURL })
	override("dpr", func() { merged.Browser.DeviceScaleFactor = cfg.Browser.DeviceScaleFactor })
	override("license-server", func() { merged.License.ServerURL = cfg.License.ServerURL })
	override("log-level", func() { merged.Log.Level = cfg.Log.Level })

	*cfg = merged
	return nil
}

// notifyTimeout bounds how long the CLI waits for pending notifications
const notifyTimeout = 10 * time.Second

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) error {
	level, err := processing.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return err
	}
	processor := processing.NewProcessorWithCompression(level)

	var st *license.State
	var stateStore *license.StateStore
	if cfg.License.ServerURL != "" {
		path := cfg.License.StatePath
		if path == "" {
			path = license.DefaultStatePath()
		}
		stateStore = license.NewStateStore(path)

		st, err = stateStore.Load()
		if err != nil {
			return err
		}
		lc := license.NewClient(cfg.License.ServerURL)
		lc.SetLogger(logger)
		ent := lc.Verify(ctx, st)
		logger.Debug("license", "client_id", st.ClientID, "pro", ent.Pro, "source", ent.Source, "captures", st.CaptureCount)
		if !license.Allowed(ent, st.CaptureCount) {
			// persist the cleared cache before refusing
			stateStore.Save(st)
			return fmt.Errorf("the %d free captures are used up; run with -checkout monthly or -checkout lifetime", license.FreeCaptures)
		}
	}

	shot, err := loadScreenshot(ctx, cfg, opts, processor, logger)
	if err != nil {
		return err
	}

	circle := types.Circle{X: opts.x, Y: opts.y, Diameter: opts.d}
	if opts.snap {
		circle.Diameter = selection.Snap(circle.Diameter)
	}
	explicit := opts.x >= 0 && opts.y >= 0
	if !explicit && opts.auto {
		img, _, err := processor.DecodeImage(shot.Image)
		if err != nil {
			return &cropper.DecodeError{Err: err}
		}
		circle = vision.New().Suggest(img, shot.Viewport, circle.Diameter)
		explicit = true
	}
	if !explicit || opts.fit {
		sel := selection.New(shot.Viewport, circle.Diameter)
		if explicit {
			sel.MoveTo(circle.X, circle.Y)
		}
		circle = sel.Circle()
	}
	logger.Info("selection", "center", fmt.Sprintf("(%g, %g)", circle.X, circle.Y), "diameter", circle.Diameter)

	notifier := notify.NewNotifier(logger)
	// toasts are pushed in the background; let them out before the process exits
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		notify.Wait(wctx, notifier)
	}()

	snipper := circlesnip.New(circlesnip.Options{
		Cropper: cropper.CropConfig{
			Interpolation:  cfg.Cropper.Interpolation,
			ScalePolicy:    cropper.ScalePolicy(cfg.Cropper.ScalePolicy),
			ScaleTolerance: cfg.Cropper.ScaleTolerance,
			MaxDiameter:    cfg.Cropper.MaxDiameter,
		},
		Exporter:  newExporter(cfg, logger),
		Notifier:  notifier,
		Captioner: newCaptioner(cfg, logger),
		Logger:    logger,
	})
	snipper.Cropper().SetProcessor(processor)

	result, err := snipper.Capture(ctx, shot, circle, sink.Targets{
		Clipboard: cfg.Output.Clipboard,
		File:      cfg.Output.Save,
	})
	if err != nil && !errors.Is(err, circlesnip.ErrNoOutput) {
		return err
	}

	if st != nil {
		st.CaptureCount++
		if serr := stateStore.Save(st); serr != nil {
			logger.Warn("failed to save license state", "error", serr)
		}
	}

	if result.Status.Path != "" {
		fmt.Println(result.Status.Path)
	}
	if result.Caption != nil {
		fmt.Printf("alt: %s\n", result.Caption.Alt)
	}

	if opts.debug || opts.preview > 0 {
		writeExtras(processor, cfg, opts, shot, result, logger)
	}
	return err
}

func loadScreenshot(ctx context.Context, cfg *config.Config, opts options, processor *processing.Processor, logger *slog.Logger) (types.Screenshot, error) {
	if opts.page != "" {
		capturer := browser.NewCapturer(browser.Config{
			RemoteURL:         cfg.Browser.RemoteURL,
			Width:             cfg.Browser.Width,
			Height:            cfg.Browser.Height,
			DeviceScaleFactor: cfg.Browser.DeviceScaleFactor,
			Stealth:           cfg.Browser.Stealth,
			Timeout:           time.Duration(cfg.Browser.TimeoutSeconds) * time.Second,
			Logger:            logger,
		})
		defer capturer.Close()
		return capturer.CaptureVisible(ctx, opts.page)
	}

	data, err := processor.LoadSource(opts.in)
	if err != nil {
		return types.Screenshot{}, err
	}

	img, format, err := processor.DecodeImage(data)
	if err != nil {
		return types.Screenshot{}, &cropper.DecodeError{Err: err}
	}
	info := processor.GetImageInfo(img, format)
	logger.Debug("source", "path", opts.in, "format", info.Format,
		"size", fmt.Sprintf("%dx%d", info.Width, info.Height), "aspect", info.AspectRatio)

	viewport := types.Viewport{Width: opts.vw, Height: opts.vh}
	if viewport.Width <= 0 {
		viewport.Width = float64(info.Width)
	}
	if viewport.Height <= 0 {
		viewport.Height = float64(info.Height)
	}

	return types.Screenshot{Image: data, Viewport: viewport, Source: opts.in}, nil
}

func newExporter(cfg *config.Config, logger *slog.Logger) *sink.Exporter {
	var clip *sink.ClipboardSink
	if cfg.Output.Clipboard {
		clip = sink.NewClipboardSink(sink.SystemClipboard())
		clip.SetLogger(logger)
	}
	file := sink.NewFileSink(cfg.Output.Dir, cfg.Output.Format)
	file.SetLogger(logger)
	return sink.NewExporter(clip, file)
}

func newCaptioner(cfg *config.Config, logger *slog.Logger) *caption.Captioner {
	if !cfg.Caption.Enabled {
		return nil
	}

	var vc client.VisionClient
	var err error
	switch cfg.Caption.Backend {
	case "llamacpp":
		vc, err = llamacpp.NewClient(cfg.Caption.URL)
	default:
		vc, err = ollama.NewClient(cfg.Caption.URL)
	}
	if err != nil {
		logger.Warn("caption backend unavailable, continuing without alt text", "backend", cfg.Caption.Backend, "error", err)
		return nil
	}

	c := caption.NewCaptioner(vc, cfg.Caption.Model)
	c.SetPrompt(cfg.Caption.Prompt)
	c.SetLogger(logger)
	return c
}

func writeExtras(processor *processing.Processor, cfg *config.Config, opts options, shot types.Screenshot, result circlesnip.Result, logger *slog.Logger) {
	dir := sink.NewFileSink(cfg.Output.Dir, "png").Dir()
	if err := utils.EnsureDir(dir); err != nil {
		logger.Warn("cannot create output directory", "error", err)
		return
	}

	if opts.debug && result.Geometry.Diameter > 0 {
		img, _, err := processor.DecodeImage(shot.Image)
		if err == nil {
			overlay := processor.CreateDebugOverlay(img, result.Geometry)
			path := filepath.Join(dir, utils.ReplaceExt(result.Filename, "")+"_debug.png")
			if err := processor.SaveImage(overlay, path, "png", 0, false); err != nil {
				logger.Warn("debug overlay save failed", "error", err)
			} else {
				logger.Info("wrote debug overlay", "path", path)
			}
		}
	}

	if opts.preview > 0 && len(result.PNG) > 0 {
		data, err := processor.PreviewPNG(result.PNG, opts.preview)
		if err != nil {
			logger.Warn("preview failed", "error", err)
			return
		}
		path := filepath.Join(dir, utils.ReplaceExt(result.Filename, "")+"_preview.png")
		if err := os.WriteFile(path, data, 0644); err != nil {
			logger.Warn("preview save failed", "error", err)
			return
		}
		logger.Info("wrote preview", "path", path, "size", utils.FormatFileSize(int64(len(data))))
	}
}

func printCheckout(ctx context.Context, cfg *config.Config, priceType string) error {
	if cfg.License.ServerURL == "" {
		return errors.New("no license server configured")
	}
	path := cfg.License.StatePath
	if path == "" {
		path = license.DefaultStatePath()
	}
	st, err := license.NewStateStore(path).Load()
	if err != nil {
		return err
	}

	url, err := license.NewClient(cfg.License.ServerURL).CreateCheckout(ctx, license.CheckoutRequest{
		ClientID:  st.ClientID,
		PriceType: license.Type(strings.ToLower(priceType)),
	})
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "circlesnip: %v\n", err)
	os.Exit(1)
}
