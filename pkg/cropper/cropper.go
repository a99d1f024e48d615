package cropper

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"

	"github.com/menta2k/circle-snip/pkg/processing"
	"github.com/menta2k/circle-snip/pkg/types"
)

// ScalePolicy decides how disagreeing horizontal and vertical scales are handled
type ScalePolicy string

const (
	// ScaleAverage averages both axes (tolerant)
	ScaleAverage ScalePolicy = "average"
	// ScaleStrict fails when the axes differ by more than the configured tolerance
	ScaleStrict ScalePolicy = "strict"
)

// Interpolation names accepted in CropConfig
const (
	InterpolationCatmullRom     = "catmullrom"
	InterpolationBiLinear       = "bilinear"
	InterpolationApproxBiLinear = "approxbilinear"
	InterpolationNearest        = "nearest"
)

// DefaultMaxDiameter mirrors the largest canvas side browsers accept
const DefaultMaxDiameter = 16384

// maxCoordinate bounds a scaled circle center so it always fits an int
const maxCoordinate = 1 << 30

// circleSegments is the number of cubic arcs used to approximate the clip circle
const circleSegments = 8

// CircleCropper turns a CSS-pixel circle over a screenshot into a transparent,
// anti-aliased square crop at source resolution.
type CircleCropper struct {
	processor *processing.Processor
	config    CropConfig
	logger    *slog.Logger
}

// CropConfig holds configuration for circular cropping
type CropConfig struct {
	Interpolation  string
	ScalePolicy    ScalePolicy
	ScaleTolerance float64
	MaxDiameter    int
}

// DefaultConfig returns the configuration used by New
func DefaultConfig() CropConfig {
	return CropConfig{
		Interpolation:  InterpolationCatmullRom,
		ScalePolicy:    ScaleAverage,
		ScaleTolerance: 0.01,
		MaxDiameter:    DefaultMaxDiameter,
	}
}

// New creates a new CircleCropper with default configuration
func New() *CircleCropper {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new CircleCropper with custom configuration
func NewWithConfig(config CropConfig) *CircleCropper {
	if config.MaxDiameter <= 0 {
		config.MaxDiameter = DefaultMaxDiameter
	}
	if config.ScalePolicy == "" {
		config.ScalePolicy = ScaleAverage
	}
	return &CircleCropper{
		processor: processing.NewProcessor(),
		config:    config,
		logger:    slog.Default(),
	}
}

// SetProcessor allows setting a custom processor (e.g. another PNG compression level)
func (c *CircleCropper) SetProcessor(p *processing.Processor) {
	c.processor = p
}

// SetLogger sets the logger used for geometry diagnostics
func (c *CircleCropper) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// CropResult contains the result of a circular crop
type CropResult struct {
	Image    *image.RGBA
	Geometry types.Geometry
}

// DeriveScale computes the CSS-to-source scale from the decoded image size and
// the viewport measured at the same instant. The reported device pixel ratio
// is never consulted.
func DeriveScale(imgWidth, imgHeight int, viewport types.Viewport) (scaleX, scaleY, scale float64) {
	scaleX = float64(imgWidth) / viewport.Width
	scaleY = float64(imgHeight) / viewport.Height
	return scaleX, scaleY, (scaleX + scaleY) / 2
}

// ComputeGeometry maps a CSS circle onto a source image of the given size.
// Rounding to integers happens only after scaling.
func (c *CircleCropper) ComputeGeometry(size image.Point, circle types.Circle, viewport types.Viewport) (types.Geometry, error) {
	if !circle.Valid() {
		return types.Geometry{}, &ProcessError{Op: "validate circle", Err: fmt.Errorf("%w: %+v", ErrInvalidCircle, circle)}
	}
	if !viewport.Valid() {
		return types.Geometry{}, &ProcessError{Op: "validate viewport", Err: fmt.Errorf("%w: %+v", ErrInvalidViewport, viewport)}
	}
	if size.X <= 0 || size.Y <= 0 {
		return types.Geometry{}, &ProcessError{Op: "validate source", Err: fmt.Errorf("%w: source is %dx%d", ErrSurfaceSize, size.X, size.Y)}
	}

	scaleX, scaleY, scale := DeriveScale(size.X, size.Y, viewport)
	if c.config.ScalePolicy == ScaleStrict {
		if math.Abs(scaleX-scaleY) > c.config.ScaleTolerance*scale {
			return types.Geometry{}, &ProcessError{
				Op:  "derive scale",
				Err: fmt.Errorf("%w: x=%.4f y=%.4f", ErrScaleMismatch, scaleX, scaleY),
			}
		}
	}

	diameter := roundHalfUp(circle.Diameter * scale)
	if diameter < 1 || diameter > float64(c.config.MaxDiameter) {
		return types.Geometry{}, &ProcessError{
			Op:  "allocate surface",
			Err: fmt.Errorf("%w: %.0f px (max %d)", ErrSurfaceSize, diameter, c.config.MaxDiameter),
		}
	}

	centerX := roundHalfUp(circle.X * scale)
	centerY := roundHalfUp(circle.Y * scale)
	if math.Abs(centerX) > maxCoordinate || math.Abs(centerY) > maxCoordinate {
		return types.Geometry{}, &ProcessError{
			Op:  "validate circle",
			Err: fmt.Errorf("%w: center (%g, %g) is out of range", ErrInvalidCircle, circle.X, circle.Y),
		}
	}
	radius := diameter / 2

	return types.Geometry{
		ScaleX:   scaleX,
		ScaleY:   scaleY,
		Scale:    scale,
		Diameter: int(diameter),
		CenterX:  int(centerX),
		CenterY:  int(centerY),
		Radius:   radius,
		SourceX:  centerX - radius,
		SourceY:  centerY - radius,
	}, nil
}

// Crop draws the circular region of img into a new transparent square surface
func (c *CircleCropper) Crop(img image.Image, circle types.Circle, viewport types.Viewport) (result CropResult, err error) {
	bounds := img.Bounds()
	g, err := c.ComputeGeometry(bounds.Size(), circle, viewport)
	if err != nil {
		return CropResult{}, err
	}

	c.logger.Debug("circle crop",
		"image", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
		"viewport", fmt.Sprintf("%gx%g", viewport.Width, viewport.Height),
		"scale", g.Scale,
		"css", fmt.Sprintf("(%g, %g) d=%g", circle.X, circle.Y, circle.Diameter),
		"actual", fmt.Sprintf("(%d, %d) d=%d", g.CenterX, g.CenterY, g.Diameter),
		"source", fmt.Sprintf("(%g, %g)", g.SourceX, g.SourceY))

	defer func() {
		if r := recover(); r != nil {
			result = CropResult{}
			err = &ProcessError{Op: "draw", Err: fmt.Errorf("%v", r)}
		}
	}()

	n := g.Diameter
	// NewRGBA starts fully transparent
	dst := image.NewRGBA(image.Rect(0, 0, n, n))
	mask := circleMask(n, g.Radius)

	s2d := f64.Aff3{
		1, 0, -(g.SourceX + float64(bounds.Min.X)),
		0, 1, -(g.SourceY + float64(bounds.Min.Y)),
	}
	c.interpolator().Transform(dst, s2d, img, bounds, draw.Src, &draw.Options{
		DstMask:  mask,
		DstMaskP: image.Point{},
	})

	return CropResult{Image: dst, Geometry: g}, nil
}

// Process decodes an encoded screenshot, crops the circle and encodes the
// result as PNG with alpha.
func (c *CircleCropper) Process(source []byte, circle types.Circle, viewport types.Viewport) ([]byte, error) {
	data, _, err := c.ProcessWithGeometry(source, circle, viewport)
	return data, err
}

// ProcessWithGeometry is Process that also reports the geometry it used
func (c *CircleCropper) ProcessWithGeometry(source []byte, circle types.Circle, viewport types.Viewport) ([]byte, types.Geometry, error) {
	img, _, err := c.processor.DecodeImage(source)
	if err != nil {
		return nil, types.Geometry{}, &DecodeError{Err: err}
	}

	result, err := c.Crop(img, circle, viewport)
	if err != nil {
		return nil, types.Geometry{}, err
	}

	data, err := c.processor.EncodePNG(result.Image)
	if err != nil {
		return nil, types.Geometry{}, &ProcessError{Op: "encode png", Err: err}
	}
	return data, result.Geometry, nil
}

// ProcessDataURL is Process for data URL input and output
func (c *CircleCropper) ProcessDataURL(dataURL string, circle types.Circle, viewport types.Viewport) (string, error) {
	source, _, err := processing.DecodeDataURL(dataURL)
	if err != nil {
		return "", &DecodeError{Err: err}
	}
	data, err := c.Process(source, circle, viewport)
	if err != nil {
		return "", err
	}
	return processing.EncodeDataURL("image/png", data), nil
}

// ProcessScreenshot crops a circle out of a captured screenshot
func (c *CircleCropper) ProcessScreenshot(shot types.Screenshot, circle types.Circle) ([]byte, error) {
	return c.Process(shot.Image, circle, shot.Viewport)
}

func (c *CircleCropper) interpolator() draw.Interpolator {
	switch strings.ToLower(c.config.Interpolation) {
	case InterpolationNearest:
		return draw.NearestNeighbor
	case InterpolationApproxBiLinear:
		return draw.ApproxBiLinear
	case InterpolationBiLinear:
		return draw.BiLinear
	default:
		return draw.CatmullRom
	}
}

// circleMask rasterizes an anti-aliased disc of the given radius centered in
// an n x n coverage mask.
func circleMask(n int, radius float64) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, n, n))
	z := vector.NewRasterizer(n, n)

	step := 2 * math.Pi / circleSegments
	k := 4.0 / 3.0 * math.Tan(step/4)
	cx, cy, r := radius, radius, radius

	z.MoveTo(float32(cx+r), float32(cy))
	for i := 0; i < circleSegments; i++ {
		a0 := float64(i) * step
		a1 := a0 + step
		s0, c0 := math.Sincos(a0)
		s1, c1 := math.Sincos(a1)
		z.CubeTo(
			float32(cx+r*(c0-k*s0)), float32(cy+r*(s0+k*c0)),
			float32(cx+r*(c1+k*s1)), float32(cy+r*(s1-k*c1)),
			float32(cx+r*c1), float32(cy+r*s1),
		)
	}
	z.ClosePath()
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	// A pixel whose center lies outside the circle is fully transparent, so
	// the anti-aliased ramp sits just inside the rim.
	r2 := radius * radius
	for y := 0; y < n; y++ {
		dy := float64(y) + 0.5 - radius
		row := mask.Pix[y*mask.Stride : y*mask.Stride+n]
		for x := range row {
			dx := float64(x) + 0.5 - radius
			if dx*dx+dy*dy > r2 {
				row[x] = 0
			}
		}
	}
	return mask
}

// roundHalfUp rounds .5 toward positive infinity, including for negative values
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
