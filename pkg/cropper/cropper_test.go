package cropper

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/menta2k/circle-snip/pkg/processing"
	"github.com/menta2k/circle-snip/pkg/types"
)

// createTestImage creates an opaque gradient image
func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			img.Set(x, y, color.RGBA{r, g, 128, 255})
		}
	}
	return img
}

func encodeTestImage(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func decodePNG(t testing.TB, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a valid PNG: %v", err)
	}
	return img
}

func alphaAt(img image.Image, x, y int) uint8 {
	_, _, _, a := img.At(x, y).RGBA()
	return uint8(a >> 8)
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -1 && d <= 1
}

func TestNew(t *testing.T) {
	c := New()
	if c == nil {
		t.Fatal("New() returned nil")
	}
	if c.config.ScalePolicy != ScaleAverage {
		t.Errorf("Expected average scale policy by default, got %q", c.config.ScalePolicy)
	}
	if c.config.MaxDiameter != DefaultMaxDiameter {
		t.Errorf("Expected max diameter %d, got %d", DefaultMaxDiameter, c.config.MaxDiameter)
	}
}

func TestNewWithConfigFillsDefaults(t *testing.T) {
	c := NewWithConfig(CropConfig{Interpolation: InterpolationBiLinear})
	if c.config.MaxDiameter != DefaultMaxDiameter {
		t.Errorf("Expected max diameter default, got %d", c.config.MaxDiameter)
	}
	if c.config.ScalePolicy != ScaleAverage {
		t.Errorf("Expected average policy default, got %q", c.config.ScalePolicy)
	}
}

func TestDeriveScale(t *testing.T) {
	viewport := types.Viewport{Width: 1280, Height: 720}
	for _, k := range []float64{0.5, 0.75, 1, 1.25, 1.5, 2, 2.25, 3} {
		w := int(1280 * k)
		h := int(720 * k)
		sx, sy, s := DeriveScale(w, h, viewport)
		if math.Abs(s-k) > 1e-9 || math.Abs(sx-k) > 1e-9 || math.Abs(sy-k) > 1e-9 {
			t.Errorf("k=%g: got scaleX=%g scaleY=%g scale=%g", k, sx, sy, s)
		}
	}
}

func TestDeriveScaleAveragesAxes(t *testing.T) {
	_, _, s := DeriveScale(800, 600, types.Viewport{Width: 400, Height: 200})
	if s != 2.5 {
		t.Errorf("Expected averaged scale 2.5, got %g", s)
	}
}

func TestOutputSizeLaw(t *testing.T) {
	c := New()
	viewport := types.Viewport{Width: 400, Height: 300}
	for _, k := range []float64{0.5, 1, 1.25, 2, 3} {
		src := createTestImage(int(400*k), int(300*k))
		for _, d := range []float64{1, 17.3, 33.3, 64.5, 100, 150} {
			result, err := c.Crop(src, types.Circle{X: 200, Y: 150, Diameter: d}, viewport)
			if err != nil {
				t.Fatalf("k=%g d=%g: %v", k, d, err)
			}
			want := int(math.Floor(d*k + 0.5))
			b := result.Image.Bounds()
			if b.Dx() != want || b.Dy() != want {
				t.Errorf("k=%g d=%g: expected %dx%d, got %dx%d", k, d, want, want, b.Dx(), b.Dy())
			}
		}
	}
}

func TestEndToEnd(t *testing.T) {
	c := New()
	src := createTestImage(800, 600)
	data := encodeTestImage(t, src)

	out, err := c.Process(data, types.Circle{X: 200, Y: 150, Diameter: 100}, types.Viewport{Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	img := decodePNG(t, out)
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("Expected 200x200 output, got %dx%d", b.Dx(), b.Dy())
	}

	if a := alphaAt(img, 100, 100); a != 255 {
		t.Errorf("Expected opaque center, got alpha %d", a)
	}
	for _, p := range []image.Point{{0, 0}, {199, 0}, {0, 199}, {199, 199}} {
		if a := alphaAt(img, p.X, p.Y); a != 0 {
			t.Errorf("Expected transparent corner %v, got alpha %d", p, a)
		}
	}

	// Output (x, y) samples source (300+x, 200+y)
	for _, p := range []image.Point{{100, 100}, {100, 50}, {60, 140}} {
		want := src.RGBAAt(300+p.X, 200+p.Y)
		r, g, b, _ := img.At(p.X, p.Y).RGBA()
		if !near(uint8(r>>8), want.R) || !near(uint8(g>>8), want.G) || !near(uint8(b>>8), want.B) {
			t.Errorf("pixel %v: got (%d,%d,%d), expected source %v", p, r>>8, g>>8, b>>8, want)
		}
	}
}

func TestEndToEndGeometry(t *testing.T) {
	c := New()
	g, err := c.ComputeGeometry(image.Pt(800, 600), types.Circle{X: 200, Y: 150, Diameter: 100}, types.Viewport{Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("ComputeGeometry failed: %v", err)
	}
	if g.Scale != 2 || g.Diameter != 200 || g.Radius != 100 {
		t.Errorf("unexpected geometry %+v", g)
	}
	x0, y0, x1, y1 := g.SourceBounds()
	if x0 != 300 || y0 != 200 || x1 != 500 || y1 != 400 {
		t.Errorf("Expected source rect (300,200)-(500,400), got (%d,%d)-(%d,%d)", x0, y0, x1, y1)
	}
}

func TestTransparencyOutsideCircle(t *testing.T) {
	c := New()
	src := createTestImage(800, 600)
	for _, d := range []float64{40, 51, 100, 127.5} {
		result, err := c.Crop(src, types.Circle{X: 200, Y: 150, Diameter: d}, types.Viewport{Width: 400, Height: 300})
		if err != nil {
			t.Fatalf("d=%g: %v", d, err)
		}
		n := result.Image.Bounds().Dx()
		r := float64(n) / 2
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				dist := math.Hypot(float64(x)+0.5-r, float64(y)+0.5-r)
				a := result.Image.RGBAAt(x, y).A
				if dist > r && a != 0 {
					t.Fatalf("d=%g: pixel (%d,%d) at distance %.2f > %.2f has alpha %d", d, x, y, dist, r, a)
				}
				if dist < r-1 && a != 255 {
					t.Fatalf("d=%g: pixel (%d,%d) at distance %.2f < %.2f has alpha %d", d, x, y, dist, r-1, a)
				}
			}
		}
	}
}

func TestEdgeIsAntiAliased(t *testing.T) {
	c := New()
	src := createTestImage(400, 400)
	result, err := c.Crop(src, types.Circle{X: 200, Y: 200, Diameter: 150}, types.Viewport{Width: 400, Height: 400})
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	partial := 0
	for _, a := range alphaValues(result.Image) {
		if a > 0 && a < 255 {
			partial++
		}
	}
	if partial == 0 {
		t.Error("Expected partially covered edge pixels")
	}
}

func alphaValues(img *image.RGBA) []uint8 {
	out := make([]uint8, 0, len(img.Pix)/4)
	for i := 3; i < len(img.Pix); i += 4 {
		out = append(out, img.Pix[i])
	}
	return out
}

func TestOutOfBoundsCircle(t *testing.T) {
	c := New()
	src := createTestImage(800, 600)
	data := encodeTestImage(t, src)
	viewport := types.Viewport{Width: 400, Height: 300}

	// Partially outside: centered on the top-left corner
	out, err := c.Process(data, types.Circle{X: 0, Y: 0, Diameter: 100}, viewport)
	if err != nil {
		t.Fatalf("partial out-of-bounds circle failed: %v", err)
	}
	img := decodePNG(t, out)
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("Expected 200x200 output, got %dx%d", b.Dx(), b.Dy())
	}
	if a := alphaAt(img, 60, 60); a != 0 {
		t.Errorf("Expected transparency where the source does not exist, got alpha %d", a)
	}
	if a := alphaAt(img, 140, 140); a != 255 {
		t.Errorf("Expected opaque pixel inside source bounds, got alpha %d", a)
	}

	// Fully outside
	out, err = c.Process(data, types.Circle{X: -500, Y: -500, Diameter: 50}, viewport)
	if err != nil {
		t.Fatalf("fully out-of-bounds circle failed: %v", err)
	}
	img = decodePNG(t, out)
	b := img.Bounds()
	if b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("Expected 100x100 output, got %dx%d", b.Dx(), b.Dy())
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if a := alphaAt(img, x, y); a != 0 {
				t.Fatalf("Expected fully transparent output, pixel (%d,%d) alpha %d", x, y, a)
			}
		}
	}
}

func TestOddDiameter(t *testing.T) {
	c := New()
	src := createTestImage(100, 100)
	result, err := c.Crop(src, types.Circle{X: 50, Y: 50, Diameter: 51}, types.Viewport{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if result.Geometry.Diameter != 51 || result.Geometry.SourceX != 24.5 {
		t.Errorf("unexpected geometry %+v", result.Geometry)
	}
	if a := result.Image.RGBAAt(25, 25).A; a != 255 {
		t.Errorf("Expected opaque center, got alpha %d", a)
	}
}

func TestScaleBelowOne(t *testing.T) {
	c := New()
	src := createTestImage(200, 150)
	result, err := c.Crop(src, types.Circle{X: 200, Y: 150, Diameter: 100}, types.Viewport{Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if result.Geometry.Scale != 0.5 || result.Geometry.Diameter != 50 {
		t.Errorf("unexpected geometry %+v", result.Geometry)
	}
}

func TestStrictScalePolicy(t *testing.T) {
	src := createTestImage(800, 600)
	circle := types.Circle{X: 100, Y: 100, Diameter: 50}
	viewport := types.Viewport{Width: 400, Height: 200}

	strict := NewWithConfig(CropConfig{ScalePolicy: ScaleStrict, ScaleTolerance: 0.01})
	_, err := strict.Crop(src, circle, viewport)
	if !errors.Is(err, ErrScaleMismatch) {
		t.Fatalf("Expected ErrScaleMismatch, got %v", err)
	}
	if !IsProcessError(err) {
		t.Errorf("Expected a ProcessError, got %T", err)
	}

	tolerant := New()
	result, err := tolerant.Crop(src, circle, viewport)
	if err != nil {
		t.Fatalf("average policy should accept mismatched axes: %v", err)
	}
	if result.Geometry.Scale != 2.5 {
		t.Errorf("Expected scale 2.5, got %g", result.Geometry.Scale)
	}
}

func TestInvalidInput(t *testing.T) {
	c := New()
	src := createTestImage(100, 100)
	viewport := types.Viewport{Width: 100, Height: 100}

	tests := []struct {
		name     string
		circle   types.Circle
		viewport types.Viewport
		want     error
	}{
		{"zero diameter", types.Circle{X: 10, Y: 10, Diameter: 0}, viewport, ErrInvalidCircle},
		{"negative diameter", types.Circle{X: 10, Y: 10, Diameter: -5}, viewport, ErrInvalidCircle},
		{"nan center", types.Circle{X: math.NaN(), Y: 10, Diameter: 5}, viewport, ErrInvalidCircle},
		{"huge center", types.Circle{X: 1e300, Y: 10, Diameter: 5}, viewport, ErrInvalidCircle},
		{"huge negative center", types.Circle{X: 10, Y: -1e18, Diameter: 5}, viewport, ErrInvalidCircle},
		{"zero viewport", types.Circle{X: 10, Y: 10, Diameter: 5}, types.Viewport{}, ErrInvalidViewport},
		{"rounds to nothing", types.Circle{X: 10, Y: 10, Diameter: 0.2}, viewport, ErrSurfaceSize},
	}

	for _, test := range tests {
		_, err := c.Crop(src, test.circle, test.viewport)
		if !errors.Is(err, test.want) {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, err)
		}
		if !IsProcessError(err) {
			t.Errorf("%s: expected ProcessError, got %T", test.name, err)
		}
	}
}

func TestMaxDiameter(t *testing.T) {
	c := NewWithConfig(CropConfig{MaxDiameter: 100})
	_, err := c.Crop(createTestImage(400, 300), types.Circle{X: 100, Y: 100, Diameter: 101}, types.Viewport{Width: 400, Height: 300})
	if !errors.Is(err, ErrSurfaceSize) {
		t.Errorf("Expected ErrSurfaceSize, got %v", err)
	}
}

func TestDecodeError(t *testing.T) {
	c := New()
	circle := types.Circle{X: 10, Y: 10, Diameter: 5}
	viewport := types.Viewport{Width: 100, Height: 100}

	_, err := c.Process([]byte("definitely not an image"), circle, viewport)
	if !IsDecodeError(err) {
		t.Errorf("Expected DecodeError, got %v", err)
	}
	if IsProcessError(err) {
		t.Error("DecodeError must not be reported as ProcessError")
	}

	_, err = c.ProcessDataURL("data:text/plain,hello", circle, viewport)
	if !IsDecodeError(err) {
		t.Errorf("Expected DecodeError for non-base64 data URL, got %v", err)
	}
}

func TestProcessDataURL(t *testing.T) {
	c := New()
	data := encodeTestImage(t, createTestImage(200, 200))
	dataURL := processing.EncodeDataURL("image/png", data)

	out, err := c.ProcessDataURL(dataURL, types.Circle{X: 100, Y: 100, Diameter: 40}, types.Viewport{Width: 200, Height: 200})
	if err != nil {
		t.Fatalf("ProcessDataURL failed: %v", err)
	}
	if !strings.HasPrefix(out, "data:image/png;base64,") {
		t.Errorf("Expected PNG data URL, got prefix %q", out[:min(len(out), 30)])
	}
}

func TestCropDoesNotMutateSource(t *testing.T) {
	c := New()
	src := createTestImage(300, 300)
	before := append([]byte(nil), src.Pix...)
	if _, err := c.Crop(src, types.Circle{X: 150, Y: 150, Diameter: 120}, types.Viewport{Width: 300, Height: 300}); err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if !bytes.Equal(before, src.Pix) {
		t.Error("source image was modified")
	}
}

func TestSubImageSource(t *testing.T) {
	c := New()
	full := createTestImage(400, 400)
	sub := full.SubImage(image.Rect(100, 100, 300, 300))
	result, err := c.Crop(sub, types.Circle{X: 100, Y: 100, Diameter: 50}, types.Viewport{Width: 200, Height: 200})
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	got := result.Image.RGBAAt(25, 25)
	want := full.RGBAAt(200, 200)
	if !near(got.R, want.R) || !near(got.G, want.G) {
		t.Errorf("Expected %v at center, got %v", want, got)
	}
}

func TestConcurrentProcess(t *testing.T) {
	c := New()
	data := encodeTestImage(t, createTestImage(400, 300))
	circle := types.Circle{X: 150, Y: 120, Diameter: 80}
	viewport := types.Viewport{Width: 200, Height: 150}

	want, err := c.Process(data, circle, viewport)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Process(data, circle, viewport)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("call %d failed: %v", i, errs[i])
		}
		if !bytes.Equal(results[i], want) {
			t.Errorf("call %d produced different output", i)
		}
	}
}

func TestInterpolators(t *testing.T) {
	src := createTestImage(400, 300)
	for _, name := range []string{InterpolationNearest, InterpolationApproxBiLinear, InterpolationBiLinear, InterpolationCatmullRom} {
		c := NewWithConfig(CropConfig{Interpolation: name})
		result, err := c.Crop(src, types.Circle{X: 100, Y: 75, Diameter: 41}, types.Viewport{Width: 200, Height: 150})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if a := result.Image.RGBAAt(41, 41).A; a != 255 {
			t.Errorf("%s: expected opaque center, got alpha %d", name, a)
		}
	}
}

func BenchmarkProcess(b *testing.B) {
	c := New()
	data := encodeTestImage(b, createTestImage(2560, 1440))
	circle := types.Circle{X: 640, Y: 360, Diameter: 256}
	viewport := types.Viewport{Width: 1280, Height: 720}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Process(data, circle, viewport)
	}
}

func BenchmarkCrop(b *testing.B) {
	c := New()
	src := createTestImage(2560, 1440)
	circle := types.Circle{X: 640, Y: 360, Diameter: 512}
	viewport := types.Viewport{Width: 1280, Height: 720}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Crop(src, circle, viewport)
	}
}
