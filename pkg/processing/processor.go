package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/circle-snip/pkg/types"
)

// maxSourceBytes bounds screenshots fetched over HTTP
const maxSourceBytes = 64 << 20

// Processor handles decoding, encoding and auxiliary rendering of snips
type Processor struct {
	compression png.CompressionLevel
}

// NewProcessor creates a new image processor with default PNG compression
func NewProcessor() *Processor {
	return &Processor{compression: png.DefaultCompression}
}

// NewProcessorWithCompression creates a processor using the given PNG compression level
func NewProcessorWithCompression(level png.CompressionLevel) *Processor {
	return &Processor{compression: level}
}

// ParseCompression maps a configured compression name to a PNG level.
// An empty name selects the default level.
func ParseCompression(name string) (png.CompressionLevel, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return png.DefaultCompression, nil
	case "best":
		return png.BestCompression, nil
	case "fast":
		return png.BestSpeed, nil
	case "none":
		return png.NoCompression, nil
	}
	return png.DefaultCompression, fmt.Errorf("unknown PNG compression %q", name)
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Format      string
}

// FetchURL downloads raw screenshot bytes from an http(s) URL
func (p *Processor) FetchURL(imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "CircleSnip/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// LoadSource returns the encoded bytes behind a data URL, an http(s) URL or a file path
func (p *Processor) LoadSource(source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "data:"):
		data, _, err := DecodeDataURL(source)
		return data, err
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return p.FetchURL(source)
	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read image file: %w", err)
		}
		return data, nil
	}
}

// DecodeImage decodes PNG, JPEG, GIF or WebP bytes at their native resolution
func (p *Processor) DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image: empty input")
	}

	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, format, nil
	}

	// Fallback: libwebp handles extended WebP variants the pure-Go decoder rejects
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}

	return nil, "", fmt.Errorf("image: unknown or unsupported format")
}

// EncodePNG encodes an image as PNG, keeping its alpha channel
func (p *Processor) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: p.compression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeWebP encodes an image as WebP. Lossless output keeps alpha exactly.
func (p *Processor) EncodeWebP(img image.Image, lossless bool, quality int) ([]byte, error) {
	var buf bytes.Buffer
	opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default: // png
		return imaging.Save(img, path, imaging.PNGCompressionLevel(p.compression))
	}
}

// GetImageInfo returns basic information about an image
func (p *Processor) GetImageInfo(img image.Image, format string) ImageInfo {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	info := ImageInfo{Width: width, Height: height, Format: format}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// Thumbnail scales an image down so its longest side is at most maxDim.
// Images that already fit are returned unchanged.
func (p *Processor) Thumbnail(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

// PreviewPNG renders a PNG thumbnail of an encoded snip for on-screen preview
func (p *Processor) PreviewPNG(snip []byte, maxDim int) ([]byte, error) {
	img, _, err := p.DecodeImage(snip)
	if err != nil {
		return nil, err
	}
	return p.EncodePNG(p.Thumbnail(img, maxDim))
}

// DecodeDataURL splits a base64 data URL into its payload and media type
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, "", fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(dataURL[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL: missing payload separator")
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("unsupported data URL encoding (base64 required)")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("malformed data URL payload: %w", err)
	}
	return data, mime, nil
}

// EncodeDataURL builds a base64 data URL for the given payload
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// CreateDebugOverlay draws the sampled source square, the circle outline and
// the circle center on a copy of the screenshot.
func (p *Processor) CreateDebugOverlay(img image.Image, g types.Geometry) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	gold := color.NRGBA{255, 204, 0, 255} // source square
	green := color.NRGBA{0, 255, 0, 255}  // circle outline
	red := color.NRGBA{255, 0, 0, 255}    // circle center
	blue := color.NRGBA{0, 170, 255, 255} // image center
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h))))
	cross := int(math.Max(4, 0.01*float64(minInt(w, h))))

	x0, y0, x1, y1 := g.SourceBounds()
	drawBox(nrgba, x0, y0, x1, y1, gold, stroke)
	drawCircle(nrgba, g.SourceX+g.Radius, g.SourceY+g.Radius, g.Radius, green)

	drawHLine(nrgba, g.CenterY, g.CenterX-cross, g.CenterX+cross, red)
	drawVLine(nrgba, g.CenterX, g.CenterY-cross, g.CenterY+cross, red)

	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, stroke int) {
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawCircle(img *image.NRGBA, cx, cy, r float64, c color.NRGBA) {
	if r <= 0 {
		return
	}
	steps := int(math.Max(64, 2*math.Pi*r))
	for i := 0; i < steps; i++ {
		theta := 2 * math.Pi * float64(i) / float64(steps)
		x := int(math.Floor(cx + r*math.Cos(theta)))
		y := int(math.Floor(cy + r*math.Sin(theta)))
		if image.Pt(x, y).In(img.Bounds()) {
			img.SetNRGBA(x, y, c)
		}
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
