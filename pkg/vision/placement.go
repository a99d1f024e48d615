// Package vision suggests where to place the selection circle on a
// screenshot by scoring edge and contrast saliency.
package vision

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/circle-snip/pkg/cropper"
	"github.com/menta2k/circle-snip/pkg/selection"
	"github.com/menta2k/circle-snip/pkg/types"
)

// Placer scores screenshot regions and suggests a circle position
type Placer struct {
	config Config
}

// Config holds configuration for saliency scoring
type Config struct {
	EdgeWeight     float64
	ContrastWeight float64
	// AnalysisSize is the longest side of the raster the saliency map is computed on
	AnalysisSize int
}

// New creates a Placer with default configuration
func New() *Placer {
	return NewWithConfig(Config{
		EdgeWeight:     0.7,
		ContrastWeight: 0.3,
		AnalysisSize:   192,
	})
}

// NewWithConfig creates a Placer with custom configuration
func NewWithConfig(config Config) *Placer {
	if config.AnalysisSize <= 0 {
		config.AnalysisSize = 192
	}
	return &Placer{config: config}
}

// SaliencyMap returns per-pixel saliency for a downscaled copy of img, and
// the factor from source pixels to map pixels.
func (p *Placer) SaliencyMap(img image.Image) ([][]float64, float64) {
	b := img.Bounds()
	// Fit returns an unscaled clone when img already fits
	thumb := imaging.Fit(img, p.config.AnalysisSize, p.config.AnalysisSize, imaging.Box)
	w, h := thumb.Bounds().Dx(), thumb.Bounds().Dy()

	lum := make([][]float64, h)
	var mean float64
	for y := 0; y < h; y++ {
		lum[y] = make([]float64, w)
		i := y * thumb.Stride
		for x := 0; x < w; x++ {
			r, g, bl, a := thumb.Pix[i], thumb.Pix[i+1], thumb.Pix[i+2], thumb.Pix[i+3]
			v := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 255 * float64(a) / 255
			lum[y][x] = v
			mean += v
			i += 4
		}
	}
	if w*h > 0 {
		mean /= float64(w * h)
	}

	m := make([][]float64, h)
	for y := 0; y < h; y++ {
		m[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			var edge float64
			var n int
			for _, o := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := x+o[0], y+o[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				edge += math.Abs(lum[y][x] - lum[ny][nx])
				n++
			}
			if n > 0 {
				edge /= float64(n)
			}
			m[y][x] = p.config.EdgeWeight*edge + p.config.ContrastWeight*math.Abs(lum[y][x]-mean)
		}
	}

	return m, float64(w) / float64(b.Dx())
}

// Suggest returns a circle of the given CSS diameter placed over the most
// salient part of the screenshot while staying inside the viewport padding.
// Equal scores resolve toward the viewport center, so a featureless
// screenshot yields the centered default.
func (p *Placer) Suggest(img image.Image, viewport types.Viewport, diameter float64) types.Circle {
	if diameter <= 0 {
		diameter = selection.DefaultDiameter
	}
	center := types.Circle{X: viewport.Width / 2, Y: viewport.Height / 2, Diameter: diameter}
	b := img.Bounds()
	if !viewport.Valid() || b.Empty() {
		return center
	}

	sal, toMap := p.SaliencyMap(img)
	h := len(sal)
	if h == 0 {
		return center
	}
	w := len(sal[0])
	integral := summedArea(sal)

	_, _, scale := cropper.DeriveScale(b.Dx(), b.Dy(), viewport)
	k := scale * toMap // CSS px -> map px
	half := diameter * k / 2

	xs := candidates(viewport.Width, diameter, k)
	ys := candidates(viewport.Height, diameter, k)
	cx, cy := center.X*k, center.Y*k

	best := center
	bestScore, bestDist := -1.0, math.Inf(1)
	for _, ty := range ys {
		y0, y1 := clampInt(int(math.Round(ty-half)), 0, h), clampInt(int(math.Round(ty+half)), 0, h)
		for _, tx := range xs {
			x0, x1 := clampInt(int(math.Round(tx-half)), 0, w), clampInt(int(math.Round(tx+half)), 0, w)
			score := integral[y1][x1] - integral[y0][x1] - integral[y1][x0] + integral[y0][x0]
			dist := math.Hypot(tx-cx, ty-cy)
			if score > bestScore+1e-9 || (math.Abs(score-bestScore) <= 1e-9 && dist < bestDist) {
				bestScore, bestDist = score, dist
				best = types.Circle{X: tx / k, Y: ty / k, Diameter: diameter}
			}
		}
	}
	return best
}

// candidates lists map-space centers along one axis that keep the circle
// inside the padded viewport, or just the middle when it cannot fit.
func candidates(extent, diameter, k float64) []float64 {
	lo := selection.Padding + diameter/2
	hi := extent - selection.Padding - diameter/2
	if hi < lo {
		return []float64{extent / 2 * k}
	}
	var out []float64
	for t := math.Ceil(lo * k); t <= math.Floor(hi*k); t++ {
		out = append(out, t)
	}
	if len(out) == 0 {
		out = append(out, (lo+hi)/2*k)
	}
	return out
}

func summedArea(m [][]float64) [][]float64 {
	h, w := len(m), len(m[0])
	s := make([][]float64, h+1)
	s[0] = make([]float64, w+1)
	for y := 0; y < h; y++ {
		s[y+1] = make([]float64, w+1)
		var row float64
		for x := 0; x < w; x++ {
			row += m[y][x]
			s[y+1][x+1] = s[y][x+1] + row
		}
	}
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
