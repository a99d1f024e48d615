package types

import "math"

// Circle represents the user's selection in CSS pixel space.
// X and Y are the center relative to the viewport's top-left corner.
type Circle struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Diameter float64 `json:"diameter"`
}

// Radius returns half the diameter in CSS pixels
func (c Circle) Radius() float64 {
	return c.Diameter / 2
}

// Valid reports whether the circle has a finite center and a positive finite diameter
func (c Circle) Valid() bool {
	return finite(c.X) && finite(c.Y) && finite(c.Diameter) && c.Diameter > 0
}

// Viewport holds the CSS pixel size of the browsing context at capture time
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are positive and finite
func (v Viewport) Valid() bool {
	return finite(v.Width) && finite(v.Height) && v.Width > 0 && v.Height > 0
}

// Screenshot is an encoded raster of the visible area together with the
// viewport measured at the same instant.
type Screenshot struct {
	Image    []byte   `json:"-"`
	Viewport Viewport `json:"viewport"`
	// ReportedDPR is the device pixel ratio the page claimed. Diagnostic only.
	ReportedDPR float64 `json:"reported_dpr,omitempty"`
	Source      string  `json:"source,omitempty"`
}

// Geometry describes how a circle maps onto the source image
type Geometry struct {
	ScaleX   float64 `json:"scale_x"`
	ScaleY   float64 `json:"scale_y"`
	Scale    float64 `json:"scale"`
	Diameter int     `json:"diameter"`
	CenterX  int     `json:"center_x"`
	CenterY  int     `json:"center_y"`
	Radius   float64 `json:"radius"`
	SourceX  float64 `json:"source_x"`
	SourceY  float64 `json:"source_y"`
}

// SourceBounds returns the bounding square sampled from the source image,
// rounded outward when the radius is fractional.
func (g Geometry) SourceBounds() (x0, y0, x1, y1 int) {
	x0 = int(math.Floor(g.SourceX))
	y0 = int(math.Floor(g.SourceY))
	x1 = int(math.Ceil(g.SourceX + float64(g.Diameter)))
	y1 = int(math.Ceil(g.SourceY + float64(g.Diameter)))
	return
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Caption is the alt text a vision model produced for a snip
type Caption struct {
	Alt   string   `json:"alt"`
	Tags  []string `json:"tags,omitempty"`
	Model string   `json:"model,omitempty"`
}
