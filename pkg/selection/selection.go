// Package selection models the interactive circle a user positions over a
// frozen screenshot. All values are CSS pixels.
package selection

import (
	"fmt"
	"math"

	"github.com/menta2k/circle-snip/pkg/types"
)

const (
	DefaultDiameter = 256
	MinDiameter     = 64
	// Padding keeps the circle this far from every viewport edge
	Padding = 10
	// SnapThreshold is how close a diameter must be to a snap size to jump to it
	SnapThreshold = 20
	// WheelStep is the diameter change per wheel notch
	WheelStep = 20
	// ResizeDeadZone is the pointer travel required before a resize drag applies
	ResizeDeadZone = 5
)

// SnapSizes are the diameters a resize can snap to
var SnapSizes = []float64{128, 256, 384, 512, 640, 768, 896, 1024}

// Point is a pointer position
type Point struct {
	X, Y float64
}

// Selection is a circle constrained to a viewport
type Selection struct {
	circle   types.Circle
	viewport types.Viewport
}

// New centers a circle of the given diameter (DefaultDiameter when <= 0) in the viewport
func New(viewport types.Viewport, diameter float64) *Selection {
	if diameter <= 0 {
		diameter = DefaultDiameter
	}
	s := &Selection{
		circle: types.Circle{
			X:        viewport.Width / 2,
			Y:        viewport.Height / 2,
			Diameter: diameter,
		},
		viewport: viewport,
	}
	s.Constrain(true)
	return s
}

// Circle returns the current selection
func (s *Selection) Circle() types.Circle {
	return s.circle
}

// Viewport returns the viewport the selection is constrained to
func (s *Selection) Viewport() types.Viewport {
	return s.viewport
}

// MoveTo places the center at (x, y). The diameter is left alone.
func (s *Selection) MoveTo(x, y float64) {
	s.circle.X = x
	s.circle.Y = y
	s.Constrain(false)
}

// Move shifts the center by (dx, dy)
func (s *Selection) Move(dx, dy float64) {
	s.MoveTo(s.circle.X+dx, s.circle.Y+dy)
}

// Resize sets the diameter directly
func (s *Selection) Resize(diameter float64) {
	s.circle.Diameter = diameter
	s.Constrain(true)
}

// ResizeDrag handles a resize-handle drag that started at start and is now at
// pointer: the new diameter is twice the pointer's distance from the center.
// Movements shorter than ResizeDeadZone are ignored and reported as false.
func (s *Selection) ResizeDrag(start, pointer Point) bool {
	if math.Hypot(pointer.X-start.X, pointer.Y-start.Y) < ResizeDeadZone {
		return false
	}
	s.Resize(2 * math.Hypot(pointer.X-s.circle.X, pointer.Y-s.circle.Y))
	return true
}

// Wheel grows the circle on upward scroll (deltaY < 0) and shrinks it otherwise.
// With snap set the result jumps to a nearby snap size.
func (s *Selection) Wheel(deltaY float64, snap bool) {
	step := float64(WheelStep)
	if deltaY > 0 {
		step = -step
	}
	d := s.circle.Diameter + step
	if snap {
		d = Snap(d)
	}
	s.Resize(d)
}

// Constrain keeps the circle inside the viewport minus Padding. The diameter
// is clamped to [MinDiameter, min(width, height) - 2*Padding] only when
// allowDiameterChange is set.
func (s *Selection) Constrain(allowDiameterChange bool) {
	if allowDiameterChange {
		maxDiameter := math.Min(s.viewport.Width, s.viewport.Height) - Padding*2
		s.circle.Diameter = math.Max(MinDiameter, math.Min(s.circle.Diameter, maxDiameter))
	}

	r := s.circle.Diameter / 2
	s.circle.X = math.Max(r+Padding, math.Min(s.circle.X, s.viewport.Width-r-Padding))
	s.circle.Y = math.Max(r+Padding, math.Min(s.circle.Y, s.viewport.Height-r-Padding))
}

// Label renders the rounded size, e.g. "256 × 256"
func (s *Selection) Label() string {
	d := int(math.Round(s.circle.Diameter))
	return fmt.Sprintf("%d × %d", d, d)
}

// Snap returns the first snap size within SnapThreshold of d, or d unchanged
func Snap(d float64) float64 {
	for _, size := range SnapSizes {
		if math.Abs(d-size) < SnapThreshold {
			return size
		}
	}
	return d
}
