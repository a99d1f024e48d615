package cropper

import "errors"

var (
	// ErrInvalidCircle is returned for a circle without a positive, finite diameter
	ErrInvalidCircle = errors.New("invalid circle")
	// ErrInvalidViewport is returned when the viewport has a non-positive dimension
	ErrInvalidViewport = errors.New("invalid viewport")
	// ErrSurfaceSize is returned when the output square is empty or exceeds MaxDiameter
	ErrSurfaceSize = errors.New("unsupported surface size")
	// ErrScaleMismatch is returned under the strict policy when the axes disagree
	ErrScaleMismatch = errors.New("horizontal and vertical scale disagree")
)

// DecodeError reports that the source screenshot could not be decoded.
// It is fatal to the capture attempt and is never retried.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode source image: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProcessError reports a failure while validating, drawing or encoding a snip
type ProcessError struct {
	Op  string
	Err error
}

func (e *ProcessError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ProcessError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is or wraps a *DecodeError
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsProcessError reports whether err is or wraps a *ProcessError
func IsProcessError(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe)
}
