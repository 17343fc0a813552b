package frame

import (
	"errors"
	"fmt"
	"strings"
)

var ErrIncompatibleBuffers = errors.New("incompatible buffers")
var ErrUnsupportedFormat = errors.New("unsupported image format")

type Format int

const (
	FormatYUV420 Format = iota + 1
	FormatJPEG
	FormatRawSensor
	FormatRaw10
	FormatRaw12
	FormatDepth16
	FormatY8
	// FormatPrivate is implementation defined and has no linear layout.
	FormatPrivate
)

func (f Format) String() string {
	switch f {
	case FormatYUV420:
		return "yuv420"
	case FormatJPEG:
		return "jpeg"
	case FormatRawSensor:
		return "raw-sensor"
	case FormatRaw10:
		return "raw10"
	case FormatRaw12:
		return "raw12"
	case FormatDepth16:
		return "depth16"
	case FormatY8:
		return "y8"
	case FormatPrivate:
		return "private"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat accepts the names printed by Format.String.
func ParseFormat(name string) (Format, error) {
	for format := FormatYUV420; format <= FormatPrivate; format++ {
		if format.String() == strings.ToLower(strings.TrimSpace(name)) {
			return format, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Planes reports how many planes an image of this format carries.
func (f Format) Planes() int {
	switch f {
	case FormatYUV420:
		return 3
	case FormatPrivate:
		return 0
	default:
		return 1
	}
}

// Plane is one channel of a pixel buffer. RowStride and PixelStride are in
// bytes and may exceed the logical minimum because of alignment padding.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

type Image struct {
	Format    Format
	Width     int
	Height    int
	Timestamp int64
	Crop      Rect
	Planes    []Plane
}

type Size struct {
	Width  int
	Height int
}

// EffectivePlaneSize returns the logical pixel dimensions of one plane.
func EffectivePlaneSize(format Format, width, height, plane int) (Size, error) {
	if plane < 0 || plane >= max(format.Planes(), 1) {
		return Size{}, fmt.Errorf("%w: plane %d of %s", ErrUnsupportedFormat, plane, format)
	}
	switch format {
	case FormatYUV420:
		if plane == 0 {
			return Size{Width: width, Height: height}, nil
		}
		return Size{Width: width / 2, Height: height / 2}, nil
	case FormatJPEG, FormatRawSensor, FormatRaw10, FormatRaw12, FormatDepth16, FormatY8:
		return Size{Width: width, Height: height}, nil
	case FormatPrivate:
		return Size{}, nil
	default:
		return Size{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// IncompatibleError explains why two images cannot be copied or compared.
type IncompatibleError struct {
	Reason string
}

func (e *IncompatibleError) Error() string {
	if e == nil {
		return ""
	}
	return "incompatible buffers: " + e.Reason
}

func (e *IncompatibleError) Unwrap() error {
	return ErrIncompatibleBuffers
}

func incompatible(format string, args ...any) error {
	return &IncompatibleError{Reason: fmt.Sprintf(format, args...)}
}

// checkCompatible validates that src and dst share a linear layout.
func checkCompatible(src, dst *Image) error {
	if src == nil || dst == nil {
		return incompatible("nil image")
	}
	if src.Format == FormatPrivate || dst.Format == FormatPrivate {
		return incompatible("%s images have no linear layout", FormatPrivate)
	}
	if src.Format != dst.Format {
		return incompatible("format %s does not match %s", src.Format, dst.Format)
	}
	if src.Width != dst.Width || src.Height != dst.Height {
		return incompatible("size %dx%d does not match %dx%d", src.Width, src.Height, dst.Width, dst.Height)
	}
	if len(src.Planes) != len(dst.Planes) {
		return incompatible("plane count %d does not match %d", len(src.Planes), len(dst.Planes))
	}
	return nil
}

// rowSpan returns the bytes of row within data, clamped to what the buffer
// actually holds. Interleaved chroma planes commonly end before the last
// row's full stride.
func rowSpan(data []byte, row, rowStride int) []byte {
	start := row * rowStride
	if start >= len(data) {
		return nil
	}
	end := min(start+rowStride, len(data))
	return data[start:end]
}
