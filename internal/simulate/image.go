package simulate

import "ctsharness/internal/frame"

// Layout describes how synthetic images are laid out in memory. YUV chroma
// planes are interleaved with pixel stride 2, and their last row stops right
// after the last sample.
type Layout struct {
	Format     frame.Format
	Width      int
	Height     int
	RowPadding int
}

// NewImage fills an image with a pattern derived from seed.
func NewImage(layout Layout, seed byte) *frame.Image {
	image := Blank(layout)
	for index := range image.Planes {
		plane := &image.Planes[index]
		size, _ := frame.EffectivePlaneSize(layout.Format, layout.Width, layout.Height, index)
		samples := size.Width
		if plane.PixelStride == 1 {
			samples *= bytesPerSample(layout.Format)
		}
		for row := 0; row < size.Height; row++ {
			for x := 0; x < samples; x++ {
				offset := row*plane.RowStride + x*plane.PixelStride
				if offset >= len(plane.Data) {
					break
				}
				plane.Data[offset] = seed + byte(index*31+row*7+x)
			}
		}
	}
	return image
}

// Blank allocates a zeroed image with layout.
func Blank(layout Layout) *frame.Image {
	image := &frame.Image{
		Format: layout.Format,
		Width:  layout.Width,
		Height: layout.Height,
		Crop:   frame.Rect{Right: layout.Width, Bottom: layout.Height},
		Planes: make([]frame.Plane, layout.Format.Planes()),
	}
	for index := range image.Planes {
		size, _ := frame.EffectivePlaneSize(layout.Format, layout.Width, layout.Height, index)
		if layout.Format == frame.FormatYUV420 && index > 0 {
			rowStride := size.Width*2 + layout.RowPadding
			length := 0
			if size.Height > 0 && size.Width > 0 {
				length = rowStride*(size.Height-1) + (size.Width-1)*2 + 1
			}
			image.Planes[index] = frame.Plane{Data: make([]byte, length), RowStride: rowStride, PixelStride: 2}
			continue
		}
		rowStride := size.Width*bytesPerSample(layout.Format) + layout.RowPadding
		image.Planes[index] = frame.Plane{Data: make([]byte, rowStride*size.Height), RowStride: rowStride, PixelStride: 1}
	}
	return image
}

func bytesPerSample(format frame.Format) int {
	switch format {
	case frame.FormatRawSensor, frame.FormatDepth16:
		return 2
	default:
		return 1
	}
}
