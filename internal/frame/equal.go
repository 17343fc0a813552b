package frame

import (
	"bytes"
	"fmt"
)

// StronglyEqual reports whether a and b carry the same format, size,
// timestamp, crop and pixel content. Planes with the same layout are compared
// as whole buffers, trailing bytes included, so a copy target must be sized
// like its source to compare equal.
func StronglyEqual(a, b *Image) (bool, error) {
	reason, err := Diff(a, b)
	if err != nil {
		return false, err
	}
	return reason == "", nil
}

// Diff describes the first difference between a and b, or returns "" when
// they are strongly equal. Images without a linear layout fail with an
// IncompatibleError.
func Diff(a, b *Image) (string, error) {
	if a == nil || b == nil {
		return "", incompatible("nil image")
	}
	if a.Format == FormatPrivate || b.Format == FormatPrivate {
		return "", incompatible("%s images have no linear layout", FormatPrivate)
	}
	switch {
	case a.Format != b.Format:
		return fmt.Sprintf("format %s != %s", a.Format, b.Format), nil
	case a.Width != b.Width || a.Height != b.Height:
		return fmt.Sprintf("size %dx%d != %dx%d", a.Width, a.Height, b.Width, b.Height), nil
	case a.Timestamp != b.Timestamp:
		return fmt.Sprintf("timestamp %d != %d", a.Timestamp, b.Timestamp), nil
	case a.Crop != b.Crop:
		return fmt.Sprintf("crop %+v != %+v", a.Crop, b.Crop), nil
	case len(a.Planes) != len(b.Planes):
		return fmt.Sprintf("plane count %d != %d", len(a.Planes), len(b.Planes)), nil
	}

	for index := range a.Planes {
		size, err := EffectivePlaneSize(a.Format, a.Width, a.Height, index)
		if err != nil {
			return "", incompatible("%v", err)
		}
		if reason := diffPlane(a.Format, &a.Planes[index], &b.Planes[index], size); reason != "" {
			return fmt.Sprintf("plane %d: %s", index, reason), nil
		}
	}
	return "", nil
}

func diffPlane(format Format, a, b *Plane, size Size) string {
	sameLayout := a.RowStride == b.RowStride && a.PixelStride == 1 && b.PixelStride == 1
	if format != FormatYUV420 || sameLayout {
		if !bytes.Equal(a.Data, b.Data) {
			return "bytes differ"
		}
		return ""
	}
	if a.RowStride <= 0 || b.RowStride <= 0 || a.PixelStride < 1 || b.PixelStride < 1 {
		return "invalid stride"
	}

	for row := 0; row < size.Height; row++ {
		rowA := rowSpan(a.Data, row, a.RowStride)
		rowB := rowSpan(b.Data, row, b.RowStride)
		for x := 0; x < size.Width; x++ {
			posA := x * a.PixelStride
			posB := x * b.PixelStride
			if posA >= len(rowA) || posB >= len(rowB) {
				if (posA >= len(rowA)) != (posB >= len(rowB)) {
					return fmt.Sprintf("row %d truncated at pixel %d", row, x)
				}
				break
			}
			if rowA[posA] != rowB[posB] {
				return fmt.Sprintf("pixel (%d,%d) %d != %d", x, row, rowA[posA], rowB[posB])
			}
		}
	}
	return ""
}
