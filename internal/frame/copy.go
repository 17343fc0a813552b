package frame

// MaxPixelStride is the widest interleave Copy supports.
const MaxPixelStride = 2

// Copy writes the pixel content of src into dst, honoring each plane's row
// and pixel stride. Padding bytes in dst rows are left untouched except on
// the bulk path. Timestamp and crop are copied as well.
func Copy(src, dst *Image) error {
	if err := checkCompatible(src, dst); err != nil {
		return err
	}
	for index := range src.Planes {
		size, err := EffectivePlaneSize(src.Format, src.Width, src.Height, index)
		if err != nil {
			return incompatible("%v", err)
		}
		if err := copyPlane(&src.Planes[index], &dst.Planes[index], size, index); err != nil {
			return err
		}
	}
	dst.Timestamp = src.Timestamp
	dst.Crop = src.Crop
	return nil
}

func copyPlane(src, dst *Plane, size Size, index int) error {
	if src.PixelStride < 1 || dst.PixelStride < 1 {
		return incompatible("plane %d has no pixel stride", index)
	}
	if src.PixelStride > MaxPixelStride || dst.PixelStride > MaxPixelStride {
		return incompatible("plane %d pixel stride %d/%d exceeds %d", index, src.PixelStride, dst.PixelStride, MaxPixelStride)
	}

	if src.PixelStride == 1 && dst.PixelStride == 1 && src.RowStride == dst.RowStride {
		if len(dst.Data) < len(src.Data) {
			return incompatible("plane %d destination holds %d bytes, source %d", index, len(dst.Data), len(src.Data))
		}
		copy(dst.Data, src.Data)
		return nil
	}
	if src.RowStride <= 0 || dst.RowStride <= 0 {
		return incompatible("plane %d has no row stride", index)
	}
	if !holdsRows(src, size.Height) || !holdsRows(dst, size.Height) {
		return incompatible("plane %d holds %d/%d bytes, too short for %d rows", index, len(src.Data), len(dst.Data), size.Height)
	}

	for row := 0; row < size.Height; row++ {
		srcRow := rowSpan(src.Data, row, src.RowStride)
		dstRow := rowSpan(dst.Data, row, dst.RowStride)
		if src.PixelStride == 1 && dst.PixelStride == 1 {
			copy(dstRow, srcRow)
			continue
		}
		for x := 0; x < size.Width; x++ {
			from := x * src.PixelStride
			to := x * dst.PixelStride
			if from >= len(srcRow) || to >= len(dstRow) {
				break
			}
			dstRow[to] = srcRow[from]
		}
	}
	return nil
}

// holdsRows reports whether every row but the last is complete and the last
// row starts inside the buffer. Only the last row may be clamped.
func holdsRows(plane *Plane, height int) bool {
	if height <= 0 {
		return true
	}
	return len(plane.Data) > (height-1)*plane.RowStride
}
