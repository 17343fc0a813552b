package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

var dumpMagic = [4]byte{'C', 'T', 'F', '1'}

var ErrBadDump = errors.New("malformed image dump")

type dumpHeader struct {
	Magic     [4]byte
	Format    int32
	Width     int32
	Height    int32
	Timestamp int64
	Crop      [4]int32
	Planes    int32
}

type dumpPlane struct {
	RowStride   int32
	PixelStride int32
	Length      int64
}

// Dump writes image to path as a zstd-compressed plane dump.
func Dump(path string, image *Image) error {
	if image == nil {
		return fmt.Errorf("dump %s: nil image", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteDump(file, image); err != nil {
		_ = file.Close()
		return fmt.Errorf("dump %s: %w", path, err)
	}
	return file.Close()
}

func WriteDump(w io.Writer, image *Image) error {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	header := dumpHeader{
		Magic:     dumpMagic,
		Format:    int32(image.Format),
		Width:     int32(image.Width),
		Height:    int32(image.Height),
		Timestamp: image.Timestamp,
		Crop:      [4]int32{int32(image.Crop.Left), int32(image.Crop.Top), int32(image.Crop.Right), int32(image.Crop.Bottom)},
		Planes:    int32(len(image.Planes)),
	}
	if err := binary.Write(encoder, binary.LittleEndian, header); err != nil {
		_ = encoder.Close()
		return err
	}
	for _, plane := range image.Planes {
		meta := dumpPlane{
			RowStride:   int32(plane.RowStride),
			PixelStride: int32(plane.PixelStride),
			Length:      int64(len(plane.Data)),
		}
		if err := binary.Write(encoder, binary.LittleEndian, meta); err != nil {
			_ = encoder.Close()
			return err
		}
		if _, err := encoder.Write(plane.Data); err != nil {
			_ = encoder.Close()
			return err
		}
	}
	return encoder.Close()
}

// LoadDump reads an image written by Dump.
func LoadDump(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	image, err := ReadDump(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("load dump %s: %w", path, err)
	}
	return image, nil
}

func ReadDump(r io.Reader) (*Image, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var header dumpHeader
	if err := binary.Read(decoder, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDump, err)
	}
	if header.Magic != dumpMagic || header.Planes < 0 || header.Planes > 8 {
		return nil, ErrBadDump
	}
	image := &Image{
		Format:    Format(header.Format),
		Width:     int(header.Width),
		Height:    int(header.Height),
		Timestamp: header.Timestamp,
		Crop: Rect{
			Left:   int(header.Crop[0]),
			Top:    int(header.Crop[1]),
			Right:  int(header.Crop[2]),
			Bottom: int(header.Crop[3]),
		},
		Planes: make([]Plane, header.Planes),
	}
	for index := range image.Planes {
		var meta dumpPlane
		if err := binary.Read(decoder, binary.LittleEndian, &meta); err != nil {
			return nil, fmt.Errorf("%w: plane %d: %v", ErrBadDump, index, err)
		}
		if meta.Length < 0 || meta.Length > 1<<30 {
			return nil, fmt.Errorf("%w: plane %d length %d", ErrBadDump, index, meta.Length)
		}
		data := make([]byte, meta.Length)
		if _, err := io.ReadFull(decoder, data); err != nil {
			return nil, fmt.Errorf("%w: plane %d: %v", ErrBadDump, index, err)
		}
		image.Planes[index] = Plane{Data: data, RowStride: int(meta.RowStride), PixelStride: int(meta.PixelStride)}
	}
	return image, nil
}
