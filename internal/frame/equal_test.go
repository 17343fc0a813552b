package frame

import (
	"errors"
	"strings"
	"testing"
)

func TestDiffReportsFirstDifference(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Image)
		want   string
	}{
		{name: "timestamp", mutate: func(img *Image) { img.Timestamp++ }, want: "timestamp"},
		{name: "crop", mutate: func(img *Image) { img.Crop.Left = 1 }, want: "crop"},
		{name: "luma", mutate: func(img *Image) { img.Planes[0].Data[3]++ }, want: "plane 0"},
		{name: "chroma", mutate: func(img *Image) { img.Planes[2].Data[0]++ }, want: "plane 2: pixel (0,0)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := yuvImage(8, 4, 3)
			b := yuvImage(8, 4, 3)
			tc.mutate(b)
			diff, err := Diff(a, b)
			if err != nil {
				t.Fatalf("diff: %v", err)
			}
			if !strings.Contains(diff, tc.want) {
				t.Fatalf("expected %q in diff, got %q", tc.want, diff)
			}
		})
	}
}

func TestStronglyEqualIgnoresChromaPadding(t *testing.T) {
	a := yuvImage(8, 4, 3)
	b := yuvImage(8, 4, 3)
	b.Planes[1].Data[1] = 0xff
	equal, err := StronglyEqual(a, b)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !equal {
		t.Fatalf("expected padding bytes between samples to be ignored")
	}
}

func TestStronglyEqualRejectsPrivate(t *testing.T) {
	img := &Image{Format: FormatPrivate, Width: 8, Height: 4}
	if _, err := StronglyEqual(img, img); !errors.Is(err, ErrIncompatibleBuffers) {
		t.Fatalf("expected incompatible buffers, got %v", err)
	}
}

func TestEffectivePlaneSize(t *testing.T) {
	size, err := EffectivePlaneSize(FormatYUV420, 640, 480, 1)
	if err != nil || size != (Size{Width: 320, Height: 240}) {
		t.Fatalf("expected 320x240 chroma, got %+v (%v)", size, err)
	}
	size, err = EffectivePlaneSize(FormatDepth16, 640, 480, 0)
	if err != nil || size != (Size{Width: 640, Height: 480}) {
		t.Fatalf("expected full size depth plane, got %+v (%v)", size, err)
	}
	size, err = EffectivePlaneSize(FormatPrivate, 640, 480, 0)
	if err != nil || size != (Size{}) {
		t.Fatalf("expected empty private plane, got %+v (%v)", size, err)
	}
	if _, err := EffectivePlaneSize(Format(99), 640, 480, 0); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if _, err := EffectivePlaneSize(FormatJPEG, 640, 480, 1); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected out of range plane to fail, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat(" YUV420 ")
	if err != nil || format != FormatYUV420 {
		t.Fatalf("expected yuv420, got %v (%v)", format, err)
	}
	if _, err := ParseFormat("heic"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}
