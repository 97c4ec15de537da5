package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/deepteams/zscale"
)

// TestPathSpec verifies specifier parsing.
func TestPathSpec(t *testing.T) {
	ps, err := parsePathSpec("i420:/tmp/frame.yuv")
	if err != nil {
		t.Fatal(err)
	}
	if ps.format != "i420" || ps.path != "/tmp/frame.yuv" {
		t.Errorf("got %+v", ps)
	}
	if _, err := parsePathSpec("no-colon"); err == nil {
		t.Error("missing separator accepted")
	}
}

// TestYUY2RoundTrip verifies pack and unpack are inverses.
func TestYUY2RoundTrip(t *testing.T) {
	f := zscale.ImageFormat{
		Width: 8, Height: 2,
		PixelType: zscale.PixelU8, Depth: 8,
		SubsampleW:  1,
		ColorFamily: zscale.ColorYUV,
		Matrix:      zscale.MatrixBT709,
		Transfer:    zscale.TransferBT709,
		Primaries:   zscale.PrimariesBT709,
	}
	img := newPlanarImage(f)
	for i := range img.planes[0] {
		img.planes[0][i] = byte(i * 3)
	}
	for i := range img.planes[1] {
		img.planes[1][i] = byte(i*5 + 1)
		img.planes[2][i] = byte(i*7 + 2)
	}

	packed := packYUY2(img)
	back := newPlanarImage(f)
	if err := unpackYUY2(back, packed); err != nil {
		t.Fatal(err)
	}
	for p := 0; p < 3; p++ {
		if !bytes.Equal(img.planes[p], back.planes[p]) {
			t.Errorf("plane %d differs after round trip", p)
		}
	}
}

// TestConvertIdentityRaw verifies an identity i444 conversion through
// the command path reproduces the input file.
func TestConvertIdentityRaw(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.raw")
	out := filepath.Join(dir, "out.raw")

	const w, h = 16, 8
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(in, data, 0o644); err != nil {
		t.Fatal(err)
	}

	err := runConvert([]string{
		"-in-w", "16", "-in-h", "8",
		"i444:" + in, "i444:" + out,
	}, false)
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, got) {
		t.Error("identity conversion altered the frame")
	}
}

// TestFieldBufferStrides verifies the interlaced view doubles strides
// and offsets the bottom field by one row.
func TestFieldBufferStrides(t *testing.T) {
	f := zscale.ImageFormat{
		Width: 4, Height: 4,
		PixelType: zscale.PixelU8, Depth: 8,
		ColorFamily: zscale.ColorGrey,
		Matrix:      zscale.MatrixRGB,
		Transfer:    zscale.TransferBT709,
		Primaries:   zscale.PrimariesBT709,
	}
	img := newPlanarImage(f)
	top := img.fieldBuffer(0)
	bottom := img.fieldBuffer(1)
	if top.Stride[0] != 2*img.stride[0] || bottom.Stride[0] != 2*img.stride[0] {
		t.Error("field strides not doubled")
	}
	img.planes[0][img.stride[0]] = 99 // frame row 1 = bottom field row 0
	if bottom.Data[0][0] != 99 {
		t.Error("bottom field does not start at frame row 1")
	}
}
