package imaging

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// gradient makes orientation visible: top-left dark, bottom-right light.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x + y) * 255 / (w + h))
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestNormalize_PNGPassthrough(t *testing.T) {
	data := encodePNG(t, gradient(40, 30))
	res, err := Normalize(data, Options{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.OriginalFormat != "png" {
		t.Fatalf("format = %q, want png", res.OriginalFormat)
	}
	if res.Width != 40 || res.Height != 30 {
		t.Fatalf("dimensions = %dx%d, want 40x30", res.Width, res.Height)
	}
	if len(res.Checksum) != 64 {
		t.Fatalf("checksum length = %d, want 64 hex chars", len(res.Checksum))
	}
	if len(res.Transformations) != 0 {
		t.Fatalf("unexpected transformations: %v", res.Transformations)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	data := encodePNG(t, gradient(64, 64))
	a, err := Normalize(data, Options{Rotation: 90})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	b, err := Normalize(data, Options{Rotation: 90})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if a.Checksum != b.Checksum {
		t.Fatalf("checksums differ: %s vs %s", a.Checksum, b.Checksum)
	}
	if !bytes.Equal(a.PNG, b.PNG) {
		t.Fatal("outputs differ between identical runs")
	}
}

func TestNormalize_RotationSwapsDimensions(t *testing.T) {
	data := encodePNG(t, gradient(40, 20))
	res, err := Normalize(data, Options{Rotation: 90})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Width != 20 || res.Height != 40 {
		t.Fatalf("dimensions = %dx%d, want 20x40", res.Width, res.Height)
	}
}

func TestNormalize_InvalidRotation(t *testing.T) {
	data := encodePNG(t, gradient(10, 10))
	if _, err := Normalize(data, Options{Rotation: 45}); !errors.Is(err, ErrInvalidTransform) {
		t.Fatalf("rotation 45: err = %v, want ErrInvalidTransform", err)
	}
	if _, err := Normalize(data, Options{Rotation: -90}); !errors.Is(err, ErrInvalidTransform) {
		t.Fatalf("rotation -90: err = %v, want ErrInvalidTransform", err)
	}
}

func TestNormalize_Crop(t *testing.T) {
	data := encodePNG(t, gradient(100, 80))
	res, err := Normalize(data, Options{Crop: &CropRect{X: 10, Y: 20, Width: 30, Height: 40}})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Width != 30 || res.Height != 40 {
		t.Fatalf("dimensions = %dx%d, want 30x40", res.Width, res.Height)
	}
}

func TestNormalize_CropOutOfBounds(t *testing.T) {
	data := encodePNG(t, gradient(50, 50))
	cases := []CropRect{
		{X: 40, Y: 0, Width: 20, Height: 10},
		{X: -1, Y: 0, Width: 10, Height: 10},
		{X: 0, Y: 0, Width: 0, Height: 10},
	}
	for _, c := range cases {
		if _, err := Normalize(data, Options{Crop: &c}); !errors.Is(err, ErrInvalidTransform) {
			t.Fatalf("crop %+v: err = %v, want ErrInvalidTransform", c, err)
		}
	}
}

func TestNormalize_FlattensAlphaOntoWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	// Fully transparent source should come out white.
	data := encodePNG(t, img)
	res, err := Normalize(data, Options{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(res.PNG))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r, g, b, a := decoded.At(1, 1).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff || a != 0xffff {
		t.Fatalf("pixel = %d,%d,%d,%d; want opaque white", r, g, b, a)
	}
}

func TestNormalize_DownscalesLargeImages(t *testing.T) {
	data := encodePNG(t, gradient(MaxDimension+200, 400))
	res, err := Normalize(data, Options{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Width != MaxDimension {
		t.Fatalf("width = %d, want %d", res.Width, MaxDimension)
	}
	if res.Height >= 400 {
		t.Fatalf("height = %d, want scaled below 400", res.Height)
	}
}

func TestNormalize_RejectsUnknownBytes(t *testing.T) {
	if _, err := Normalize([]byte("not an image at all"), Options{}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestDetectFormat_HEICRejected(t *testing.T) {
	heic := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
	heic = append(heic, make([]byte, 16)...)
	format, err := DetectFormat(heic)
	if err == nil {
		t.Fatal("expected HEIC to be rejected")
	}
	if format != "heic" {
		t.Fatalf("format = %q, want heic", format)
	}
}

func TestNormalize_JPEGInput(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(32, 32), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	res, err := Normalize(buf.Bytes(), Options{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.OriginalFormat != "jpeg" {
		t.Fatalf("format = %q, want jpeg", res.OriginalFormat)
	}
	// Stdlib-encoded JPEGs carry no EXIF segment; metadata extraction
	// should degrade to nothing rather than fail.
	if len(res.EXIF) != 0 {
		t.Fatalf("unexpected exif fields: %v", res.EXIF)
	}
}

func TestNormalize_ConversionFlag(t *testing.T) {
	pngRes, err := Normalize(encodePNG(t, gradient(16, 16)), Options{})
	if err != nil {
		t.Fatalf("normalize png: %v", err)
	}
	if pngRes.WasConverted {
		t.Fatal("png input should not count as converted")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(16, 16), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	jpegRes, err := Normalize(buf.Bytes(), Options{})
	if err != nil {
		t.Fatalf("normalize jpeg: %v", err)
	}
	if !jpegRes.WasConverted {
		t.Fatal("jpeg input should count as converted")
	}
}

func TestNormalize_ResizeFlag(t *testing.T) {
	small, err := Normalize(encodePNG(t, gradient(64, 64)), Options{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if small.WasResized {
		t.Fatal("image within bounds should not be flagged as resized")
	}

	big, err := Normalize(encodePNG(t, gradient(MaxDimension+100, 200)), Options{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !big.WasResized {
		t.Fatal("oversized image should be flagged as resized")
	}
}

func TestNormalize_MaxSideExactlyAtBound(t *testing.T) {
	res, err := Normalize(encodePNG(t, gradient(MaxDimension, 100)), Options{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.WasResized {
		t.Fatal("image at the bound should not be resized")
	}
	if res.Width != MaxDimension || res.Height != 100 {
		t.Fatalf("dimensions = %dx%d, want %dx100", res.Width, res.Height, MaxDimension)
	}
}

func TestNormalize_FullFrameCropIsNoOp(t *testing.T) {
	data := encodePNG(t, gradient(48, 36))
	plain, err := Normalize(data, Options{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	cropped, err := Normalize(data, Options{Crop: &CropRect{X: 0, Y: 0, Width: 48, Height: 36}})
	if err != nil {
		t.Fatalf("normalize with crop: %v", err)
	}
	if cropped.Width != plain.Width || cropped.Height != plain.Height {
		t.Fatalf("dimensions changed: %dx%d vs %dx%d", cropped.Width, cropped.Height, plain.Width, plain.Height)
	}
	if cropped.Checksum != plain.Checksum {
		t.Fatal("full-frame crop should leave the output bytes unchanged")
	}
}

// tiffWithOrientation builds a minimal little-endian TIFF whose only
// IFD entry is the EXIF orientation tag.
func tiffWithOrientation(orientation uint16) []byte {
	return []byte{
		'I', 'I', 0x2a, 0x00,
		0x08, 0x00, 0x00, 0x00, // first IFD at offset 8
		0x01, 0x00, // one entry
		0x12, 0x01, // tag 0x0112 orientation
		0x03, 0x00, // SHORT
		0x01, 0x00, 0x00, 0x00, // count 1
		byte(orientation), byte(orientation >> 8), 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // no next IFD
	}
}

func TestEXIFRotationMapping(t *testing.T) {
	cases := []struct {
		orientation uint16
		want        int
	}{
		{1, 0},
		{3, 180},
		{6, 270},
		{8, 90},
		{2, 0}, // mirrored forms are left untouched
	}
	for _, c := range cases {
		if got := exifRotation(tiffWithOrientation(c.orientation)); got != c.want {
			t.Fatalf("orientation %d: rotation = %d, want %d", c.orientation, got, c.want)
		}
	}
}

func TestEXIFFieldsFromTIFF(t *testing.T) {
	fields := exifFields(tiffWithOrientation(6))
	if len(fields) == 0 {
		t.Fatal("expected at least the orientation field")
	}
	if got, ok := fields["Orientation"]; !ok || got != "6" {
		t.Fatalf("orientation field = %q (present=%v), want \"6\"", got, ok)
	}
}

func TestOptions_EXIFRotationDefault(t *testing.T) {
	var opts Options
	if err := json.Unmarshal([]byte(`{"rotation": 90}`), &opts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !opts.applyEXIFRotation() {
		t.Fatal("absent apply_exif_rotation should default to on")
	}

	var disabled Options
	if err := json.Unmarshal([]byte(`{"apply_exif_rotation": false}`), &disabled); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if disabled.applyEXIFRotation() {
		t.Fatal("apply_exif_rotation=false should disable auto-orientation")
	}
}
