package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"
)

const (
	// MaxUploadBytes caps raw uploads at 20 MiB.
	MaxUploadBytes = 20 << 20
	// MaxDimension is the longest output side after downscale.
	MaxDimension = 2560
)

var ErrUnsupportedFormat = fmt.Errorf("unsupported image format")
var ErrTooLarge = fmt.Errorf("image exceeds %d bytes", MaxUploadBytes)
var ErrInvalidTransform = fmt.Errorf("invalid transformation")

// CropRect is a user-requested crop in post-rotation pixel coordinates.
type CropRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Options are the caller-controlled transformations. Rotation is degrees
// counterclockwise and must be one of 0, 90, 180, 270. EXIF auto-orient
// runs unless apply_exif_rotation is explicitly false.
type Options struct {
	Rotation          int       `json:"rotation"`
	Crop              *CropRect `json:"crop"`
	ApplyEXIFRotation *bool     `json:"apply_exif_rotation"`
}

func (o Options) applyEXIFRotation() bool {
	return o.ApplyEXIFRotation == nil || *o.ApplyEXIFRotation
}

// Result is the normalized PNG plus the applied-transformation record
// stored with the conversion row.
type Result struct {
	PNG             []byte
	OriginalFormat  string
	OriginalWidth   int
	OriginalHeight  int
	Width           int
	Height          int
	Checksum        string
	Transformations []string
	EXIF            map[string]string
	WasResized      bool
	WasConverted    bool
}

// heicMagic brands appear at offset 8 of the ftyp box.
var heicBrands = [][]byte{
	[]byte("heic"), []byte("heix"), []byte("hevc"), []byte("heim"),
	[]byte("heis"), []byte("hevm"), []byte("hevs"), []byte("mif1"),
}

func looksLikeHEIC(data []byte) bool {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return false
	}
	for _, brand := range heicBrands {
		if bytes.Equal(data[8:12], brand) {
			return true
		}
	}
	return false
}

// DetectFormat sniffs the container. HEIC is recognized so it can be
// rejected with a clear error instead of a generic decode failure.
func DetectFormat(data []byte) (string, error) {
	if looksLikeHEIC(data) {
		return "heic", ErrUnsupportedFormat
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", ErrUnsupportedFormat
	}
	switch format {
	case "jpeg", "png", "webp":
		return format, nil
	default:
		return format, ErrUnsupportedFormat
	}
}

// exifRotation maps EXIF orientation tags to counterclockwise degrees.
// Mirrored orientations (2, 4, 5, 7) are left untouched.
func exifRotation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 0
	}
	switch orientation {
	case 3:
		return 180
	case 6:
		return 270
	case 8:
		return 90
	default:
		return 0
	}
}

type exifFieldWalker map[string]string

func (w exifFieldWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	w[string(name)] = tag.String()
	return nil
}

// exifFields flattens the EXIF directory into printable tag values.
func exifFields(data []byte) map[string]string {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	fields := exifFieldWalker{}
	if err := x.Walk(fields); err != nil || len(fields) == 0 {
		return nil
	}
	return fields
}

// Normalize runs the deterministic pipeline: decode, EXIF auto-orient,
// user rotation, crop, flatten, downscale, PNG encode, checksum.
func Normalize(data []byte, opts Options) (*Result, error) {
	if len(data) > MaxUploadBytes {
		return nil, ErrTooLarge
	}
	format, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}
	if opts.Rotation%90 != 0 || opts.Rotation < 0 || opts.Rotation >= 360 {
		return nil, fmt.Errorf("%w: rotation must be one of 0, 90, 180, 270", ErrInvalidTransform)
	}

	var img image.Image
	switch format {
	case "jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "png":
		img, err = png.Decode(bytes.NewReader(data))
	case "webp":
		img, err = webp.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}

	origBounds := img.Bounds()
	result := &Result{
		OriginalFormat: format,
		OriginalWidth:  origBounds.Dx(),
		OriginalHeight: origBounds.Dy(),
	}

	if format == "jpeg" {
		result.EXIF = exifFields(data)
		if opts.applyEXIFRotation() {
			if autoRot := exifRotation(data); autoRot != 0 {
				img = rotate(img, autoRot)
				result.Transformations = append(result.Transformations, fmt.Sprintf("auto_orient:%d", autoRot))
			}
		}
	}
	if opts.Rotation != 0 {
		img = rotate(img, opts.Rotation)
		result.Transformations = append(result.Transformations, fmt.Sprintf("rotate:%d", opts.Rotation))
	}
	if opts.Crop != nil {
		img, err = crop(img, *opts.Crop)
		if err != nil {
			return nil, err
		}
		result.Transformations = append(result.Transformations,
			fmt.Sprintf("crop:%d,%d,%d,%d", opts.Crop.X, opts.Crop.Y, opts.Crop.Width, opts.Crop.Height))
	}

	img = flatten(img)

	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w > MaxDimension || h > MaxDimension {
		img = downscale(img, MaxDimension)
		result.WasResized = true
		result.Transformations = append(result.Transformations,
			fmt.Sprintf("resize:%dx%d", img.Bounds().Dx(), img.Bounds().Dy()))
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	sum := sha256.Sum256(out.Bytes())
	result.PNG = out.Bytes()
	result.Width = img.Bounds().Dx()
	result.Height = img.Bounds().Dy()
	result.Checksum = hex.EncodeToString(sum[:])
	result.WasConverted = format != "png"
	return result, nil
}

// rotate turns img by deg degrees counterclockwise. deg must be 90, 180,
// or 270.
func rotate(img image.Image, deg int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.NRGBA
	switch deg {
	case 180:
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	default:
		dst = image.NewNRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch deg {
			case 90:
				dst.Set(y, w-1-x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(h-1-y, x, c)
			}
		}
	}
	return dst
}

func crop(img image.Image, rect CropRect) (image.Image, error) {
	b := img.Bounds()
	if rect.Width <= 0 || rect.Height <= 0 {
		return nil, fmt.Errorf("%w: crop dimensions must be positive", ErrInvalidTransform)
	}
	if rect.X < 0 || rect.Y < 0 ||
		rect.X+rect.Width > b.Dx() || rect.Y+rect.Height > b.Dy() {
		return nil, fmt.Errorf("%w: crop rectangle out of bounds", ErrInvalidTransform)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, rect.Width, rect.Height))
	src := image.Rect(b.Min.X+rect.X, b.Min.Y+rect.Y, b.Min.X+rect.X+rect.Width, b.Min.Y+rect.Y+rect.Height)
	draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	return dst, nil
}

// flatten composites any alpha channel onto a white background.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// downscale shrinks img so its longest side equals maxSide, preserving
// aspect ratio. Catmull-Rom keeps fine fur and feather detail for the
// vision model.
func downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var nw, nh int
	if w >= h {
		nw = maxSide
		nh = h * maxSide / w
	} else {
		nh = maxSide
		nw = w * maxSide / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
