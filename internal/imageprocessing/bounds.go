package imageprocessing

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/jo-hoe/wheatscan/internal/imagesource"
)

const (
	DefaultMaxWidth  = 1024
	DefaultMaxHeight = 1024
	// DefaultMaxPixels caps the decoded size; a full RGBA decode at the cap
	// takes about 180 MiB.
	DefaultMaxPixels = 48_000_000
)

var (
	ErrInvalidBounds = errors.New("image has no pixels")
	ErrTooLarge      = errors.New("image is too large")
)

// DecodeError marks images that could not be read. Callers show the
// placeholder instead of the picture.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type Bounds struct {
	Width  int
	Height int
	Format string
}

// ProbeBounds reads only the image header and records the dimensions on the
// asset.
func ProbeBounds(asset *imagesource.ImageAsset) (Bounds, error) {
	src, err := asset.Open()
	if err != nil {
		return Bounds{}, &DecodeError{Name: asset.Name, Err: err}
	}
	defer func() {
		_ = src.Close()
	}()

	cfg, format, err := image.DecodeConfig(src)
	if err != nil {
		return Bounds{}, &DecodeError{Name: asset.Name, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Bounds{}, &DecodeError{Name: asset.Name, Err: ErrInvalidBounds}
	}

	asset.Width = cfg.Width
	asset.Height = cfg.Height
	slog.Debug("probed image bounds", "image", asset.Name, "format", format,
		"width", cfg.Width, "height", cfg.Height)
	return Bounds{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// CalculateSampleSize returns the smallest power of two that brings both
// dimensions within the box.
func CalculateSampleSize(width, height, boxWidth, boxHeight int) int {
	if boxWidth <= 0 || boxHeight <= 0 {
		return 1
	}
	sampleSize := 1
	for width/sampleSize > boxWidth || height/sampleSize > boxHeight {
		sampleSize *= 2
	}
	return sampleSize
}

// readOrientation returns the EXIF orientation of JPEG files. Anything that
// cannot be read counts as upright.
func readOrientation(asset *imagesource.ImageAsset, format string) orientation {
	if format != "jpeg" {
		return orientationNormal
	}
	src, err := asset.Open()
	if err != nil {
		return orientationNormal
	}
	defer func() {
		_ = src.Close()
	}()

	// sub-directory errors still leave the main tags usable
	x, err := exif.Decode(src)
	if x == nil {
		slog.Debug("no exif data", "image", asset.Name, "error", err)
		return orientationNormal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil || tag.Count == 0 {
		return orientationNormal
	}
	value, err := tag.Int(0)
	if err != nil || value < int(orientationNormal) || value > int(orientationRotate90) {
		return orientationNormal
	}
	return orientation(value)
}
