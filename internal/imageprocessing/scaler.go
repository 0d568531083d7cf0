package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/jo-hoe/wheatscan/internal/imagesource"
)

// Scaler produces display bitmaps bounded by a fixed box.
type Scaler struct {
	maxWidth  int
	maxHeight int
	maxPixels int
}

// NewScaler falls back to the defaults for any non-positive argument.
func NewScaler(maxWidth, maxHeight, maxPixels int) *Scaler {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Scaler{maxWidth: maxWidth, maxHeight: maxHeight, maxPixels: maxPixels}
}

func (s *Scaler) Decode(asset *imagesource.ImageAsset) (*image.NRGBA, error) {
	return decodeSampled(asset, s.maxWidth, s.maxHeight, s.maxPixels)
}

// PreviewPNG decodes the asset within the box and encodes it as PNG.
func (s *Scaler) PreviewPNG(asset *imagesource.ImageAsset) ([]byte, error) {
	img, err := s.Decode(asset)
	if err != nil {
		return nil, err
	}
	return EncodePNG(img)
}

// DecodeSampled decodes the asset honouring its EXIF orientation and reduces
// it by the power-of-two sample size for the box. Each output pixel is the
// average of one sampleSize x sampleSize block. Images above DefaultMaxPixels
// are rejected.
func DecodeSampled(asset *imagesource.ImageAsset, boxWidth, boxHeight int) (*image.NRGBA, error) {
	return decodeSampled(asset, boxWidth, boxHeight, DefaultMaxPixels)
}

func decodeSampled(asset *imagesource.ImageAsset, boxWidth, boxHeight, maxPixels int) (*image.NRGBA, error) {
	bounds, err := ProbeBounds(asset)
	if err != nil {
		return nil, err
	}
	if int64(bounds.Width)*int64(bounds.Height) > int64(maxPixels) {
		return nil, &DecodeError{Name: asset.Name, Err: fmt.Errorf("%w: %dx%d exceeds %d pixels",
			ErrTooLarge, bounds.Width, bounds.Height, maxPixels)}
	}

	orient := readOrientation(asset, bounds.Format)
	// the box applies to the upright picture
	uprightW, uprightH := bounds.Width, bounds.Height
	if orient.swapsAxes() {
		uprightW, uprightH = uprightH, uprightW
	}
	sampleSize := CalculateSampleSize(uprightW, uprightH, boxWidth, boxHeight)
	slog.Debug("decoding image for display", "image", asset.Name,
		"width", uprightW, "height", uprightH, "orientation", int(orient), "sample_size", sampleSize)

	src, err := asset.Open()
	if err != nil {
		return nil, &DecodeError{Name: asset.Name, Err: err}
	}
	defer func() {
		_ = src.Close()
	}()

	decoded, _, err := image.Decode(src)
	if err != nil {
		return nil, &DecodeError{Name: asset.Name, Err: err}
	}
	return orient.apply(subsample(decoded, sampleSize)), nil
}

// subsample reads the decoded image in place; only the reduced bitmap is
// allocated.
func subsample(src image.Image, sampleSize int) *image.NRGBA {
	if nrgba, ok := src.(*image.NRGBA); ok && sampleSize == 1 && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}

	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	dstW := max(srcW/sampleSize, 1)
	dstH := max(srcH/sampleSize, 1)
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	at := pixelReader(src)

	parallelRows(dstH, func(y int) {
		y0 := b.Min.Y + y*sampleSize
		y1 := min(y0+sampleSize, b.Max.Y)
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < dstW; x++ {
			x0 := b.Min.X + x*sampleSize
			x1 := min(x0+sampleSize, b.Max.X)

			var r, g, bl, a, n int
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					c := at(sx, sy)
					r += int(c.R)
					g += int(c.G)
					bl += int(c.B)
					a += int(c.A)
					n++
				}
			}
			i := x * 4
			row[i] = uint8((r + n/2) / n)
			row[i+1] = uint8((g + n/2) / n)
			row[i+2] = uint8((bl + n/2) / n)
			row[i+3] = uint8((a + n/2) / n)
		}
	})
	return dst
}

// pixelReader returns a non-premultiplied accessor with fast paths for the
// layouts the stdlib decoders produce.
func pixelReader(src image.Image) func(x, y int) color.NRGBA {
	switch img := src.(type) {
	case *image.NRGBA:
		return func(x, y int) color.NRGBA {
			i := img.PixOffset(x, y)
			return color.NRGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: img.Pix[i+3]}
		}
	case *image.YCbCr:
		return func(x, y int) color.NRGBA {
			c := img.YCbCrAt(x, y)
			r, g, b := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
			return color.NRGBA{R: r, G: g, B: b, A: 0xff}
		}
	case *image.Gray:
		return func(x, y int) color.NRGBA {
			v := img.Pix[img.PixOffset(x, y)]
			return color.NRGBA{R: v, G: v, B: v, A: 0xff}
		}
	default:
		return func(x, y int) color.NRGBA {
			return color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
		}
	}
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// orientation is the EXIF orientation tag value, 1 being upright.
type orientation int

const (
	orientationNormal     orientation = 1
	orientationFlipH      orientation = 2
	orientationRotate180  orientation = 3
	orientationFlipV      orientation = 4
	orientationTranspose  orientation = 5
	orientationRotate270  orientation = 6
	orientationTransverse orientation = 7
	orientationRotate90   orientation = 8
)

func (o orientation) swapsAxes() bool {
	return o >= orientationTranspose && o <= orientationRotate90
}

// apply turns the stored pixels upright. Tag 6 means the camera was rotated
// clockwise, which imaging expresses as a counter-clockwise Rotate270.
func (o orientation) apply(img *image.NRGBA) *image.NRGBA {
	switch o {
	case orientationFlipH:
		return imaging.FlipH(img)
	case orientationRotate180:
		return imaging.Rotate180(img)
	case orientationFlipV:
		return imaging.FlipV(img)
	case orientationTranspose:
		return imaging.Transpose(img)
	case orientationRotate270:
		return imaging.Rotate270(img)
	case orientationTransverse:
		return imaging.Transverse(img)
	case orientationRotate90:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
