package imageprocessing

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const IconSize = 96

var (
	//go:embed icons/alert.svg
	alertSVG []byte
	//go:embed icons/nowifi.svg
	noWifiSVG []byte
)

var (
	// AlertIconPNG is shown in place of an image that could not be decoded.
	AlertIconPNG = sync.OnceValues(func() ([]byte, error) {
		return RenderIconPNG(alertSVG, IconSize, IconSize)
	})
	// NoWifiIconPNG heads the offline dialog.
	NoWifiIconPNG = sync.OnceValues(func() ([]byte, error) {
		return RenderIconPNG(noWifiSVG, IconSize, IconSize)
	})
)

// RenderIconPNG rasterises an SVG onto a transparent canvas of the given size.
func RenderIconPNG(svgData []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target dimensions for SVG rendering: %dx%d", width, height)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, dst, dst.Bounds())
	dasher := rasterx.NewDasher(width, height, scanner)
	icon.Draw(dasher, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode rendered SVG as PNG: %w", err)
	}
	return buf.Bytes(), nil
}
