package agent

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	cropContrast = 2.0
	cropUpscale  = 3
)

// decodePNG decodes a screenshot
func decodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// scaleRect maps a viewport box to image pixels and clips it to bounds
func scaleRect(b Box, scale float64, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(b.X*scale),
		int(b.Y*scale),
		int((b.X+b.Width)*scale+0.5),
		int((b.Y+b.Height)*scale+0.5),
	).Add(bounds.Min)
	return r.Intersect(bounds)
}

// normalizeCrop crops r from src, converts it to grayscale, stretches the
// contrast around the mean luminance and upscales it.
func normalizeCrop(src image.Image, r image.Rectangle) *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	var sum int
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			g := color.GrayModel.Convert(src.At(r.Min.X+x, r.Min.Y+y)).(color.Gray)
			gray.SetGray(x, y, g)
			sum += int(g.Y)
		}
	}

	if n := r.Dx() * r.Dy(); n > 0 {
		mean := float64(sum) / float64(n)
		for i, px := range gray.Pix {
			gray.Pix[i] = clampByte(mean + cropContrast*(float64(px)-mean))
		}
	}

	out := image.NewGray(image.Rect(0, 0, r.Dx()*cropUpscale, r.Dy()*cropUpscale))
	draw.CatmullRom.Scale(out, out.Bounds(), gray, gray.Bounds(), draw.Src, nil)
	return out
}

func clampByte(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v + 0.5)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
