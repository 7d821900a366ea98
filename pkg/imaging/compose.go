package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	disimaging "github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	panelsPerPage = 4
	gutterPx      = 8
)

// ComposePage lays four decoded panel images out on a 2x2 grid with a white
// gutter between them. Panels are ordered left-to-right, top-to-bottom.
func ComposePage(panels [][]byte) (image.Image, error) {
	if len(panels) != panelsPerPage {
		return nil, fmt.Errorf("expected %d panels, got %d", panelsPerPage, len(panels))
	}

	decoded := make([]image.Image, 0, panelsPerPage)
	for i, raw := range panels {
		img, err := disimaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decoding panel %d: %w", i+1, err)
		}
		decoded = append(decoded, img)
	}

	// normalize all panels to the first panel's size
	base := decoded[0].Bounds()
	width, height := base.Dx(), base.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("panel image has zero dimensions")
	}
	for i := 1; i < panelsPerPage; i++ {
		if decoded[i].Bounds().Dx() != width || decoded[i].Bounds().Dy() != height {
			decoded[i] = disimaging.Resize(decoded[i], width, height, disimaging.Lanczos)
		}
	}

	page := disimaging.New(width*2+gutterPx*3, height*2+gutterPx*3, color.White)
	for i, panel := range decoded {
		col := i % 2
		row := i / 2
		x := gutterPx + col*(width+gutterPx)
		y := gutterPx + row*(height+gutterPx)
		page = disimaging.Paste(page, panel, image.Pt(x, y))
	}
	return page, nil
}

// Watermark stamps translucent text in the bottom-right corner.
func Watermark(img image.Image, text string) image.Image {
	if text == "" {
		return img
	}

	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()
	margin := 12

	drawer := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 160}),
		Face: face,
		Dot: fixed.P(
			bounds.Max.X-textWidth-margin,
			bounds.Max.Y-margin,
		),
	}
	drawer.DrawString(text)
	return out
}

// EncodePNG serializes an image into PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := disimaging.Encode(&buf, img, disimaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding page png: %w", err)
	}
	return buf.Bytes(), nil
}
