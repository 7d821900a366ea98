package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestComposePageGrid(t *testing.T) {
	t.Parallel()

	panels := [][]byte{
		solidPNG(t, 64, 64, color.NRGBA{R: 255, A: 255}),
		solidPNG(t, 64, 64, color.NRGBA{G: 255, A: 255}),
		solidPNG(t, 64, 64, color.NRGBA{B: 255, A: 255}),
		solidPNG(t, 64, 64, color.NRGBA{R: 255, G: 255, A: 255}),
	}

	page, err := ComposePage(panels)
	if err != nil {
		t.Fatalf("ComposePage: %v", err)
	}

	wantSize := 64*2 + gutterPx*3
	if page.Bounds().Dx() != wantSize || page.Bounds().Dy() != wantSize {
		t.Fatalf("unexpected page size %v", page.Bounds())
	}

	// sample the center of each quadrant
	r, _, _, _ := page.At(gutterPx+32, gutterPx+32).RGBA()
	if r>>8 != 255 {
		t.Fatalf("top-left quadrant not red, r=%d", r>>8)
	}
	_, g, _, _ := page.At(gutterPx*2+64+32, gutterPx+32).RGBA()
	if g>>8 != 255 {
		t.Fatalf("top-right quadrant not green, g=%d", g>>8)
	}
	_, _, b, _ := page.At(gutterPx+32, gutterPx*2+64+32).RGBA()
	if b>>8 != 255 {
		t.Fatalf("bottom-left quadrant not blue, b=%d", b>>8)
	}
}

func TestComposePageResizesMismatchedPanels(t *testing.T) {
	t.Parallel()

	panels := [][]byte{
		solidPNG(t, 64, 64, color.NRGBA{R: 255, A: 255}),
		solidPNG(t, 32, 32, color.NRGBA{G: 255, A: 255}),
		solidPNG(t, 64, 64, color.NRGBA{B: 255, A: 255}),
		solidPNG(t, 64, 64, color.NRGBA{R: 255, G: 255, A: 255}),
	}

	page, err := ComposePage(panels)
	if err != nil {
		t.Fatalf("ComposePage: %v", err)
	}
	wantSize := 64*2 + gutterPx*3
	if page.Bounds().Dx() != wantSize {
		t.Fatalf("unexpected page width %d", page.Bounds().Dx())
	}
}

func TestComposePageRequiresFourPanels(t *testing.T) {
	t.Parallel()

	if _, err := ComposePage([][]byte{solidPNG(t, 8, 8, color.White)}); err == nil {
		t.Fatal("expected panel count error")
	}
}

func TestComposePageRejectsBadImage(t *testing.T) {
	t.Parallel()

	panels := [][]byte{
		solidPNG(t, 8, 8, color.White),
		[]byte("not a png"),
		solidPNG(t, 8, 8, color.White),
		solidPNG(t, 8, 8, color.White),
	}
	if _, err := ComposePage(panels); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestWatermarkChangesPixels(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	marked := Watermark(img, "ComicForge")

	changed := false
	for y := 0; y < 100 && !changed; y++ {
		for x := 0; x < 200; x++ {
			if marked.At(x, y) != img.At(x, y) {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Fatal("expected watermark to alter the image")
	}
}

func TestWatermarkEmptyTextIsNoop(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	if got := Watermark(img, ""); got != image.Image(img) {
		t.Fatal("expected original image back")
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode encoded png: %v", err)
	}
}
