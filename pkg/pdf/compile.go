package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// a4 content box in millimeters, with a small margin all around.
const (
	pageWidthMM  = 210.0
	pageHeightMM = 297.0
	marginMM     = 10.0
)

// CompileParams configures a comic book compilation.
type CompileParams struct {
	Title string
	// Pages holds one encoded PNG per comic page, in order.
	Pages [][]byte
	// DPI controls raster density metadata for the embedded images.
	DPI int
}

// Compile renders the page images into a single A4 portrait PDF and returns
// the document bytes together with the page count.
func Compile(params CompileParams) ([]byte, int, error) {
	if len(params.Pages) == 0 {
		return nil, 0, errors.New("at least one page is required")
	}
	dpi := params.DPI
	if dpi <= 0 {
		dpi = 150
	}

	doc := fpdf.New(fpdf.OrientationPortrait, fpdf.UnitMillimeter, fpdf.PageSizeA4, "")
	doc.SetTitle(params.Title, true)
	doc.SetMargins(marginMM, marginMM, marginMM)

	for i, page := range params.Pages {
		if len(page) == 0 {
			return nil, 0, fmt.Errorf("page %d is empty", i+1)
		}
		name := fmt.Sprintf("page_%d", i+1)
		opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		info := doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(page))
		if doc.Err() {
			return nil, 0, fmt.Errorf("registering page %d: %w", i+1, doc.Error())
		}
		info.SetDpi(float64(dpi))

		doc.AddPage()
		usableW := pageWidthMM - 2*marginMM
		usableH := pageHeightMM - 2*marginMM

		w, h := fitBox(info.Width(), info.Height(), usableW, usableH)
		x := marginMM + (usableW-w)/2
		y := marginMM + (usableH-h)/2
		doc.ImageOptions(name, x, y, w, h, false, opts, 0, "")
		if doc.Err() {
			return nil, 0, fmt.Errorf("placing page %d: %w", i+1, doc.Error())
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, 0, fmt.Errorf("writing pdf: %w", err)
	}
	return buf.Bytes(), len(params.Pages), nil
}

// fitBox scales (w, h) to fit inside (maxW, maxH) preserving aspect ratio.
func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := maxW / w
	if h*scale > maxH {
		scale = maxH / h
	}
	return w * scale, h * scale
}
