package generators

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/yungbote/qalam-backend/internal/platform/envutil"
)

const (
	previewWidth   = 1024
	previewHeight  = 640
	previewPadding = 48.0
	labelSize      = 14.0
)

var (
	labelFontOnce sync.Once
	labelFont     *truetype.Font
	labelFontErr  error
)

// loadLabelFont prefers MAP_FONT_PATH (a face with Arabic coverage in production) and falls
// back to the bundled Go font.
func loadLabelFont() (*truetype.Font, error) {
	labelFontOnce.Do(func() {
		data := goregular.TTF
		if p := strings.TrimSpace(envutil.String("MAP_FONT_PATH", "")); p != "" {
			b, err := os.ReadFile(p)
			if err != nil {
				labelFontErr = fmt.Errorf("failed to read font file: %w", err)
				return
			}
			data = b
		}
		labelFont, labelFontErr = truetype.Parse(data)
		if labelFontErr != nil {
			labelFontErr = fmt.Errorf("failed to parse TTF: %w", labelFontErr)
		}
	})
	return labelFont, labelFontErr
}

/*
RenderPreview draws the located places on a plain equirectangular canvas and returns a PNG.
The view is the map's bounds with padding; a single point (or none) is centered.
*/
func RenderPreview(m *InteractiveMap) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("nil map")
	}
	f, err := loadLabelFont()
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(f, &truetype.Options{Size: labelSize, DPI: 72, Hinting: font.HintingNone})
	defer face.Close()

	dc := gg.NewContext(previewWidth, previewHeight)
	dc.SetColor(color.RGBA{R: 0xF4, G: 0xEF, B: 0xE6, A: 0xFF})
	dc.DrawRectangle(0, 0, previewWidth, previewHeight)
	dc.Fill()

	// graticule every 1/8 of the canvas
	dc.SetColor(color.RGBA{R: 0xD9, G: 0xCF, B: 0xBF, A: 0xFF})
	dc.SetLineWidth(1)
	for i := 1; i < 8; i++ {
		x := float64(i) * previewWidth / 8
		y := float64(i) * previewHeight / 8
		dc.DrawLine(x, 0, x, previewHeight)
		dc.DrawLine(0, y, previewWidth, y)
	}
	dc.Stroke()

	project := projector(m)
	dc.SetFontFace(face)
	for _, ft := range m.Features {
		x, y := project(ft.Geometry.Coordinates[1], ft.Geometry.Coordinates[0])
		dc.SetColor(color.RGBA{R: 0xB0, G: 0x3A, B: 0x2E, A: 0xFF})
		dc.DrawCircle(x, y, 6)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawCircle(x, y, 2.5)
		dc.Fill()

		name, _ := ft.Properties["name"].(string)
		if name == "" {
			continue
		}
		tw, th := dc.MeasureString(name)
		lx := x + 10
		if lx+tw > previewWidth-4 {
			lx = x - 10 - tw
		}
		dc.SetColor(color.RGBA{R: 0x2B, G: 0x2B, B: 0x2B, A: 0xFF})
		dc.DrawString(name, lx, y+th/2-2)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func projector(m *InteractiveMap) func(lat, lng float64) (float64, float64) {
	w, h := float64(previewWidth)-2*previewPadding, float64(previewHeight)-2*previewPadding
	b := m.Bounds
	if b == nil || (b.North-b.South == 0 && b.East-b.West == 0) {
		return func(lat, lng float64) (float64, float64) {
			return previewWidth / 2, previewHeight / 2
		}
	}
	spanLng := b.East - b.West
	spanLat := b.North - b.South
	if spanLng == 0 {
		spanLng = spanLat
	}
	if spanLat == 0 {
		spanLat = spanLng
	}
	scale := w / spanLng
	if s := h / spanLat; s < scale {
		scale = s
	}
	cx := (b.West + b.East) / 2
	cy := (b.South + b.North) / 2
	return func(lat, lng float64) (float64, float64) {
		return previewWidth/2 + (lng-cx)*scale, previewHeight/2 - (lat-cy)*scale
	}
}
