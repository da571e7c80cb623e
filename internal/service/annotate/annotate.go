package annotate

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"neurodrive/internal/model"

	"gocv.io/x/gocv"
)

const (
	boxThickness  = 2
	fontFace      = gocv.FontHersheySimplex
	fontScale     = 0.6
	fontThickness = 2
)

// DefaultColor is used for labels outside the vehicle taxonomy.
var DefaultColor = color.RGBA{R: 128, G: 128, B: 128, A: 0}

var classColors = map[string]color.RGBA{
	"bicycle":       {R: 255, G: 165, B: 0, A: 0},
	"bus":           {R: 255, G: 0, B: 255, A: 0},
	"car":           {R: 0, G: 255, B: 0, A: 0},
	"motorcycle":    {R: 0, G: 191, B: 255, A: 0},
	"three_wheeler": {R: 255, G: 255, B: 0, A: 0},
	"tractor":       {R: 165, G: 42, B: 42, A: 0},
	"truck":         {R: 0, G: 0, B: 255, A: 0},
	"van":           {R: 0, G: 255, B: 255, A: 0},
}

var textColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}

var writable = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".tif": true, ".tiff": true, ".webp": true,
}

// ColorFor returns the drawing color of a class label.
func ColorFor(label string) color.RGBA {
	if c, ok := classColors[strings.ToLower(label)]; ok {
		return c
	}
	return DefaultColor
}

// Caption is the text drawn above a box, eg "car: 0.87".
func Caption(d model.Detection) string {
	return fmt.Sprintf("%s: %.2f", d.Label, d.Confidence)
}

// Annotate draws every detection onto a copy of src and returns it.
// The caller owns the returned Mat and must Close it.
func Annotate(src gocv.Mat, detections []model.Detection) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), fmt.Errorf("cannot annotate an empty image")
	}

	out := src.Clone()
	for _, d := range detections {
		if err := drawDetection(&out, d); err != nil {
			out.Close()
			return gocv.NewMat(), fmt.Errorf("failed to draw %s: %w", d.Label, err)
		}
	}
	return out, nil
}

func drawDetection(img *gocv.Mat, d model.Detection) error {
	c := ColorFor(d.Label)

	if err := gocv.Rectangle(img, d.Rect(), c, boxThickness); err != nil {
		return err
	}

	caption := Caption(d)
	size, _ := gocv.GetTextSizeWithBaseline(caption, fontFace, fontScale, fontThickness)

	background := image.Rect(d.X1, d.Y1-size.Y-10, d.X1+size.X, d.Y1)
	if err := gocv.Rectangle(img, background, c, -1); err != nil {
		return err
	}

	return gocv.PutText(img, caption, image.Pt(d.X1, d.Y1-5), fontFace, fontScale, textColor, fontThickness)
}

// Save writes img to path, creating missing parent directories. The format follows the extension.
func Save(path string, img gocv.Mat) error {
	if !writable[strings.ToLower(filepath.Ext(path))] {
		return fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}
