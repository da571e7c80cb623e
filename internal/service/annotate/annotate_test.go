package annotate

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"neurodrive/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func blank(t *testing.T, w, h int) gocv.Mat {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { mat.Close() })
	return mat
}

func TestColorFor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0, G: 255, B: 0}, ColorFor("car"))
	assert.Equal(t, ColorFor("truck"), ColorFor("TRUCK"))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 0}, ColorFor("three_wheeler"))
	assert.Equal(t, color.RGBA{R: 165, G: 42, B: 42}, ColorFor("tractor"))
	assert.Equal(t, DefaultColor, ColorFor("spaceship"))
	assert.Equal(t, DefaultColor, ColorFor(""))
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "car: 0.87", Caption(model.Detection{Label: "car", Confidence: 0.8712}))
	assert.Equal(t, "bus: 1.00", Caption(model.Detection{Label: "bus", Confidence: 1}))
}

func TestAnnotate_LeavesSourceUntouched(t *testing.T) {
	src := blank(t, 200, 120)
	dets := []model.Detection{{X1: 40, Y1: 50, X2: 120, Y2: 100, Label: "car", Confidence: 0.9}}

	out, err := Annotate(src, dets)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, src.Rows(), out.Rows())
	assert.Equal(t, src.Cols(), out.Cols())
	assert.Equal(t, 0, gocv.CountNonZero(grey(t, src)))

	// box outline is drawn in green (BGR order in the Mat)
	px := out.GetVecbAt(100, 40)
	assert.Equal(t, uint8(0), px[0])
	assert.Equal(t, uint8(255), px[1])
	assert.Equal(t, uint8(0), px[2])
}

func TestAnnotate_NoDetectionsIsACopy(t *testing.T) {
	src := blank(t, 64, 64)

	out, err := Annotate(src, nil)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 0, gocv.CountNonZero(grey(t, out)))
}

func TestAnnotate_BoxAtTopEdge(t *testing.T) {
	src := blank(t, 100, 100)

	out, err := Annotate(src, []model.Detection{{X1: 0, Y1: 0, X2: 30, Y2: 30, Label: "van", Confidence: 0.5}})
	require.NoError(t, err)
	out.Close()
}

func TestAnnotate_EmptyImage(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := Annotate(empty, nil)
	assert.Error(t, err)
}

func TestSave_CreatesDirectories(t *testing.T) {
	src := blank(t, 32, 32)
	path := filepath.Join(t.TempDir(), "car", "annotated_a.jpg")

	require.NoError(t, Save(path, src))

	back := gocv.IMRead(path, gocv.IMReadColor)
	defer back.Close()
	assert.Equal(t, image.Pt(32, 32), image.Pt(back.Cols(), back.Rows()))
}

func TestSave_UnknownExtensionFails(t *testing.T) {
	src := blank(t, 8, 8)
	assert.Error(t, Save(filepath.Join(t.TempDir(), "out.notanimage"), src))
}

func grey(t *testing.T, img gocv.Mat) gocv.Mat {
	t.Helper()
	g := gocv.NewMat()
	gocv.CvtColor(img, &g, gocv.ColorBGRToGray)
	t.Cleanup(func() { g.Close() })
	return g
}
