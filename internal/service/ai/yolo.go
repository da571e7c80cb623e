package ai

import (
	"image"
	"sort"

	"neurodrive/internal/model"

	"github.com/chewxy/math32"
)

// DecodeParams controls how a raw YOLO output tensor becomes detections.
type DecodeParams struct {
	ConfThreshold float32
	NmsThreshold  float32
	InputWidth    int // Size the image was resized to before inference
	InputHeight   int
	ImageWidth    int // Size of the original image
	ImageHeight   int
	Classes       *ModelConfig
}

type candidate struct {
	box     image.Rectangle
	score   float32
	classID int
}

// DecodeYOLO converts a YOLOv8 output of shape [1, 4+numClasses, N] into detections.
// Each of the N columns holds cx, cy, w, h in model input pixels followed by one score per class.
// Boxes are scaled to the original image, clipped to it, and filtered with per-class NMS.
func DecodeYOLO(output []float32, numClasses int, p DecodeParams) []model.Detection {
	rows := 4 + numClasses
	if numClasses <= 0 || len(output) < rows || len(output)%rows != 0 {
		return nil
	}
	n := len(output) / rows

	scaleX := float32(p.ImageWidth) / float32(p.InputWidth)
	scaleY := float32(p.ImageHeight) / float32(p.InputHeight)
	bounds := image.Rect(0, 0, p.ImageWidth, p.ImageHeight)

	var candidates []candidate
	for i := 0; i < n; i++ {
		classID := -1
		var best float32
		for c := 0; c < numClasses; c++ {
			score := output[(4+c)*n+i]
			if score > best {
				best = score
				classID = c
			}
		}
		if classID < 0 || best < p.ConfThreshold {
			continue
		}

		cx := output[0*n+i]
		cy := output[1*n+i]
		w := output[2*n+i]
		h := output[3*n+i]

		box := image.Rect(
			int(math32.Round((cx-w/2)*scaleX)),
			int(math32.Round((cy-h/2)*scaleY)),
			int(math32.Round((cx+w/2)*scaleX)),
			int(math32.Round((cy+h/2)*scaleY)),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}

		candidates = append(candidates, candidate{box: box, score: best, classID: classID})
	}

	kept := nms(candidates, p.NmsThreshold)

	detections := make([]model.Detection, 0, len(kept))
	for _, c := range kept {
		score := float64(math32.Min(c.score, 1))
		detections = append(detections, model.Detection{
			X1:         c.box.Min.X,
			Y1:         c.box.Min.Y,
			X2:         c.box.Max.X,
			Y2:         c.box.Max.Y,
			Label:      p.Classes.ClassName(c.classID),
			Confidence: score,
		})
	}
	return detections
}

// nms keeps the highest scoring boxes, dropping same-class boxes that overlap a kept one by more than iouThreshold.
func nms(candidates []candidate, iouThreshold float32) []candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var kept []candidate
	for _, c := range candidates {
		suppressed := false
		for _, k := range kept {
			if k.classID == c.classID && iou(k.box, c.box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float32 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float32(inter.Dx() * inter.Dy())
	union := float32(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
