package model

import "image"

// Detection is one predicted vehicle: a box in pixel coordinates, a class label and a confidence in [0,1].
type Detection struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Rect returns the box as an image.Rectangle.
func (d Detection) Rect() image.Rectangle {
	return image.Rect(d.X1, d.Y1, d.X2, d.Y2)
}

// Valid reports whether the box is non-degenerate and the confidence is in range.
func (d Detection) Valid() bool {
	return d.X1 < d.X2 && d.Y1 < d.Y2 && d.Confidence >= 0 && d.Confidence <= 1 && d.Label != ""
}
