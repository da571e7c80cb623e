package model

import "time"

// Run modes.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

// Run is the stored record of one detection job.
type Run struct {
	ID              string    `json:"id"`
	Mode            string    `json:"mode"`
	Threshold       float64   `json:"threshold"`
	OrganizeByClass bool      `json:"organizeByClass"`
	CreatedAt       time.Time `json:"createdAt"`
	TotalImages     int       `json:"totalImages"`
	TotalVehicles   int       `json:"totalVehicles"`
	FailedImages    int       `json:"failedImages"`
	AvgConfidence   float64   `json:"avgConfidence"`
	OutputDir       string    `json:"outputDir"`
	ReportPath      string    `json:"reportPath"`
	ArchivePath     string    `json:"archivePath"`
}

// StoredResult is an image result row belonging to a run.
type StoredResult struct {
	ID            int64   `json:"id"`
	RunID         string  `json:"runId"`
	ImageName     string  `json:"imageName"`
	AnnotatedPath string  `json:"annotatedPath"`
	DominantClass string  `json:"dominantClass"`
	TotalVehicles int     `json:"totalVehicles"`
	AvgConfidence float64 `json:"avgConfidence"`
	Error         string  `json:"error,omitempty"`
}

// StoredDetection is a detection row belonging to a stored result.
type StoredDetection struct {
	ID         int64   `json:"id"`
	ResultID   int64   `json:"resultId"`
	Label      string  `json:"label"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
}
