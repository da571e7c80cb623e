package dto

import "neurodrive/internal/model"

// ImageReport is the per-image part of a detection response.
type ImageReport struct {
	ImageName     string            `json:"imageName"`
	TotalVehicles int               `json:"totalVehicles"`
	DominantClass string            `json:"dominantClass"`
	AvgConfidence float64           `json:"avgConfidence"`
	ClassCounts   map[string]int    `json:"classCounts"`
	ImageURL      string            `json:"imageUrl"`
	Detections    []model.Detection `json:"detections"`
}

// FailureInfo describes an image that could not be processed.
type FailureInfo struct {
	ImageName string `json:"imageName"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// NewFailureInfo converts a pipeline failure.
func NewFailureInfo(f model.ImageFailure) FailureInfo {
	return FailureInfo{ImageName: f.ImageName, Stage: f.Stage, Error: f.Message()}
}
