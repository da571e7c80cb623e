package dto

import "neurodrive/internal/model"

// RunDetail is a stored run with its per-image results.
type RunDetail struct {
	Run          model.Run          `json:"run"`
	Results      []ResultDetail     `json:"results"`
	Distribution []model.ClassCount `json:"distribution"`
}

// ResultDetail is a stored image result with its boxes.
type ResultDetail struct {
	model.StoredResult
	Detections []model.StoredDetection `json:"detections"`
}

// StatsData aggregates every stored run.
type StatsData struct {
	TotalRuns    int                `json:"totalRuns"`
	Labels       []string           `json:"labels"`
	Distribution []model.ClassCount `json:"distribution"`
}

// HealthStatus is reported by /health.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}
