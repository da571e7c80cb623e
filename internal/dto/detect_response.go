package dto

import "neurodrive/internal/model"

// DetectResponse is returned by the single image endpoint.
type DetectResponse struct {
	RunID     string             `json:"runId"`
	Threshold float64            `json:"threshold"`
	Result    ImageReport        `json:"result"`
	Summary   model.BatchSummary `json:"summary"`
}

// BatchResponse is returned by the batch endpoint.
type BatchResponse struct {
	RunID        string             `json:"runId"`
	Threshold    float64            `json:"threshold"`
	Results      []ImageReport      `json:"results"`
	Failures     []FailureInfo      `json:"failures"`
	Summary      model.BatchSummary `json:"summary"`
	Distribution []model.ClassCount `json:"distribution"`
	ReportHeader []string           `json:"reportHeader"`
	ReportRows   [][]string         `json:"reportRows"`
	ReportURL    string             `json:"reportUrl"`
	ArchiveURL   string             `json:"archiveUrl,omitempty"`
}
