package model

// BatchSummary aggregates a set of image results. It is recomputed on demand and never stored on its own.
type BatchSummary struct {
	TotalImages       int            `json:"totalImages"`
	TotalVehicles     int            `json:"totalVehicles"`
	AvgConfidence     float64        `json:"avgConfidence"`
	ClassDistribution map[string]int `json:"classDistribution"`
}

// ClassCount is one entry of a class distribution.
type ClassCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}
