package dto

import (
	"encoding/json"
	"time"

	"neurodrive/internal/model"
)

// RunInfo is one entry of the run history.
type RunInfo struct {
	ID            string    `json:"id"`
	Mode          string    `json:"mode"`
	Date          time.Time `json:"date"`
	TimeOfDay     time.Time `json:"timeOfDay"`
	Threshold     float64   `json:"threshold"`
	TotalImages   int       `json:"totalImages"`
	TotalVehicles int       `json:"totalVehicles"`
	FailedImages  int       `json:"failedImages"`
	AvgConfidence float64   `json:"avgConfidence"`
	HasReport     bool      `json:"hasReport"`
	HasArchive    bool      `json:"hasArchive"`
}

// NewRunInfo converts a stored run.
func NewRunInfo(run model.Run) RunInfo {
	return RunInfo{
		ID:            run.ID,
		Mode:          run.Mode,
		Date:          run.CreatedAt,
		TimeOfDay:     run.CreatedAt,
		Threshold:     run.Threshold,
		TotalImages:   run.TotalImages,
		TotalVehicles: run.TotalVehicles,
		FailedImages:  run.FailedImages,
		AvgConfidence: run.AvgConfidence,
		HasReport:     run.ReportPath != "",
		HasArchive:    run.ArchivePath != "",
	}
}

// MarshalJSON customizes JSON output for RunInfo to format date and time-of-day.
func (p RunInfo) MarshalJSON() ([]byte, error) {
	type Alias RunInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      p.Date.Local().Format("02-01-2006"),
		TimeOfDay: p.TimeOfDay.Local().Format("15:04"),
		Alias:     (Alias)(p),
	})
}
