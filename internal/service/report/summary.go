package report

import (
	"sort"

	"neurodrive/internal/model"
)

// Summarize aggregates results. AvgConfidence is the mean over every detection of the batch,
// not the mean of per-image means.
func Summarize(results []model.ImageResult) model.BatchSummary {
	summary := model.BatchSummary{
		TotalImages:       len(results),
		ClassDistribution: make(map[string]int),
	}

	var confidenceSum float64
	for _, r := range results {
		summary.TotalVehicles += r.TotalVehicles()
		for _, d := range r.Detections {
			confidenceSum += d.Confidence
			summary.ClassDistribution[d.Label]++
		}
	}

	if summary.TotalVehicles > 0 {
		summary.AvgConfidence = confidenceSum / float64(summary.TotalVehicles)
	}
	return summary
}

// SortedDistribution lists a class distribution by descending count, ties by label.
func SortedDistribution(distribution map[string]int) []model.ClassCount {
	counts := make([]model.ClassCount, 0, len(distribution))
	for label, count := range distribution {
		counts = append(counts, model.ClassCount{Label: label, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Label < counts[j].Label
	})
	return counts
}
