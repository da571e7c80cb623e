package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"neurodrive/internal/model"
)

// Fixed leading columns of a report.
var fixedColumns = []string{"Image Name", "Total Vehicles", "Dominant Class", "Average Confidence"}

// Table is a batch report: one row per image result.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// BuildReport lays out one row per result. After the fixed columns comes one
// "<Class> Count" column per label, in the order labels first appear in the batch.
func BuildReport(results []model.ImageResult) *Table {
	labels := batchLabels(results)

	header := make([]string, 0, len(fixedColumns)+len(labels))
	header = append(header, fixedColumns...)
	for _, label := range labels {
		header = append(header, CountColumn(label))
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		row := []string{
			r.ImageName,
			strconv.Itoa(r.TotalVehicles()),
			r.DominantClass,
			FormatPercent(r.AvgConfidence),
		}
		for _, label := range labels {
			row = append(row, strconv.Itoa(r.ClassCounts[label]))
		}
		rows = append(rows, row)
	}

	return &Table{Header: header, Rows: rows}
}

// CountColumn names the count column of a label: first letter upper-cased, the rest lower-cased.
func CountColumn(label string) string {
	if label == "" {
		return "Count"
	}
	first, size := utf8.DecodeRuneInString(label)
	return strings.ToUpper(string(first)) + strings.ToLower(label[size:]) + " Count"
}

// FormatPercent renders a [0,1] confidence as "87.50%".
func FormatPercent(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence*100)
}

// WriteCSV writes the header and all rows.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteCSVFile builds the report for results and writes it to path.
func WriteCSVFile(path string, results []model.ImageResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	if err := BuildReport(results).WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func batchLabels(results []model.ImageResult) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, r := range results {
		for _, d := range r.Detections {
			if !seen[d.Label] {
				seen[d.Label] = true
				labels = append(labels, d.Label)
			}
		}
	}
	return labels
}
