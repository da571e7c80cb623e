package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"neurodrive/internal/config"
)

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" from the request (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// parseThreshold reads the confidence slider value, falling back to def when absent.
func parseThreshold(v string, def float64) (float64, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	threshold, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, config.ErrInvalidThreshold
	}
	if err := config.ValidateThreshold(threshold); err != nil {
		return 0, err
	}
	return threshold, nil
}

// parseBool accepts checkbox style values ("on", "true", "1") and falls back to def when absent.
func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return def
	case "on", "yes":
		return true
	case "off", "no":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// downloadName builds names like report_20260314_093000.csv from the run time.
func downloadName(prefix string, at time.Time, ext string) string {
	return prefix + "_" + at.Local().Format("20060102_150405") + ext
}
