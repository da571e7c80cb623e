package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MODEL_PATH", "")
	t.Setenv("CONFIDENCE_THRESHOLD", "")
	t.Setenv("PROCESSING_WORKERS", "")

	cfg := Load()

	assert.Equal(t, DefaultConfidenceThreshold, cfg.ConfidenceThreshold)
	assert.Equal(t, 1, cfg.ProcessingWorkers)
	assert.Equal(t, "opencv", cfg.DetectorBackend)
	assert.True(t, cfg.OrganizeByClass)
	assert.Equal(t, "models/best.json", cfg.ModelConfigPath)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("MODEL_PATH", "/srv/weights/vehicles.onnx")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.6")
	t.Setenv("PROCESSING_WORKERS", "4")
	t.Setenv("ORGANIZE_BY_CLASS", "false")
	t.Setenv("DETECTOR_BACKEND", "onnxruntime")

	cfg := Load()

	assert.Equal(t, "/srv/weights/vehicles.onnx", cfg.ModelPath)
	assert.Equal(t, "/srv/weights/vehicles.json", cfg.ModelConfigPath)
	assert.Equal(t, 0.6, cfg.ConfidenceThreshold)
	assert.Equal(t, 4, cfg.ProcessingWorkers)
	assert.False(t, cfg.OrganizeByClass)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("CONFIDENCE_THRESHOLD", "high")
	t.Setenv("ORGANIZE_BY_CLASS", "maybe")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DefaultConfidenceThreshold, cfg.ConfidenceThreshold)
	assert.True(t, cfg.OrganizeByClass)
}

func TestValidateThreshold(t *testing.T) {
	tests := []struct {
		threshold float64
		valid     bool
	}{
		{0.1, true},
		{0.25, true},
		{1.0, true},
		{0.09, false},
		{0, false},
		{1.01, false},
		{-0.5, false},
	}

	for _, tt := range tests {
		err := ValidateThreshold(tt.threshold)
		if tt.valid {
			assert.NoError(t, err, "threshold %v", tt.threshold)
		} else {
			assert.True(t, errors.Is(err, ErrInvalidThreshold), "threshold %v", tt.threshold)
		}
	}
}

func TestValidate_RejectsBadSettings(t *testing.T) {
	base := Config{ConfidenceThreshold: 0.25, NmsThreshold: 0.45, ProcessingWorkers: 1, DetectorBackend: "opencv"}

	noWorkers := base
	noWorkers.ProcessingWorkers = 0
	assert.Error(t, noWorkers.Validate())

	badBackend := base
	badBackend.DetectorBackend = "tensorflow"
	assert.Error(t, badBackend.Validate())

	badNms := base
	badNms.NmsThreshold = 0
	assert.Error(t, badNms.Validate())

	assert.NoError(t, base.Validate())
}
