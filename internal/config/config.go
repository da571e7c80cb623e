package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// MinConfidenceThreshold and MaxConfidenceThreshold bound the user supplied threshold.
	MinConfidenceThreshold = 0.1
	MaxConfidenceThreshold = 1.0
	// DefaultConfidenceThreshold matches the initial slider value of the UI.
	DefaultConfidenceThreshold = 0.25
)

var ErrInvalidThreshold = errors.New("confidence threshold must be between 0.1 and 1.0")

type Config struct {
	Port                int
	Password            string
	SessionSecret       string // Signs login cookies; random per process when empty
	ModelPath           string
	ModelConfigPath     string // JSON with classes and input size, optional
	DetectorBackend     string // "opencv" or "onnxruntime"
	OnnxRuntimeLibPath  string
	ConfidenceThreshold float64
	NmsThreshold        float64
	UploadDirectory     string
	ResultDirectory     string
	DatabasePath        string
	LogDirectory        string
	StaticDirectory     string
	ProcessingWorkers   int // Number of images processed in parallel within one batch
	OrganizeByClass     bool
	MaxStoredRuns       int   // Older runs are pruned from disk and database
	MaxUploadSize       int64 // Upper bound for multipart uploads in MB
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Could not load .env file: %v", err)
	}

	modelPath := getEnv("MODEL_PATH", filepath.Join(".", "models", "best.onnx"))

	return &Config{
		Port:                getEnvAsInt("PORT", 8080),
		Password:            getEnv("PASSWORD", "neurodrive"),
		SessionSecret:       getEnv("SESSION_SECRET", ""),
		ModelPath:           modelPath,
		ModelConfigPath:     getEnv("MODEL_CONFIG_PATH", strings.TrimSuffix(modelPath, filepath.Ext(modelPath))+".json"),
		DetectorBackend:     getEnv("DETECTOR_BACKEND", "opencv"),
		OnnxRuntimeLibPath:  getEnv("ONNXRUNTIME_LIB", ""),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", DefaultConfidenceThreshold),
		NmsThreshold:        getEnvAsFloat("NMS_THRESHOLD", 0.45),
		UploadDirectory:     getEnv("UPLOAD_DIR", filepath.Join(".", "uploads")),
		ResultDirectory:     getEnv("RESULT_DIR", filepath.Join(".", "results")),
		DatabasePath:        getEnv("DB_PATH", filepath.Join(".", "data", "runs.db")),
		LogDirectory:        getEnv("LOG_DIR", filepath.Join(".", "logs")),
		StaticDirectory:     getEnv("STATIC_DIR", filepath.Join(".", "static")),
		ProcessingWorkers:   getEnvAsInt("PROCESSING_WORKERS", 1),
		OrganizeByClass:     getEnvAsBool("ORGANIZE_BY_CLASS", true),
		MaxStoredRuns:       getEnvAsInt("MAX_STORED_RUNS", 20),
		MaxUploadSize:       getEnvAsInt64("MAX_UPLOAD_SIZE_MB", 200),
	}
}

// Validate reports settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if err := ValidateThreshold(c.ConfidenceThreshold); err != nil {
		return err
	}
	if c.NmsThreshold <= 0 || c.NmsThreshold > 1 {
		return fmt.Errorf("nms threshold must be in (0, 1], got %v", c.NmsThreshold)
	}
	if c.ProcessingWorkers < 1 {
		return fmt.Errorf("processing workers must be at least 1, got %d", c.ProcessingWorkers)
	}
	switch c.DetectorBackend {
	case "opencv", "onnxruntime":
	default:
		return fmt.Errorf("unknown detector backend %q", c.DetectorBackend)
	}
	return nil
}

// ValidateThreshold checks a confidence threshold against the accepted range.
func ValidateThreshold(threshold float64) error {
	if threshold < MinConfidenceThreshold || threshold > MaxConfidenceThreshold {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
