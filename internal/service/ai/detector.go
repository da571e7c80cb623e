package ai

import (
	"errors"
	"fmt"
	"os"

	"neurodrive/internal/config"
	"neurodrive/internal/logger"
	"neurodrive/internal/model"

	"gocv.io/x/gocv"
)

// DefaultNmsThreshold is the IoU above which same-class boxes are merged.
const DefaultNmsThreshold = 0.45

var (
	// ErrModelNotFound means the model weights are not where the configuration says.
	ErrModelNotFound = errors.New("model file not found")
	// ErrUnreadableImage means a file or upload could not be decoded as an image.
	ErrUnreadableImage = errors.New("unreadable image")
)

// Detector is given an image and returns the vehicles found in it.
// Implementations hold the loaded model and a threshold fixed at construction,
// and are not safe for concurrent use.
type Detector interface {
	// Detect returns every detection whose confidence is at least the threshold,
	// with boxes clipped to the image.
	Detect(img gocv.Mat) ([]model.Detection, error)

	// Close releases the model. You MUST call it, the model lives in C++ memory.
	Close() error
}

// Options configures a detector backend.
type Options struct {
	Backend            string
	ModelPath          string
	ModelConfigPath    string
	OnnxRuntimeLibPath string
	Threshold          float64
	NmsThreshold       float64
}

// OptionsFromConfig builds detector options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Backend:            cfg.DetectorBackend,
		ModelPath:          cfg.ModelPath,
		ModelConfigPath:    cfg.ModelConfigPath,
		OnnxRuntimeLibPath: cfg.OnnxRuntimeLibPath,
		Threshold:          cfg.ConfidenceThreshold,
		NmsThreshold:       cfg.NmsThreshold,
	}
}

// WithThreshold returns a copy of o using another confidence threshold.
func (o Options) WithThreshold(threshold float64) Options {
	o.Threshold = threshold
	return o
}

// CheckModel verifies the startup precondition that the model weights exist.
func CheckModel(modelPath string) error {
	info, err := os.Stat(modelPath)
	if os.IsNotExist(err) || (err == nil && info.IsDir()) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	}
	return err
}

// NewDetector loads the model with the configured backend.
func NewDetector(opts Options, logger *logger.Logger) (Detector, error) {
	if err := CheckModel(opts.ModelPath); err != nil {
		return nil, err
	}
	if err := config.ValidateThreshold(opts.Threshold); err != nil {
		return nil, err
	}
	if opts.NmsThreshold <= 0 {
		opts.NmsThreshold = DefaultNmsThreshold
	}

	modelConfig, err := LoadModelConfig(opts.ModelConfigPath)
	if err != nil {
		return nil, err
	}

	switch opts.Backend {
	case "", "opencv":
		return NewOpenCVDetector(opts, modelConfig, logger)
	case "onnxruntime":
		return NewOnnxDetector(opts, modelConfig, logger)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", opts.Backend)
	}
}

// NewDetectors creates n independent detectors, one per processing worker.
func NewDetectors(opts Options, logger *logger.Logger, n int) ([]Detector, error) {
	if n < 1 {
		n = 1
	}
	detectors := make([]Detector, 0, n)
	for i := 0; i < n; i++ {
		d, err := NewDetector(opts, logger)
		if err != nil {
			CloseAll(detectors)
			return nil, err
		}
		detectors = append(detectors, d)
	}
	return detectors, nil
}

// CloseAll closes every detector, ignoring errors.
func CloseAll(detectors []Detector) {
	for _, d := range detectors {
		d.Close()
	}
}

// ReadImage loads an image file as a BGR Mat.
func ReadImage(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %s", ErrUnreadableImage, path)
	}
	return mat, nil
}

// DecodeImage decodes an encoded image (JPEG, PNG, ...) held in memory.
func DecodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: empty data", ErrUnreadableImage)
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: decoded image is empty", ErrUnreadableImage)
	}
	return mat, nil
}
