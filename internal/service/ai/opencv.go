package ai

import (
	"fmt"
	"image"

	"neurodrive/internal/logger"
	"neurodrive/internal/model"

	"gocv.io/x/gocv"
)

// OpenCVDetector runs an ONNX YOLO export through the OpenCV DNN module.
type OpenCVDetector struct {
	net       gocv.Net
	config    *ModelConfig
	threshold float32
	nms       float32
	logger    *logger.Logger
}

// NewOpenCVDetector loads the network and sets backend/target preferences.
func NewOpenCVDetector(opts Options, modelConfig *ModelConfig, logger *logger.Logger) (*OpenCVDetector, error) {
	net := gocv.ReadNetFromONNX(opts.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", opts.ModelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	logger.Info("Detection network loaded from %s (%d classes, %dx%d input)",
		opts.ModelPath, len(modelConfig.Classes), modelConfig.Width, modelConfig.Height)

	return &OpenCVDetector{
		net:       net,
		config:    modelConfig,
		threshold: float32(opts.Threshold),
		nms:       float32(opts.NmsThreshold),
		logger:    logger,
	}, nil
}

// Detect runs a forward pass and decodes the output tensor.
func (d *OpenCVDetector) Detect(img gocv.Mat) ([]model.Detection, error) {
	if d.net.Empty() {
		return nil, fmt.Errorf("detection network not initialized")
	}
	if img.Empty() {
		return nil, fmt.Errorf("%w: image is empty", ErrUnreadableImage)
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(d.config.Width, d.config.Height), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}

	detections := DecodeYOLO(data, len(d.config.Classes), DecodeParams{
		ConfThreshold: d.threshold,
		NmsThreshold:  d.nms,
		InputWidth:    d.config.Width,
		InputHeight:   d.config.Height,
		ImageWidth:    img.Cols(),
		ImageHeight:   img.Rows(),
		Classes:       d.config,
	})
	return detections, nil
}

// Close releases the network.
func (d *OpenCVDetector) Close() error {
	return d.net.Close()
}
