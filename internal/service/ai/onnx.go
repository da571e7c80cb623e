package ai

import (
	"fmt"
	"image"
	"sync"

	"neurodrive/internal/logger"
	"neurodrive/internal/model"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

var (
	ortMu    sync.Mutex
	ortUsers int
)

// OnnxDetector runs the model with ONNX Runtime instead of OpenCV DNN.
type OnnxDetector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	config       *ModelConfig
	threshold    float32
	nms          float32
	logger       *logger.Logger
	mu           sync.Mutex
}

// NewOnnxDetector creates a session with preallocated input and output tensors.
func NewOnnxDetector(opts Options, modelConfig *ModelConfig, logger *logger.Logger) (*OnnxDetector, error) {
	if err := acquireEnvironment(opts.OnnxRuntimeLibPath); err != nil {
		return nil, err
	}

	inputShape := ort.NewShape(1, 3, int64(modelConfig.Height), int64(modelConfig.Width))
	// YOLOv8 predicts on strides 8, 16 and 32
	anchors := int64(0)
	for _, stride := range []int{8, 16, 32} {
		anchors += int64((modelConfig.Width / stride) * (modelConfig.Height / stride))
	}
	outputShape := ort.NewShape(1, int64(4+len(modelConfig.Classes)), anchors)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logger.Info("ONNX Runtime session created for %s", opts.ModelPath)

	return &OnnxDetector{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		config:       modelConfig,
		threshold:    float32(opts.Threshold),
		nms:          float32(opts.NmsThreshold),
		logger:       logger,
	}, nil
}

// Detect converts the Mat into a normalised CHW tensor, runs the session and decodes the output.
func (d *OnnxDetector) Detect(img gocv.Mat) ([]model.Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: image is empty", ErrUnreadableImage)
	}

	src, err := img.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	fillInputTensor(d.inputTensor.GetData(), src, d.config.Width, d.config.Height)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	detections := DecodeYOLO(d.outputTensor.GetData(), len(d.config.Classes), DecodeParams{
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

// Close destroys the session and tensors.
func (d *OnnxDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inputTensor != nil {
		d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
		d.outputTensor = nil
	}
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
		releaseEnvironment()
	}
	return nil
}

// fillInputTensor resizes src to width x height and writes RGB planes scaled to [0,1].
func fillInputTensor(dst []float32, src image.Image, width, height int) {
	resized := resize.Resize(uint(width), uint(height), src, resize.Bilinear)
	bounds := resized.Bounds()
	plane := width * height

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*width + x
			dst[i] = float32(r) / 65535.0
			dst[plane+i] = float32(g) / 65535.0
			dst[2*plane+i] = float32(b) / 65535.0
		}
	}
}

// The ONNX Runtime environment is process wide; it lives while any detector does.
func acquireEnvironment(libPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()

	if ortUsers == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	ortUsers++
	return nil
}

func releaseEnvironment() {
	ortMu.Lock()
	defer ortMu.Unlock()

	ortUsers--
	if ortUsers == 0 {
		ort.DestroyEnvironment()
	}
}
