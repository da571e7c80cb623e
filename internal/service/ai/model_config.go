package ai

import (
	"encoding/json"
	"fmt"
	"os"
)

// VehicleClasses is the taxonomy of the bundled vehicle model, in class-ID order.
var VehicleClasses = []string{
	"bicycle",
	"bus",
	"car",
	"motorcycle",
	"three_wheeler",
	"tractor",
	"truck",
	"van",
}

// ModelConfig is saved in a JSON file next to the model weights.
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov8"
	Width        int      `json:"width"`        // eg 640
	Height       int      `json:"height"`       // eg 640
	Classes      []string `json:"classes"`
}

// DefaultModelConfig describes a 640x640 YOLOv8 export of the vehicle model.
func DefaultModelConfig() *ModelConfig {
	classes := make([]string, len(VehicleClasses))
	copy(classes, VehicleClasses)
	return &ModelConfig{
		Architecture: "yolov8",
		Width:        640,
		Height:       640,
		Classes:      classes,
	}
}

// LoadModelConfig reads a model config JSON file. A missing file yields the default config.
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return DefaultModelConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	config := DefaultModelConfig()
	config.Classes = nil
	if err := json.Unmarshal(b, config); err != nil {
		return nil, fmt.Errorf("failed to parse model config %s: %w", filename, err)
	}
	if len(config.Classes) == 0 {
		config.Classes = DefaultModelConfig().Classes
	}
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("model config %s: invalid input size %dx%d", filename, config.Width, config.Height)
	}
	return config, nil
}

// ClassName maps a class ID to its label.
func (c *ModelConfig) ClassName(classID int) string {
	if classID >= 0 && classID < len(c.Classes) {
		return c.Classes[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}
