package model

import "fmt"

// Pipeline stages an image can fail in.
const (
	StageRead     = "read"
	StageDetect   = "detect"
	StageAnnotate = "annotate"
	StageSave     = "save"
)

// ImageFailure records why one image of a batch produced no result.
type ImageFailure struct {
	ImageName  string `json:"imageName"`
	SourcePath string `json:"sourcePath"`
	Stage      string `json:"stage"`
	Err        error  `json:"-"`
}

func (f ImageFailure) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", f.ImageName, f.Stage, f.Err)
}

func (f ImageFailure) Unwrap() error {
	return f.Err
}

// Message is the error text, for JSON responses and storage.
func (f ImageFailure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// BatchOutcome separates the successfully processed images from the failed ones.
type BatchOutcome struct {
	Results  []ImageResult
	Failures []ImageFailure
}

// Processed is the number of images the batch attempted.
func (o *BatchOutcome) Processed() int {
	return len(o.Results) + len(o.Failures)
}
