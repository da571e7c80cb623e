package model

// UnknownClass is the dominant class of an image without detections.
const UnknownClass = "unknown"

// ImageResult holds the detections of one processed image and the values derived from them.
// It is built by NewImageResult and not modified afterwards.
type ImageResult struct {
	ImageName     string         `json:"imageName"`
	SourcePath    string         `json:"sourcePath"`
	AnnotatedPath string         `json:"annotatedPath"`
	Detections    []Detection    `json:"detections"`
	DominantClass string         `json:"dominantClass"`
	ClassCounts   map[string]int `json:"classCounts"`
	AvgConfidence float64        `json:"avgConfidence"`
}

// NewImageResult derives class counts, dominant class and mean confidence from detections.
func NewImageResult(imageName, sourcePath string, detections []Detection) ImageResult {
	dets := make([]Detection, len(detections))
	copy(dets, detections)

	return ImageResult{
		ImageName:     imageName,
		SourcePath:    sourcePath,
		Detections:    dets,
		DominantClass: DominantClass(dets),
		ClassCounts:   CountClasses(dets),
		AvgConfidence: MeanConfidence(dets),
	}
}

// WithAnnotatedPath returns a copy of r pointing at the saved annotated image.
func (r ImageResult) WithAnnotatedPath(path string) ImageResult {
	r.AnnotatedPath = path
	return r
}

// TotalVehicles is the number of detections in the image.
func (r ImageResult) TotalVehicles() int {
	return len(r.Detections)
}

// Labels returns the distinct labels in the order they first appear in the detections.
func (r ImageResult) Labels() []string {
	return OrderedLabels(r.Detections)
}

// CountClasses maps every label to the number of detections carrying it.
func CountClasses(detections []Detection) map[string]int {
	counts := make(map[string]int)
	for _, d := range detections {
		counts[d.Label]++
	}
	return counts
}

// OrderedLabels returns distinct labels in first-seen order.
func OrderedLabels(detections []Detection) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, d := range detections {
		if !seen[d.Label] {
			seen[d.Label] = true
			labels = append(labels, d.Label)
		}
	}
	return labels
}

// DominantClass returns the most frequent label. On a tie the label encountered
// first wins; with no detections it is UnknownClass.
func DominantClass(detections []Detection) string {
	if len(detections) == 0 {
		return UnknownClass
	}

	counts := CountClasses(detections)
	dominant := ""
	best := 0
	for _, label := range OrderedLabels(detections) {
		if counts[label] > best {
			dominant = label
			best = counts[label]
		}
	}
	return dominant
}

// MeanConfidence is the average confidence, 0 for an empty slice.
func MeanConfidence(detections []Detection) float64 {
	if len(detections) == 0 {
		return 0
	}
	var sum float64
	for _, d := range detections {
		sum += d.Confidence
	}
	return sum / float64(len(detections))
}
