package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageExtensions are the file types picked up from an input directory.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ListImages returns the image files directly inside dir, sorted by name.
// Subdirectories are not descended into.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsImageFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(files)
	return files, nil
}

// AnnotatedName is the file name of the annotated copy of an image.
func AnnotatedName(imageName string) string {
	return "annotated_" + imageName
}

// OutputPath places the annotated copy of imageName, inside a dominant class folder when organizing.
func OutputPath(outputDir, imageName, dominantClass string, organizeByClass bool) string {
	if organizeByClass {
		return filepath.Join(outputDir, dominantClass, AnnotatedName(imageName))
	}
	return filepath.Join(outputDir, AnnotatedName(imageName))
}
