package repository

import (
	"neurodrive/internal/dto"
	"neurodrive/internal/model"
)

// RunRepository defines the interface for run data operations.
type RunRepository interface {
	// Create operations
	Insert(run *model.Run) error

	// Read operations
	GetByID(id string) (*model.Run, error)
	GetAll(filter *dto.RunFilters) ([]model.Run, error)
	GetTotalCount(filter *dto.RunFilters) (int, error)

	// Delete operations
	Delete(id string) error
	DeleteAll() error
}

// ResultRepository defines the interface for per-image result operations.
type ResultRepository interface {
	// Create operations
	Insert(result *model.StoredResult) (int64, error)

	// Read operations
	GetByRunID(runID string) ([]model.StoredResult, error)
	GetClassDistribution(runID string) (map[string]int, error)
}

// DetectionRepository defines the interface for detection data operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.StoredDetection) error

	// Read operations
	GetByResultID(resultID int64) ([]model.StoredDetection, error)
	GetAllLabels() ([]string, error)
}
