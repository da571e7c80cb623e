package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"neurodrive/internal/config"
	"neurodrive/internal/dto"
	"neurodrive/internal/logger"
	"neurodrive/internal/model"
	"neurodrive/internal/repository"
)

// ResultStore persists finished runs and removes old ones from disk and database.
type ResultStore struct {
	resultDir     string
	uploadDir     string
	logger        *logger.Logger
	runRepo       repository.RunRepository
	resultRepo    repository.ResultRepository
	detectionRepo repository.DetectionRepository
}

// NewResultStore creates a ResultStore. Run directories are only ever deleted below the configured
// result and upload directories.
func NewResultStore(config *config.Config, logger *logger.Logger, runRepo repository.RunRepository,
	resultRepo repository.ResultRepository, detectionRepo repository.DetectionRepository) *ResultStore {
	return &ResultStore{
		resultDir:     config.ResultDirectory,
		uploadDir:     config.UploadDirectory,
		logger:        logger,
		runRepo:       runRepo,
		resultRepo:    resultRepo,
		detectionRepo: detectionRepo,
	}
}

// SaveRun writes the run, one row per processed or failed image, and the detections.
// When any row fails the run is removed again, so a run is stored completely or not at all.
func (s *ResultStore) SaveRun(run *model.Run, outcome *model.BatchOutcome) error {
	if err := s.runRepo.Insert(run); err != nil {
		return err
	}
	if err := s.saveRows(run, outcome); err != nil {
		if delErr := s.runRepo.Delete(run.ID); delErr != nil {
			s.logger.Error("Failed to roll back run %s: %v", run.ID, delErr)
		}
		return err
	}
	return nil
}

func (s *ResultStore) saveRows(run *model.Run, outcome *model.BatchOutcome) error {
	savedCount := 0
	for _, result := range outcome.Results {
		resultID, err := s.resultRepo.Insert(&model.StoredResult{
			RunID:         run.ID,
			ImageName:     result.ImageName,
			AnnotatedPath: result.AnnotatedPath,
			DominantClass: result.DominantClass,
			TotalVehicles: result.TotalVehicles(),
			AvgConfidence: result.AvgConfidence,
		})
		if err != nil {
			return fmt.Errorf("failed to save result %s: %w", result.ImageName, err)
		}

		detections := make([]model.StoredDetection, 0, len(result.Detections))
		for _, det := range result.Detections {
			detections = append(detections, model.StoredDetection{
				ResultID:   resultID,
				Label:      det.Label,
				X1:         det.X1,
				Y1:         det.Y1,
				X2:         det.X2,
				Y2:         det.Y2,
				Confidence: det.Confidence,
			})
		}
		if err := s.detectionRepo.InsertBatch(detections); err != nil {
			return fmt.Errorf("failed to save detections of %s: %w", result.ImageName, err)
		}
		savedCount++
	}

	for _, failure := range outcome.Failures {
		if _, err := s.resultRepo.Insert(&model.StoredResult{
			RunID:     run.ID,
			ImageName: failure.ImageName,
			Error:     failure.Message(),
		}); err != nil {
			return fmt.Errorf("failed to save failure of %s: %w", failure.ImageName, err)
		}
	}

	s.logger.Info("Saved run %s with %d results and %d failures", run.ID, savedCount, len(outcome.Failures))
	return nil
}

// Prune deletes every run beyond the newest keep. keep <= 0 disables pruning.
func (s *ResultStore) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	old, err := s.runRepo.GetAll(&dto.RunFilters{Offset: keep})
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, run := range old {
		if err := s.deleteRun(run); err != nil {
			s.logger.Error("Error pruning run %s: %v", run.ID, err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		s.logger.Info("Pruned %d old runs", pruned)
	}
	return pruned, nil
}

// DeleteRun removes one run. A missing run is not an error.
func (s *ResultStore) DeleteRun(id string) error {
	run, err := s.runRepo.GetByID(id)
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}
	return s.deleteRun(*run)
}

// Clear removes every run.
func (s *ResultStore) Clear() error {
	runs, err := s.runRepo.GetAll(nil)
	if err != nil {
		return err
	}
	for _, run := range runs {
		s.removeFiles(run)
	}
	return s.runRepo.DeleteAll()
}

func (s *ResultStore) deleteRun(run model.Run) error {
	s.removeFiles(run)
	return s.runRepo.Delete(run.ID)
}

// removeFiles deletes the per-run directories below the result and upload roots.
// Output directories chosen by the user (batch CLI) are never removed, other runs may share them.
func (s *ResultStore) removeFiles(run model.Run) {
	for _, root := range []string{s.resultDir, s.uploadDir} {
		dir := filepath.Join(root, run.ID)
		if run.ID == "" || !Within(root, dir) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Error("Failed to delete %s: %v", dir, err)
		}
	}
}

// Within reports whether path lies strictly below root.
func Within(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
