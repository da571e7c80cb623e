package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"neurodrive/internal/dto"
	"neurodrive/internal/logger"
	"neurodrive/internal/model"
	"neurodrive/internal/repository"
	"neurodrive/internal/service"
	"neurodrive/internal/service/report"
	"neurodrive/internal/service/storage"
)

// GetRunsHandler returns the filtered, paginated run history.
func GetRunsHandler(logger *logger.Logger, runRepo repository.RunRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 20)

		filter := &dto.RunFilters{
			Mode:       q.Get("mode"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
		}

		totalCount, err := runRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting runs: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		filter.Limit = limit
		filter.Offset = (page - 1) * limit
		runs, err := runRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying runs from database: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		infos := make([]dto.RunInfo, 0, len(runs))
		for _, run := range runs {
			infos = append(infos, dto.NewRunInfo(run))
		}

		respondJSON(w, dto.RunsData{
			Runs:        infos,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}, http.StatusOK)
	}
}

// ViewRunHandler returns one run with its per-image results and their detections.
func ViewRunHandler(logger *logger.Logger, runRepo repository.RunRepository, resultRepo repository.ResultRepository,
	detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, logger, runRepo)
		if !ok {
			return
		}

		results, err := resultRepo.GetByRunID(run.ID)
		if err != nil {
			logger.Error("Error querying results of run %s: %v", run.ID, err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		details := make([]dto.ResultDetail, 0, len(results))
		for _, result := range results {
			detections, err := detectionRepo.GetByResultID(result.ID)
			if err != nil {
				logger.Error("Error querying detections of result %d: %v", result.ID, err)
				respondError(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if detections == nil {
				detections = []model.StoredDetection{}
			}
			details = append(details, dto.ResultDetail{StoredResult: result, Detections: detections})
		}

		distribution, err := resultRepo.GetClassDistribution(run.ID)
		if err != nil {
			logger.Error("Error querying distribution of run %s: %v", run.ID, err)
			distribution = map[string]int{}
		}

		respondJSON(w, dto.RunDetail{
			Run:          *run,
			Results:      details,
			Distribution: report.SortedDistribution(distribution),
		}, http.StatusOK)
	}
}

// DownloadReportHandler serves the CSV report of a run as an attachment.
func DownloadReportHandler(logger *logger.Logger, runRepo repository.RunRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, logger, runRepo)
		if !ok {
			return
		}
		serveAttachment(w, r, run.ReportPath, downloadName("report", run.CreatedAt, ".csv"), "text/csv")
	}
}

// DownloadArchiveHandler serves the zip archive of a batch run as an attachment.
func DownloadArchiveHandler(logger *logger.Logger, runRepo repository.RunRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, logger, runRepo)
		if !ok {
			return
		}
		serveAttachment(w, r, run.ArchivePath, downloadName("batch", run.CreatedAt, ".zip"), "application/zip")
	}
}

// RunImageHandler serves an annotated image of a run. The path is relative to the run directory.
func RunImageHandler(logger *logger.Logger, runRepo repository.RunRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(w, r, logger, runRepo)
		if !ok {
			return
		}

		rel := r.URL.Query().Get("path")
		if rel == "" {
			respondError(w, "Path parameter is required", http.StatusBadRequest)
			return
		}

		filePath := filepath.Join(run.OutputDir, filepath.FromSlash(rel))
		if !storage.Within(run.OutputDir, filePath) {
			respondError(w, "Invalid path", http.StatusBadRequest)
			return
		}
		if _, err := os.Stat(filePath); err != nil {
			respondError(w, "Image not found", http.StatusNotFound)
			return
		}
		http.ServeFile(w, r, filePath)
	}
}

// DeleteRunHandler removes a run from disk and database.
func DeleteRunHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete && r.Method != http.MethodPost {
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			respondError(w, "Run id required", http.StatusBadRequest)
			return
		}

		if err := manager.GetStore().DeleteRun(id); err != nil {
			logger.Error("Failed to delete run %s: %v", id, err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.Info("Deleted run: %s", id)
		respondJSON(w, map[string]string{"status": "deleted", "id": id}, http.StatusOK)
	}
}

// ClearRunsHandler deletes every stored run.
func ClearRunsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := manager.GetStore().Clear(); err != nil {
			logger.Error("Error clearing runs: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.Info("All runs cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}

// StatsHandler returns the class distribution across all stored runs.
func StatsHandler(logger *logger.Logger, runRepo repository.RunRepository, resultRepo repository.ResultRepository,
	detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		totalRuns, err := runRepo.GetTotalCount(nil)
		if err != nil {
			logger.Error("Error counting runs: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		distribution, err := resultRepo.GetClassDistribution("")
		if err != nil {
			logger.Error("Error querying class distribution: %v", err)
			respondError(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		labels, err := detectionRepo.GetAllLabels()
		if err != nil {
			logger.Error("Error querying labels: %v", err)
			labels = nil
		}
		if labels == nil {
			labels = []string{}
		}

		respondJSON(w, dto.StatsData{
			TotalRuns:    totalRuns,
			Labels:       labels,
			Distribution: report.SortedDistribution(distribution),
		}, http.StatusOK)
	}
}

func lookupRun(w http.ResponseWriter, r *http.Request, logger *logger.Logger, runRepo repository.RunRepository) (*model.Run, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, "Run id required", http.StatusBadRequest)
		return nil, false
	}

	run, err := runRepo.GetByID(id)
	if err != nil {
		logger.Error("Error loading run %s: %v", id, err)
		respondError(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	if run == nil {
		respondError(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	return run, true
}

func serveAttachment(w http.ResponseWriter, r *http.Request, path, name, contentType string) {
	if path == "" {
		respondError(w, "File not available for this run", http.StatusNotFound)
		return
	}
	if _, err := os.Stat(path); err != nil {
		respondError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}
