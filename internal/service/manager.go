package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"neurodrive/internal/config"
	"neurodrive/internal/dto"
	"neurodrive/internal/logger"
	"neurodrive/internal/model"
	"neurodrive/internal/service/ai"
	"neurodrive/internal/service/archive"
	"neurodrive/internal/service/batch"
	"neurodrive/internal/service/report"
	"neurodrive/internal/service/storage"
	"neurodrive/internal/service/websocket"

	"github.com/google/uuid"
)

// Files written into every run directory.
const (
	ReportFile  = "report.csv"
	ArchiveFile = "batch_results.zip"
	BatchDir    = "batch"
)

var (
	// ErrUnsupportedFile is returned for uploads whose extension is not an accepted image type.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrNoImages is returned for a batch without any file.
	ErrNoImages = errors.New("no images uploaded")
)

// Single uploads accept fewer formats than batch directories.
var singleExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// DetectorFactory builds n detectors using the given confidence threshold.
type DetectorFactory func(threshold float64, n int) ([]ai.Detector, error)

// Upload is one file received from a client.
type Upload struct {
	Name string
	Data []byte
}

// Manager runs detection jobs for the HTTP layer.
type Manager struct {
	config           *config.Config
	logger           *logger.Logger
	newDetectors     DetectorFactory
	detectors        []ai.Detector // built with the configured threshold
	detectorsMu      sync.Mutex    // a detector set serves one job at a time
	modelErr         error
	store            *storage.ResultStore
	websocketService *websocket.HubService
}

// NewManager checks the model and loads the default detector set. When the model is missing the
// manager is still returned, and every job fails with the reason reported by Ready.
func NewManager(config *config.Config, logger *logger.Logger, factory DetectorFactory,
	store *storage.ResultStore, websocketService *websocket.HubService) *Manager {
	manager := &Manager{
		config:           config,
		logger:           logger,
		newDetectors:     factory,
		store:            store,
		websocketService: websocketService,
	}

	if err := ai.CheckModel(config.ModelPath); err != nil {
		manager.modelErr = err
		logger.Error("Model not available: %v", err)
		return manager
	}

	detectors, err := factory(config.ConfidenceThreshold, config.ProcessingWorkers)
	if err != nil {
		manager.modelErr = err
		logger.Error("Failed to load detectors: %v", err)
		return manager
	}
	manager.detectors = detectors

	logger.Info("Manager started with %d detector(s), threshold %.2f", len(detectors), config.ConfidenceThreshold)
	return manager
}

// Ready returns nil when detection jobs can run.
func (m *Manager) Ready() error {
	return m.modelErr
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}

func (m *Manager) GetStore() *storage.ResultStore {
	return m.store
}

func (m *Manager) GetConfig() *config.Config {
	return m.config
}

// acquireDetectors returns a detector set for threshold and a function releasing it.
func (m *Manager) acquireDetectors(threshold float64, n int) ([]ai.Detector, func(), error) {
	if threshold == m.config.ConfidenceThreshold {
		m.detectorsMu.Lock()
		return m.detectors, m.detectorsMu.Unlock, nil
	}

	detectors, err := m.newDetectors(threshold, n)
	if err != nil {
		return nil, nil, err
	}
	return detectors, func() { ai.CloseAll(detectors) }, nil
}

// ProcessSingle detects vehicles in one uploaded image.
func (m *Manager) ProcessSingle(ctx context.Context, filename string, data []byte, threshold float64) (*dto.DetectResponse, error) {
	if err := m.Ready(); err != nil {
		return nil, err
	}
	if err := config.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	name := SanitizeFilename(filename)
	if !singleExtensions[strings.ToLower(filepath.Ext(name))] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}

	runID := uuid.NewString()
	uploadDir, outputDir := m.runDirs(runID)

	srcPath := filepath.Join(uploadDir, name)
	if err := writeUpload(srcPath, data); err != nil {
		return nil, err
	}

	detectors, release, err := m.acquireDetectors(threshold, 1)
	if err != nil {
		return nil, err
	}
	result, err := batch.NewRunner(detectors, m.logger).ProcessImage(ctx, srcPath, outputDir)
	release()
	if err != nil {
		m.removeRunDirs(runID)
		return nil, err
	}

	results := []model.ImageResult{result}
	summary := report.Summarize(results)

	reportPath := filepath.Join(outputDir, ReportFile)
	if err := report.WriteCSVFile(reportPath, results); err != nil {
		m.logger.Error("Failed to write report for run %s: %v", runID, err)
		reportPath = ""
	}

	run := newRun(runID, model.ModeSingle, threshold, false, summary, 0)
	run.OutputDir = outputDir
	run.ReportPath = reportPath
	m.persist(run, &model.BatchOutcome{Results: results})

	m.logger.Info("Run %s: %d vehicles in %s", runID, result.TotalVehicles(), name)

	return &dto.DetectResponse{
		RunID:     runID,
		Threshold: threshold,
		Result:    m.imageReport(runID, outputDir, result),
		Summary:   summary,
	}, nil
}

// ProcessBatch detects vehicles in every uploaded image, writes the CSV report and the zip archive.
// Files that cannot be stored or processed are listed as failures.
func (m *Manager) ProcessBatch(ctx context.Context, files []Upload, threshold float64, organizeByClass bool) (*dto.BatchResponse, error) {
	if err := m.Ready(); err != nil {
		return nil, err
	}
	if err := config.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}

	runID := uuid.NewString()
	uploadDir, outputDir := m.runDirs(runID)

	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	var rejected []model.ImageFailure
	taken := make(map[string]bool)
	for _, file := range files {
		name := SanitizeFilename(file.Name)
		if !batch.IsImageFile(name) {
			rejected = append(rejected, model.ImageFailure{ImageName: name, Stage: model.StageRead, Err: ErrUnsupportedFile})
			continue
		}
		name = uniqueName(name, taken)
		if err := writeUpload(filepath.Join(uploadDir, name), file.Data); err != nil {
			rejected = append(rejected, model.ImageFailure{ImageName: name, Stage: model.StageRead, Err: err})
		}
	}

	detectors, release, err := m.acquireDetectors(threshold, m.config.ProcessingWorkers)
	if err != nil {
		m.removeRunDirs(runID)
		return nil, err
	}

	runner := batch.NewRunner(detectors, m.logger).OnProgress(func(done, total int, image string, err error) {
		m.websocketService.BroadcastProgress(runID, done, total, image, err)
	})
	outcome, err := runner.RunBatch(ctx, uploadDir, filepath.Join(outputDir, BatchDir), organizeByClass)
	release()
	if err != nil {
		m.removeRunDirs(runID)
		return nil, err
	}
	outcome.Failures = append(rejected, outcome.Failures...)

	summary := report.Summarize(outcome.Results)
	table := report.BuildReport(outcome.Results)

	reportPath := filepath.Join(outputDir, ReportFile)
	if err := report.WriteCSVFile(reportPath, outcome.Results); err != nil {
		m.logger.Error("Failed to write report for run %s: %v", runID, err)
		reportPath = ""
	}

	archivePath := ""
	if len(outcome.Results) > 0 {
		archivePath = filepath.Join(outputDir, ArchiveFile)
		if err := archive.ZipDirectory(filepath.Join(outputDir, BatchDir), outputDir, archivePath); err != nil {
			m.logger.Error("Failed to archive run %s: %v", runID, err)
			archivePath = ""
		}
	}

	run := newRun(runID, model.ModeBatch, threshold, organizeByClass, summary, len(outcome.Failures))
	run.OutputDir = outputDir
	run.ReportPath = reportPath
	run.ArchivePath = archivePath
	m.persist(run, outcome)

	m.logger.Info("Run %s: %d images, %d vehicles, %d failed", runID, summary.TotalImages, summary.TotalVehicles, len(outcome.Failures))

	response := &dto.BatchResponse{
		RunID:        runID,
		Threshold:    threshold,
		Results:      make([]dto.ImageReport, 0, len(outcome.Results)),
		Failures:     make([]dto.FailureInfo, 0, len(outcome.Failures)),
		Summary:      summary,
		Distribution: report.SortedDistribution(summary.ClassDistribution),
		ReportHeader: table.Header,
		ReportRows:   table.Rows,
	}
	for _, result := range outcome.Results {
		response.Results = append(response.Results, m.imageReport(runID, outputDir, result))
	}
	for _, failure := range outcome.Failures {
		response.Failures = append(response.Failures, dto.NewFailureInfo(failure))
	}
	if reportPath != "" {
		response.ReportURL = "/api/runs/report?id=" + runID
	}
	if archivePath != "" {
		response.ArchiveURL = "/api/runs/archive?id=" + runID
	}
	return response, nil
}

// Stop releases the default detectors.
func (m *Manager) Stop() {
	m.detectorsMu.Lock()
	defer m.detectorsMu.Unlock()
	ai.CloseAll(m.detectors)
	m.detectors = nil
	m.logger.Info("🛑 Detectors released")
}

func (m *Manager) persist(run *model.Run, outcome *model.BatchOutcome) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveRun(run, outcome); err != nil {
		m.logger.Error("Failed to save run %s: %v", run.ID, err)
		return
	}
	if _, err := m.store.Prune(m.config.MaxStoredRuns); err != nil {
		m.logger.Error("Failed to prune runs: %v", err)
	}
}

func (m *Manager) runDirs(runID string) (string, string) {
	return filepath.Join(m.config.UploadDirectory, runID), filepath.Join(m.config.ResultDirectory, runID)
}

func (m *Manager) removeRunDirs(runID string) {
	uploadDir, outputDir := m.runDirs(runID)
	os.RemoveAll(uploadDir)
	os.RemoveAll(outputDir)
}

func (m *Manager) imageReport(runID, outputDir string, result model.ImageResult) dto.ImageReport {
	imageURL := ""
	if rel, err := filepath.Rel(outputDir, result.AnnotatedPath); err == nil {
		imageURL = "/api/runs/image?id=" + runID + "&path=" + url.QueryEscape(filepath.ToSlash(rel))
	}
	return dto.ImageReport{
		ImageName:     result.ImageName,
		TotalVehicles: result.TotalVehicles(),
		DominantClass: result.DominantClass,
		AvgConfidence: result.AvgConfidence,
		ClassCounts:   result.ClassCounts,
		ImageURL:      imageURL,
		Detections:    result.Detections,
	}
}

func newRun(id, mode string, threshold float64, organize bool, summary model.BatchSummary, failed int) *model.Run {
	return &model.Run{
		ID:              id,
		Mode:            mode,
		Threshold:       threshold,
		OrganizeByClass: organize,
		CreatedAt:       time.Now().UTC(),
		TotalImages:     summary.TotalImages,
		TotalVehicles:   summary.TotalVehicles,
		FailedImages:    failed,
		AvgConfidence:   summary.AvgConfidence,
	}
}

// SanitizeFilename keeps only the base name of a client supplied file name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "upload"
	}
	return name
}

func uniqueName(name string, taken map[string]bool) string {
	candidate := name
	ext := filepath.Ext(name)
	for i := 1; taken[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), i, ext)
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}

func writeUpload(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return nil
}
