package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"neurodrive/internal/config"
	"neurodrive/internal/dto"
	"neurodrive/internal/logger"
	"neurodrive/internal/middleware"
	"neurodrive/internal/model"
	"neurodrive/internal/repository/sqlite"
	"neurodrive/internal/service"
	"neurodrive/internal/service/ai"
	"neurodrive/internal/service/storage"
	"neurodrive/internal/service/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// ====================================
// Test helpers
// ====================================

// carDetector reports one car on every image wider than 50 px.
type carDetector struct{}

func (carDetector) Detect(img gocv.Mat) ([]model.Detection, error) {
	if img.Cols() <= 50 {
		return nil, nil
	}
	return []model.Detection{{X1: 5, Y1: 10, X2: 45, Y2: 40, Label: "car", Confidence: 0.9}}, nil
}

func (carDetector) Close() error { return nil }

type testEnv struct {
	cfg        *config.Config
	logger     *logger.Logger
	manager    *service.Manager
	runs       *sqlite.RunRepository
	results    *sqlite.ResultRepository
	detections *sqlite.DetectionRepository
}

func setupEnv(t *testing.T, withModel bool) *testEnv {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		Password:            "secret",
		ModelPath:           filepath.Join(root, "models", "best.onnx"),
		ConfidenceThreshold: 0.25,
		NmsThreshold:        0.45,
		UploadDirectory:     filepath.Join(root, "uploads"),
		ResultDirectory:     filepath.Join(root, "results"),
		ProcessingWorkers:   1,
		OrganizeByClass:     true,
		MaxStoredRuns:       10,
		MaxUploadSize:       10,
	}
	if withModel {
		require.NoError(t, os.MkdirAll(filepath.Dir(cfg.ModelPath), 0755))
		require.NoError(t, os.WriteFile(cfg.ModelPath, []byte("onnx"), 0644))
	}

	l, err := logger.New(filepath.Join(root, "logs"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	db, err := sqlite.New(filepath.Join(root, "data", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &testEnv{
		cfg:        cfg,
		logger:     l,
		runs:       sqlite.NewRunRepository(db),
		results:    sqlite.NewResultRepository(db),
		detections: sqlite.NewDetectionRepository(db),
	}
	store := storage.NewResultStore(cfg, l, e.runs, e.results, e.detections)

	hub := websocket.NewHubService(l)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	factory := func(threshold float64, n int) ([]ai.Detector, error) {
		detectors := make([]ai.Detector, n)
		for i := range detectors {
			detectors[i] = carDetector{}
		}
		return detectors, nil
	}
	e.manager = service.NewManager(cfg, l, factory, store, hub)
	t.Cleanup(e.manager.Stop)
	return e
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type part struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, url string, fields map[string]string, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

// ====================================
// Detection endpoints
// ====================================

func TestDetectHandler_ModelMissing(t *testing.T) {
	e := setupEnv(t, false)

	req := multipartRequest(t, "/api/detect", nil, part{"image", "a.jpg", jpegBytes(t, 80, 60)})
	rec := httptest.NewRecorder()
	DetectHandler(e.manager, e.logger).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeError(t, rec), "Model not found")
}

func TestDetectHandler_Success(t *testing.T) {
	e := setupEnv(t, true)

	req := multipartRequest(t, "/api/detect", map[string]string{"confidence": "0.25"}, part{"image", "street.jpg", jpegBytes(t, 80, 60)})
	rec := httptest.NewRecorder()
	DetectHandler(e.manager, e.logger).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.DetectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "street.jpg", resp.Result.ImageName)
	assert.Equal(t, "car", resp.Result.DominantClass)
	assert.Equal(t, 1, resp.Summary.TotalVehicles)
	assert.NotEmpty(t, resp.RunID)
}

func TestDetectHandler_BadRequests(t *testing.T) {
	e := setupEnv(t, true)
	h := DetectHandler(e.manager, e.logger)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"threshold too low", multipartRequest(t, "/api/detect", map[string]string{"confidence": "0.05"}, part{"image", "a.jpg", jpegBytes(t, 80, 60)})},
		{"threshold not a number", multipartRequest(t, "/api/detect", map[string]string{"confidence": "high"}, part{"image", "a.jpg", jpegBytes(t, 80, 60)})},
		{"unsupported type", multipartRequest(t, "/api/detect", nil, part{"image", "notes.txt", []byte("hello")})},
		{"corrupt image", multipartRequest(t, "/api/detect", nil, part{"image", "broken.jpg", []byte("not a jpeg")})},
		{"no file", multipartRequest(t, "/api/detect", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/detect", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBatchHandler_Success(t *testing.T) {
	e := setupEnv(t, true)

	req := multipartRequest(t, "/api/batch", map[string]string{"organize": "on"},
		part{"images", "b.jpg", jpegBytes(t, 40, 40)},
		part{"images", "a.jpg", jpegBytes(t, 80, 60)},
		part{"images", "c.jpg", []byte("corrupt")},
	)
	rec := httptest.NewRecorder()
	BatchHandler(e.manager, e.logger).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a.jpg", resp.Results[0].ImageName)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "c.jpg", resp.Failures[0].ImageName)
	assert.Equal(t, "/api/runs/report?id="+resp.RunID, resp.ReportURL)
	assert.Equal(t, "/api/runs/archive?id="+resp.RunID, resp.ArchiveURL)
	assert.True(t, strings.Contains(resp.Results[0].ImageURL, "batch%2Fcar%2Fannotated_a.jpg"))
}

func TestBatchHandler_NoImages(t *testing.T) {
	e := setupEnv(t, true)

	rec := httptest.NewRecorder()
	BatchHandler(e.manager, e.logger).ServeHTTP(rec, multipartRequest(t, "/api/batch", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ====================================
// Run history
// ====================================

func runBatch(t *testing.T, e *testEnv) *dto.BatchResponse {
	t.Helper()
	resp, err := e.manager.ProcessBatch(context.Background(), []service.Upload{
		{Name: "a.jpg", Data: jpegBytes(t, 80, 60)},
		{Name: "b.jpg", Data: jpegBytes(t, 80, 60)},
	}, 0.25, false)
	require.NoError(t, err)
	return resp
}

func TestGetRunsHandler(t *testing.T) {
	e := setupEnv(t, true)
	runBatch(t, e)
	runBatch(t, e)

	rec := httptest.NewRecorder()
	GetRunsHandler(e.logger, e.runs).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?page=1&limit=1&mode=batch", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var data struct {
		Runs       []map[string]interface{} `json:"runs"`
		Length     int                      `json:"length"`
		TotalPages int                      `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Len(t, data.Runs, 1)
	assert.Equal(t, 2, data.Length)
	assert.Equal(t, 2, data.TotalPages)
	assert.Equal(t, "batch", data.Runs[0]["mode"])
}

func TestViewRunHandler(t *testing.T) {
	e := setupEnv(t, true)
	resp := runBatch(t, e)
	h := ViewRunHandler(e.logger, e.runs, e.results, e.detections)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/view?id="+resp.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail dto.RunDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, resp.RunID, detail.Run.ID)
	require.Len(t, detail.Results, 2)
	for _, result := range detail.Results {
		require.Len(t, result.Detections, 1)
		assert.Equal(t, "car", result.Detections[0].Label)
		assert.Equal(t, result.ID, result.Detections[0].ResultID)
		assert.Equal(t, 0.9, result.Detections[0].Confidence)
	}
	assert.Equal(t, []model.ClassCount{{Label: "car", Count: 2}}, detail.Distribution)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/view?id=missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/view", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadHandlers(t *testing.T) {
	e := setupEnv(t, true)
	resp := runBatch(t, e)

	rec := httptest.NewRecorder()
	DownloadReportHandler(e.logger, e.runs).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/report?id="+resp.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="report_`)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Image Name,Total Vehicles"))

	rec = httptest.NewRecorder()
	DownloadArchiveHandler(e.logger, e.runs).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/archive?id="+resp.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="batch_`)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
}

func TestRunImageHandler(t *testing.T) {
	e := setupEnv(t, true)
	resp := runBatch(t, e)
	h := RunImageHandler(e.logger, e.runs)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, resp.Results[0].ImageURL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/image?id="+resp.RunID+"&path=..%2F..%2Fdata%2Fruns.db", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/image?id="+resp.RunID+"&path=batch%2Fmissing.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAndClearRuns(t *testing.T) {
	e := setupEnv(t, true)
	first := runBatch(t, e)
	runBatch(t, e)

	rec := httptest.NewRecorder()
	DeleteRunHandler(e.manager, e.logger).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/runs/delete?id="+first.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoDirExists(t, filepath.Join(e.cfg.ResultDirectory, first.RunID))

	count, err := e.runs.GetTotalCount(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec = httptest.NewRecorder()
	ClearRunsHandler(e.manager, e.logger).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	count, err = e.runs.GetTotalCount(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStatsHandler(t *testing.T) {
	e := setupEnv(t, true)
	runBatch(t, e)

	rec := httptest.NewRecorder()
	StatsHandler(e.logger, e.runs, e.results, e.detections).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats dto.StatsData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, []string{"car"}, stats.Labels)
	assert.Equal(t, []model.ClassCount{{Label: "car", Count: 2}}, stats.Distribution)
}

// ====================================
// Health, auth and logs
// ====================================

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(setupEnv(t, true).manager).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(setupEnv(t, false).manager).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLoginAndLogout(t *testing.T) {
	e := setupEnv(t, false)
	sessions, err := middleware.NewSessions("test-secret")
	require.NoError(t, err)
	h := LoginHandler(e.cfg, sessions, e.logger)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password=secret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.NoError(t, sessions.Validate(rec.Result().Cookies()[0].Value))

	rec = httptest.NewRecorder()
	LogoutHandler(rec, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	require.Len(t, rec.Result().Cookies(), 1)
	assert.True(t, rec.Result().Cookies()[0].MaxAge < 0)
}

func TestLogsHandlers(t *testing.T) {
	e := setupEnv(t, false)
	e.logger.Error("detector crashed")

	rec := httptest.NewRecorder()
	ShowLogsHandler(e.logger, "error").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/error", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "detector crashed")

	rec = httptest.NewRecorder()
	ClearLogsHandler(e.logger, "error").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logs/error/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	ShowLogsHandler(e.logger, "debug").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/debug", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseHelpers(t *testing.T) {
	v, err := parseThreshold("", 0.25)
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	v, err = parseThreshold(" 0.5 ", 0.25)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	assert.True(t, parseBool("on", false))
	assert.False(t, parseBool("false", true))
	assert.True(t, parseBool("", true))
	assert.Equal(t, 20, atoiDefault("-3", 20))
	assert.True(t, parseDate("not-a-date").IsZero())
}
