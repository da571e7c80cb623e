package handler

import (
	"errors"
	"io"
	"net/http"

	"neurodrive/internal/config"
	"neurodrive/internal/logger"
	"neurodrive/internal/service"
	"neurodrive/internal/service/ai"
)

// maxMemory is the part of a multipart form kept in memory; the rest goes to temp files.
const maxMemory = 32 << 20

// DetectHandler handles POST /api/detect: one image in the "image" field, optional "confidence".
func DetectHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !modelReady(w, manager) {
			return
		}

		cfg := manager.GetConfig()
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize<<20)
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			respondError(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		threshold, err := parseThreshold(r.FormValue("confidence"), cfg.ConfidenceThreshold)
		if err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			respondError(w, "No image uploaded", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			respondError(w, "Failed to read image", http.StatusBadRequest)
			return
		}

		resp, err := manager.ProcessSingle(r.Context(), header.Filename, data, threshold)
		if err != nil {
			logger.Error("Detection failed for %s: %v", header.Filename, err)
			respondProcessingError(w, err)
			return
		}

		respondJSON(w, resp, http.StatusOK)
	}
}

// BatchHandler handles POST /api/batch: images in the "images" field, optional "confidence" and "organize".
func BatchHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !modelReady(w, manager) {
			return
		}

		cfg := manager.GetConfig()
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize<<20)
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			respondError(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		threshold, err := parseThreshold(r.FormValue("confidence"), cfg.ConfidenceThreshold)
		if err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		organize := parseBool(r.FormValue("organize"), cfg.OrganizeByClass)

		headers := r.MultipartForm.File["images"]
		if len(headers) == 0 {
			headers = r.MultipartForm.File["images[]"]
		}

		uploads := make([]service.Upload, 0, len(headers))
		for _, header := range headers {
			file, err := header.Open()
			if err != nil {
				logger.Warning("Failed to open upload %s: %v", header.Filename, err)
				continue
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				logger.Warning("Failed to read upload %s: %v", header.Filename, err)
				continue
			}
			uploads = append(uploads, service.Upload{Name: header.Filename, Data: data})
		}

		resp, err := manager.ProcessBatch(r.Context(), uploads, threshold, organize)
		if err != nil {
			logger.Error("Batch failed: %v", err)
			respondProcessingError(w, err)
			return
		}

		respondJSON(w, resp, http.StatusOK)
	}
}

func modelReady(w http.ResponseWriter, manager *service.Manager) bool {
	if err := manager.Ready(); err != nil {
		respondError(w, modelMissingMessage(manager.GetConfig(), err), http.StatusServiceUnavailable)
		return false
	}
	return true
}

func modelMissingMessage(cfg *config.Config, err error) string {
	if errors.Is(err, ai.ErrModelNotFound) {
		return "Model not found! Please place the trained model at " + cfg.ModelPath
	}
	return "Model could not be loaded: " + err.Error()
}

func respondProcessingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ai.ErrModelNotFound):
		respondError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, config.ErrInvalidThreshold),
		errors.Is(err, service.ErrUnsupportedFile),
		errors.Is(err, service.ErrNoImages),
		errors.Is(err, ai.ErrUnreadableImage):
		respondError(w, err.Error(), http.StatusBadRequest)
	default:
		respondError(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
