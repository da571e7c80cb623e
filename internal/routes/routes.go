package routes

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"neurodrive/internal/config"
	"neurodrive/internal/handler"
	"neurodrive/internal/logger"
	"neurodrive/internal/middleware"
	"neurodrive/internal/repository"
	"neurodrive/internal/service"

	"github.com/go-chi/httprate"
)

// detectRequestsPerMinute limits how often one client may start detection jobs.
const detectRequestsPerMinute = 30

// dynamicHTMLHandler serves /path as <staticDir>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// rateLimited gives every endpoint its own per-IP limiter.
func rateLimited(next http.Handler) http.Handler {
	return httprate.Limit(detectRequestsPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))(next)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger, sessions *middleware.Sessions,
	runRepo repository.RunRepository, resultRepo repository.ResultRepository, detectionRepo repository.DetectionRepository) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))

	// Detection endpoints, rate limited per client IP
	mux.Handle("/api/detect", rateLimited(handler.DetectHandler(manager, logger)))
	mux.Handle("/api/batch", rateLimited(handler.BatchHandler(manager, logger)))
	mux.HandleFunc("/api/progress", handler.ProgressWebsocketHandler(manager, logger))

	// Run history
	mux.HandleFunc("/api/runs", handler.GetRunsHandler(logger, runRepo))
	mux.HandleFunc("/api/runs/view", handler.ViewRunHandler(logger, runRepo, resultRepo, detectionRepo))
	mux.HandleFunc("/api/runs/report", handler.DownloadReportHandler(logger, runRepo))
	mux.HandleFunc("/api/runs/archive", handler.DownloadArchiveHandler(logger, runRepo))
	mux.HandleFunc("/api/runs/image", handler.RunImageHandler(logger, runRepo))
	mux.HandleFunc("/api/runs/delete", handler.DeleteRunHandler(manager, logger))
	mux.HandleFunc("/api/runs/clear", handler.ClearRunsHandler(manager, logger))
	mux.HandleFunc("/api/runs/stats", handler.StatsHandler(logger, runRepo, resultRepo, detectionRepo))

	mux.HandleFunc("/health", handler.HealthHandler(manager))

	// Log endpoints
	mux.HandleFunc("/logs/info", handler.ShowLogsHandler(logger, "info"))
	mux.HandleFunc("/logs/warning", handler.ShowLogsHandler(logger, "warning"))
	mux.HandleFunc("/logs/error", handler.ShowLogsHandler(logger, "error"))

	mux.HandleFunc("/logs/info/clear", handler.ClearLogsHandler(logger, "info"))
	mux.HandleFunc("/logs/warning/clear", handler.ClearLogsHandler(logger, "warning"))
	mux.HandleFunc("/logs/error/clear", handler.ClearLogsHandler(logger, "error"))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, sessions, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /history -> /static/history.html
	mux.HandleFunc("/", dynamicHTMLHandler(cfg.StaticDirectory))

	// Apply middleware
	return middleware.AuthMiddleware(sessions, mux)
}
