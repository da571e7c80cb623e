package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neurodrive/internal/config"
	"neurodrive/internal/logger"
	"neurodrive/internal/middleware"
	"neurodrive/internal/repository/sqlite"
	"neurodrive/internal/routes"
	"neurodrive/internal/service"
	"neurodrive/internal/service/ai"
	"neurodrive/internal/service/storage"
	"neurodrive/internal/service/websocket"
)

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	runRepo       *sqlite.RunRepository
	resultRepo    *sqlite.ResultRepository
	detectionRepo *sqlite.DetectionRepository
	hubService    *websocket.HubService
	sessions      *middleware.Sessions
	manager       *service.Manager
}

func NewApp() (*App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.NewLogger(cfg)

	sessions, err := middleware.NewSessions(cfg.SessionSecret)
	if err != nil {
		log.Close()
		return nil, err
	}
	if cfg.SessionSecret == "" {
		log.Warning("SESSION_SECRET not set, logins end when the server restarts")
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	runRepo := sqlite.NewRunRepository(db)
	resultRepo := sqlite.NewResultRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	store := storage.NewResultStore(cfg, log, runRepo, resultRepo, detectionRepo)
	hub := websocket.NewHubService(log)

	factory := func(threshold float64, n int) ([]ai.Detector, error) {
		return ai.NewDetectors(ai.OptionsFromConfig(cfg).WithThreshold(threshold), log, n)
	}
	mng := service.NewManager(cfg, log, factory, store, hub)

	return &App{
		config:        cfg,
		logger:        log,
		db:            db,
		runRepo:       runRepo,
		resultRepo:    resultRepo,
		detectionRepo: detectionRepo,
		hubService:    hub,
		sessions:      sessions,
		manager:       mng,
	}, nil
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer a.close()

	// Start background services
	go a.hubService.Run(ctx)

	router := routes.SetupRoutes(a.manager, a.config, a.logger, a.sessions, a.runRepo, a.resultRepo, a.detectionRepo)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚗 NeuroDrive Vehicle Detection\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📁 Results: %s\n", a.config.ResultDirectory)
	fmt.Printf("🤖 AI Model: %s (%s)\n", a.config.ModelPath, a.config.DetectorBackend)
	if err := a.manager.Ready(); err != nil {
		fmt.Printf("⚠️  Detection disabled: %v\n", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	a.logger.Info("Server stopped")
	return nil
}

func (a *App) close() {
	a.manager.Stop()
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Close()
}
