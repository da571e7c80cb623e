package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"neurodrive/internal/config"
	"neurodrive/internal/logger"
	"neurodrive/internal/model"
	"neurodrive/internal/repository/sqlite"
	"neurodrive/internal/service/ai"
	"neurodrive/internal/service/archive"
	"neurodrive/internal/service/batch"
	"neurodrive/internal/service/report"
	"neurodrive/internal/service/storage"

	"github.com/akamensky/argparse"
	"github.com/google/uuid"
)

const batchDir = "batch"

func main() {
	cfg := config.Load()

	parser := argparse.NewParser("batch", "Detect vehicles in every image of a directory and write annotated copies with a CSV report")
	inputDir := parser.String("i", "input", &argparse.Options{Help: "Directory with images", Required: true})
	outputDir := parser.String("o", "output", &argparse.Options{Help: "Output directory", Default: filepath.Join(cfg.ResultDirectory, "cli")})
	threshold := parser.Float("c", "confidence", &argparse.Options{Help: "Confidence threshold (0.1 - 1.0)", Default: cfg.ConfidenceThreshold})
	flat := parser.Flag("", "flat", &argparse.Options{Help: "Do not organize annotated images into per-class folders", Default: false})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Number of images processed in parallel", Default: cfg.ProcessingWorkers})
	zipResults := parser.Flag("", "zip", &argparse.Options{Help: "Write batch_results.zip next to the report", Default: false})
	storeRun := parser.Flag("", "db", &argparse.Options{Help: "Record the run in the history database", Default: false})
	modelPath := parser.String("m", "model", &argparse.Options{Help: "ONNX model file", Default: cfg.ModelPath})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(2)
	}

	if *modelPath != cfg.ModelPath {
		cfg.ModelPath = *modelPath
		cfg.ModelConfigPath = filepath.Join(filepath.Dir(*modelPath), stem(*modelPath)+".json")
	}
	cfg.ConfidenceThreshold = *threshold
	cfg.ProcessingWorkers = *workers
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid settings: %v\n", err)
		os.Exit(2)
	}

	log := logger.NewLogger(cfg)
	defer log.Close()

	if err := run(cfg, log, *inputDir, *outputDir, !*flat, *zipResults, *storeRun); err != nil {
		log.Error("Batch failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger, inputDir, outputDir string, organize, zipResults, storeRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detectors, err := ai.NewDetectors(ai.OptionsFromConfig(cfg), log, cfg.ProcessingWorkers)
	if err != nil {
		return err
	}
	defer ai.CloseAll(detectors)

	start := time.Now()
	runner := batch.NewRunner(detectors, log).OnProgress(func(done, total int, image string, err error) {
		status := "ok"
		if err != nil {
			status = err.Error()
		}
		fmt.Printf("[%d/%d] %s: %s\n", done, total, image, status)
	})

	// annotated images go below <output>/batch, the report and archive next to it
	outcome, err := runner.RunBatch(ctx, inputDir, filepath.Join(outputDir, batchDir), organize)
	if err != nil {
		return err
	}

	reportPath := filepath.Join(outputDir, "report.csv")
	if err := report.WriteCSVFile(reportPath, outcome.Results); err != nil {
		return err
	}

	archivePath := ""
	if zipResults && len(outcome.Results) > 0 {
		archivePath = filepath.Join(outputDir, "batch_results.zip")
		annotated := make([]string, 0, len(outcome.Results))
		for _, result := range outcome.Results {
			annotated = append(annotated, result.AnnotatedPath)
		}
		if err := archive.ZipFiles(annotated, outputDir, archivePath); err != nil {
			return err
		}
	}

	summary := report.Summarize(outcome.Results)
	printSummary(summary, outcome, time.Since(start))
	fmt.Printf("\n📄 Report: %s\n", reportPath)
	if archivePath != "" {
		fmt.Printf("📦 Archive: %s\n", archivePath)
	}

	if storeRun {
		return record(cfg, log, outputDir, reportPath, archivePath, organize, summary, outcome)
	}
	return nil
}

func printSummary(summary model.BatchSummary, outcome *model.BatchOutcome, elapsed time.Duration) {
	fmt.Printf("\n📊 Batch Summary:\n")
	fmt.Printf("   Images processed: %d\n", summary.TotalImages)
	fmt.Printf("   Vehicles detected: %d\n", summary.TotalVehicles)
	fmt.Printf("   Average confidence: %s\n", report.FormatPercent(summary.AvgConfidence))
	fmt.Printf("   Time: %s\n", elapsed.Round(time.Millisecond))

	if distribution := report.SortedDistribution(summary.ClassDistribution); len(distribution) > 0 {
		fmt.Printf("   Per class:\n")
		for _, c := range distribution {
			fmt.Printf("      - %s: %d\n", c.Label, c.Count)
		}
	}

	if len(outcome.Failures) > 0 {
		fmt.Printf("⚠️  %d image(s) failed:\n", len(outcome.Failures))
		for _, f := range outcome.Failures {
			fmt.Printf("      - %s (%s): %s\n", f.ImageName, f.Stage, f.Message())
		}
	}
}

// record stores the run so it shows up in the web history.
func record(cfg *config.Config, log *logger.Logger, outputDir, reportPath, archivePath string, organize bool,
	summary model.BatchSummary, outcome *model.BatchOutcome) error {
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := storage.NewResultStore(cfg, log, sqlite.NewRunRepository(db), sqlite.NewResultRepository(db), sqlite.NewDetectionRepository(db))

	absOutput, err := filepath.Abs(outputDir)
	if err != nil {
		absOutput = outputDir
	}
	run := &model.Run{
		ID:              uuid.NewString(),
		Mode:            model.ModeBatch,
		Threshold:       cfg.ConfidenceThreshold,
		OrganizeByClass: organize,
		CreatedAt:       time.Now().UTC(),
		TotalImages:     summary.TotalImages,
		TotalVehicles:   summary.TotalVehicles,
		FailedImages:    len(outcome.Failures),
		AvgConfidence:   summary.AvgConfidence,
		OutputDir:       absOutput,
		ReportPath:      reportPath,
		ArchivePath:     archivePath,
	}
	if err := store.SaveRun(run, outcome); err != nil {
		return err
	}
	fmt.Printf("🗄️  Recorded run %s in %s\n", run.ID, cfg.DatabasePath)
	return nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
