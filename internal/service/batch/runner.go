package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"neurodrive/internal/logger"
	"neurodrive/internal/model"
	"neurodrive/internal/service/ai"
	"neurodrive/internal/service/annotate"
)

// ProgressFunc is called after every image. err is nil when the image succeeded.
type ProgressFunc func(done, total int, imageName string, err error)

// Runner processes images with one detector per worker.
type Runner struct {
	detectors []ai.Detector
	logger    *logger.Logger
	progress  ProgressFunc
}

// NewRunner creates a runner. len(detectors) is the number of images processed in parallel.
func NewRunner(detectors []ai.Detector, logger *logger.Logger) *Runner {
	return &Runner{
		detectors: detectors,
		logger:    logger,
	}
}

// OnProgress registers a progress callback. It is called from worker goroutines, one call at a time.
func (r *Runner) OnProgress(fn ProgressFunc) *Runner {
	r.progress = fn
	return r
}

// ProcessImage handles a single image and writes <outputDir>/annotated_<name>.
func (r *Runner) ProcessImage(ctx context.Context, path, outputDir string) (model.ImageResult, error) {
	if len(r.detectors) == 0 {
		return model.ImageResult{}, fmt.Errorf("no detector available")
	}
	if err := ctx.Err(); err != nil {
		return model.ImageResult{}, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return model.ImageResult{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	result, failure := r.processOne(r.detectors[0], path, outputDir, false)
	if failure != nil {
		return model.ImageResult{}, *failure
	}
	return result, nil
}

// RunBatch processes every image of inputDir in sorted name order.
// A failing image is recorded in the outcome and the batch goes on; the returned error
// is only for problems with the batch as a whole.
func (r *Runner) RunBatch(ctx context.Context, inputDir, outputDir string, organizeByClass bool) (*model.BatchOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := ListImages(inputDir)
	if err != nil {
		return nil, err
	}
	return r.RunFiles(ctx, files, outputDir, organizeByClass)
}

// RunFiles processes the given image paths in the given order.
func (r *Runner) RunFiles(ctx context.Context, files []string, outputDir string, organizeByClass bool) (*model.BatchOutcome, error) {
	if len(r.detectors) == 0 {
		return nil, fmt.Errorf("no detector available")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	type slot struct {
		result  model.ImageResult
		failure *model.ImageFailure
	}
	slots := make([]slot, len(files))

	jobs := make(chan int)
	var (
		wg         sync.WaitGroup
		progressMu sync.Mutex
		done       int
	)

	report := func(name string, err error) {
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		if r.progress != nil {
			r.progress(done, len(files), name, err)
		}
	}

	workers := min(len(r.detectors), len(files))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(detector ai.Detector) {
			defer wg.Done()
			for idx := range jobs {
				path := files[idx]
				if err := ctx.Err(); err != nil {
					slots[idx].failure = &model.ImageFailure{
						ImageName:  filepath.Base(path),
						SourcePath: path,
						Stage:      model.StageRead,
						Err:        err,
					}
					report(filepath.Base(path), err)
					continue
				}

				result, failure := r.processOne(detector, path, outputDir, organizeByClass)
				if failure != nil {
					slots[idx].failure = failure
					r.logger.Warning("Skipping image, %v", failure)
					report(failure.ImageName, failure)
					continue
				}
				slots[idx].result = result
				report(result.ImageName, nil)
			}
		}(r.detectors[i])
	}

	for idx := range files {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	outcome := &model.BatchOutcome{}
	for _, s := range slots {
		if s.failure != nil {
			outcome.Failures = append(outcome.Failures, *s.failure)
			continue
		}
		outcome.Results = append(outcome.Results, s.result)
	}

	r.logger.Info("Batch finished: %d processed, %d failed", len(outcome.Results), len(outcome.Failures))
	return outcome, nil
}

// processOne runs read, detect, annotate and save for one image.
func (r *Runner) processOne(detector ai.Detector, path, outputDir string, organizeByClass bool) (model.ImageResult, *model.ImageFailure) {
	name := filepath.Base(path)
	fail := func(stage string, err error) (model.ImageResult, *model.ImageFailure) {
		return model.ImageResult{}, &model.ImageFailure{ImageName: name, SourcePath: path, Stage: stage, Err: err}
	}

	img, err := ai.ReadImage(path)
	if err != nil {
		return fail(model.StageRead, err)
	}
	defer img.Close()

	detections, err := detector.Detect(img)
	if err != nil {
		return fail(model.StageDetect, err)
	}

	result := model.NewImageResult(name, path, detections)

	annotated, err := annotate.Annotate(img, result.Detections)
	if err != nil {
		return fail(model.StageAnnotate, err)
	}
	defer annotated.Close()

	outPath := OutputPath(outputDir, name, result.DominantClass, organizeByClass)
	if err := annotate.Save(outPath, annotated); err != nil {
		return fail(model.StageSave, err)
	}

	return result.WithAnnotatedPath(outPath), nil
}
