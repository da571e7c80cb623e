package sqlite

import (
	"database/sql"
	"fmt"

	"neurodrive/internal/dto"
	"neurodrive/internal/model"
)

const runColumns = `id, mode, threshold, organize_by_class, created_at, total_images, total_vehicles,
	failed_images, avg_confidence, output_dir, report_path, archive_path`

// RunRepository implements repository.RunRepository for SQLite.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new SQLite run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Insert adds a new run record to the database.
func (r *RunRepository) Insert(run *model.Run) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Mode, run.Threshold, run.OrganizeByClass, run.CreatedAt, run.TotalImages, run.TotalVehicles,
		run.FailedImages, run.AvgConfidence, run.OutputDir, run.ReportPath, run.ArchivePath)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. A missing run is (nil, nil).
func (r *RunRepository) GetByID(id string) (*model.Run, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetAll retrieves runs, newest first, based on filter criteria.
func (r *RunRepository) GetAll(filter *dto.RunFilters) ([]model.Run, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := runWhere(filter)
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1` + where + ` ORDER BY created_at DESC, id`

	switch {
	case filter != nil && filter.Limit > 0:
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	case filter != nil && filter.Offset > 0:
		query += " LIMIT -1"
	}
	if filter != nil && filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetTotalCount returns the total count of runs matching the filter.
func (r *RunRepository) GetTotalCount(filter *dto.RunFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := runWhere(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM runs WHERE 1=1`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// Delete removes a run with its results and detections.
func (r *RunRepository) Delete(id string) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM detections WHERE result_id IN (SELECT id FROM image_results WHERE run_id = ?)`, id); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM image_results WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return tx.Commit()
}

// DeleteAll removes all runs, results and detections.
func (r *RunRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	for _, table := range []string{"detections", "image_results", "runs"} {
		if _, err := r.db.Conn().Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*model.Run, error) {
	var run model.Run
	err := s.Scan(&run.ID, &run.Mode, &run.Threshold, &run.OrganizeByClass, &run.CreatedAt, &run.TotalImages,
		&run.TotalVehicles, &run.FailedImages, &run.AvgConfidence, &run.OutputDir, &run.ReportPath, &run.ArchivePath)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func runWhere(filter *dto.RunFilters) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	where := ""
	args := []interface{}{}

	if filter.Mode != "" {
		where += " AND mode = ?"
		args = append(args, filter.Mode)
	}
	if !filter.DateAfter.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, filter.DateAfter)
	}
	if !filter.DateBefore.IsZero() {
		where += " AND created_at < ?"
		args = append(args, filter.DateBefore)
	}
	return where, args
}
