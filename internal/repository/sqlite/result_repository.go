package sqlite

import (
	"fmt"

	"neurodrive/internal/model"
)

// ResultRepository implements repository.ResultRepository for SQLite.
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a new SQLite result repository.
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Insert adds a per-image result and returns its ID.
func (r *ResultRepository) Insert(result *model.StoredResult) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	res, err := r.db.Conn().Exec(`
		INSERT INTO image_results (run_id, image_name, annotated_path, dominant_class, total_vehicles, avg_confidence, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, result.RunID, result.ImageName, result.AnnotatedPath, result.DominantClass, result.TotalVehicles, result.AvgConfidence, result.Error)
	if err != nil {
		return 0, fmt.Errorf("failed to insert result: %w", err)
	}

	return res.LastInsertId()
}

// GetByRunID retrieves the results of a run in insertion order.
func (r *ResultRepository) GetByRunID(runID string) ([]model.StoredResult, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, run_id, image_name, annotated_path, dominant_class, total_vehicles, avg_confidence, error
		FROM image_results WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []model.StoredResult
	for rows.Next() {
		var res model.StoredResult
		if err := rows.Scan(&res.ID, &res.RunID, &res.ImageName, &res.AnnotatedPath, &res.DominantClass,
			&res.TotalVehicles, &res.AvgConfidence, &res.Error); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetClassDistribution counts detections per label for one run, or for all runs when runID is empty.
func (r *ResultRepository) GetClassDistribution(runID string) (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT d.label, COUNT(*)
		FROM detections d
		JOIN image_results ir ON ir.id = d.result_id
	`
	args := []interface{}{}
	if runID != "" {
		query += " WHERE ir.run_id = ?"
		args = append(args, runID)
	}
	query += " GROUP BY d.label"

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query class distribution: %w", err)
	}
	defer rows.Close()

	distribution := make(map[string]int)
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan class count: %w", err)
		}
		distribution[label] = count
	}
	return distribution, rows.Err()
}
