package database

// InsertTrainingRun records a completed training.
func (db *DB) InsertTrainingRun(r TrainingRun) error {
	_, err := db.conn.Exec(
		`INSERT INTO training_runs
		(id, trained_at, model_dir, feature_count, training_samples, best_score, test_accuracy, best_params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TrainedAt, r.ModelDir, r.FeatureCount, r.TrainingSamples,
		r.BestScore, r.TestAccuracy, r.BestParams,
	)
	return err
}

// GetTrainingRuns returns up to limit runs, newest first.
func (db *DB) GetTrainingRuns(limit int) ([]TrainingRun, error) {
	rows, err := db.conn.Query(
		`SELECT id, trained_at, model_dir, feature_count, training_samples, best_score, test_accuracy, best_params
		FROM training_runs ORDER BY trained_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		var r TrainingRun
		if err := rows.Scan(&r.ID, &r.TrainedAt, &r.ModelDir, &r.FeatureCount,
			&r.TrainingSamples, &r.BestScore, &r.TestAccuracy, &r.BestParams); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLatestTrainingRun returns the newest run, or nil if none exist.
func (db *DB) GetLatestTrainingRun() (*TrainingRun, error) {
	runs, err := db.GetTrainingRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
