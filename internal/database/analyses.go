package database

import "database/sql"

// InsertAnalysis indexes a saved analysis.
func (db *DB) InsertAnalysis(a Analysis) error {
	_, err := db.conn.Exec(
		`INSERT INTO analyses
		(id, product_id, overall_sentiment, confidence_score, recommendation, review_count,
		result_path, summary_markdown, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProductID, a.OverallSentiment, a.ConfidenceScore, a.Recommendation,
		a.ReviewCount, a.ResultPath, a.SummaryMarkdown, a.CreatedAt,
	)
	return err
}

// GetAnalysis returns an analysis by ID, or nil if unknown.
func (db *DB) GetAnalysis(id string) (*Analysis, error) {
	row := db.conn.QueryRow(
		`SELECT id, product_id, overall_sentiment, confidence_score, recommendation, review_count,
		result_path, summary_markdown, created_at
		FROM analyses WHERE id = ?`, id,
	)
	var a Analysis
	if err := row.Scan(&a.ID, &a.ProductID, &a.OverallSentiment, &a.ConfidenceScore,
		&a.Recommendation, &a.ReviewCount, &a.ResultPath, &a.SummaryMarkdown, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetAllAnalyses returns every analysis, newest first.
func (db *DB) GetAllAnalyses() ([]Analysis, error) {
	rows, err := db.conn.Query(
		`SELECT id, product_id, overall_sentiment, confidence_score, recommendation, review_count,
		result_path, summary_markdown, created_at
		FROM analyses ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		var a Analysis
		if err := rows.Scan(&a.ID, &a.ProductID, &a.OverallSentiment, &a.ConfidenceScore,
			&a.Recommendation, &a.ReviewCount, &a.ResultPath, &a.SummaryMarkdown, &a.CreatedAt); err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}
