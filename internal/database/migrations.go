package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "review corpus and product catalog",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS products (
    asin TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    brand TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS reviews (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    asins TEXT NOT NULL,
    product_name TEXT NOT NULL DEFAULT '',
    review_text TEXT NOT NULL,
    rating INTEGER,
    imported_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reviews_asins ON reviews(asins);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "training runs and analyses",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS training_runs (
    id TEXT PRIMARY KEY,
    trained_at TEXT NOT NULL,
    model_dir TEXT NOT NULL,
    feature_count INTEGER NOT NULL,
    training_samples INTEGER NOT NULL,
    best_score REAL NOT NULL,
    test_accuracy REAL NOT NULL,
    best_params TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL,
    overall_sentiment TEXT NOT NULL CHECK(overall_sentiment IN ('positive', 'neutral', 'negative')),
    confidence_score REAL NOT NULL,
    recommendation TEXT NOT NULL,
    review_count INTEGER NOT NULL,
    result_path TEXT NOT NULL,
    summary_markdown TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_runs_trained ON training_runs(trained_at);
CREATE INDEX IF NOT EXISTS idx_analyses_product ON analyses(product_id);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
