package database

import (
	"database/sql"
	"fmt"
)

// InsertReviews adds corpus rows in a single transaction and returns how
// many were written.
func (db *DB) InsertReviews(reviews []Review) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO reviews (asins, product_name, review_text, rating) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	for i, r := range reviews {
		if _, err := stmt.Exec(r.ASINs, r.ProductName, r.Text, r.Rating); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("inserting review %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(reviews), nil
}

// ClearReviews deletes the whole corpus.
func (db *DB) ClearReviews() error {
	_, err := db.conn.Exec("DELETE FROM reviews")
	return err
}

// GetAllReviews returns every corpus row in import order.
func (db *DB) GetAllReviews() ([]Review, error) {
	rows, err := db.conn.Query(
		`SELECT id, asins, product_name, review_text, rating, imported_at
		FROM reviews ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

// GetReviewTextsForASIN returns the texts of reviews whose comma-separated
// ASIN list contains asin as a whole entry.
func (db *DB) GetReviewTextsForASIN(asin string) ([]string, error) {
	return db.queryTexts(
		`SELECT review_text FROM reviews
		WHERE instr(',' || asins || ',', ',' || ? || ',') > 0
		ORDER BY id`, asin,
	)
}

// GetReviewTextsContainingASIN returns the texts of reviews whose ASIN field
// contains asin anywhere, including inside a longer identifier.
func (db *DB) GetReviewTextsContainingASIN(asin string) ([]string, error) {
	return db.queryTexts(
		`SELECT review_text FROM reviews WHERE instr(asins, ?) > 0 ORDER BY id`, asin,
	)
}

// GetSampleASINs returns up to n distinct ASIN fields, for diagnostics.
func (db *DB) GetSampleASINs(n int) ([]string, error) {
	return db.queryTexts(`SELECT asins FROM reviews GROUP BY asins ORDER BY MIN(id) LIMIT ?`, n)
}

func (db *DB) queryTexts(query string, args ...any) ([]string, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		texts = append(texts, s)
	}
	return texts, rows.Err()
}

func scanReviews(rows *sql.Rows) ([]Review, error) {
	var reviews []Review
	for rows.Next() {
		var r Review
		var rating sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ASINs, &r.ProductName, &r.Text, &rating, &r.ImportedAt); err != nil {
			return nil, err
		}
		if rating.Valid {
			v := int(rating.Int64)
			r.Rating = &v
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
