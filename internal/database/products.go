package database

import "database/sql"

// UpsertProducts inserts or replaces catalog entries. Later entries for the
// same ASIN win.
func (db *DB) UpsertProducts(products []Product) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO products (asin, name, brand, category) VALUES (?, ?, ?, ?)
		ON CONFLICT(asin) DO UPDATE SET name = excluded.name, brand = excluded.brand, category = excluded.category`,
	)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.Exec(p.ASIN, p.Name, p.Brand, p.Category); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetProduct returns the catalog entry for an ASIN, or nil if unknown.
func (db *DB) GetProduct(asin string) (*Product, error) {
	row := db.conn.QueryRow(
		"SELECT asin, name, brand, category FROM products WHERE asin = ?", asin,
	)
	var p Product
	if err := row.Scan(&p.ASIN, &p.Name, &p.Brand, &p.Category); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
