package reviews

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ReviewLens/internal/database"
)

// Column names of the Datafiniti consumer reviews export.
const (
	ColumnASINs    = "asins"
	ColumnName     = "name"
	ColumnBrand    = "brand"
	ColumnCategory = "primaryCategories"
	ColumnText     = "reviews.text"
	ColumnRating   = "reviews.rating"
)

// importBatch is the number of rows written per transaction.
const importBatch = 1000

// ImportResult summarises a CSV import.
type ImportResult struct {
	Rows     int
	Imported int
	Skipped  int
	Products int
	Unrated  int
}

// Importer loads a reviews CSV into the database.
type Importer struct {
	db     *database.DB
	logger *zap.Logger
}

// NewImporter creates an importer.
func NewImporter(db *database.DB, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{db: db, logger: logger}
}

// Import reads r and appends its reviews to the corpus. Rows without review
// text are skipped. Rows whose rating is missing or not a whole number are
// kept with no rating; training leaves them out. Every ASIN of a row becomes
// a catalog entry.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{ColumnASINs, ColumnText, ColumnRating} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV is missing column %q", required)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	res := &ImportResult{}
	products := make(map[string]database.Product)
	var order []string
	var batch []database.Review

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.db.InsertReviews(batch)
		if err != nil {
			return err
		}
		res.Imported += n
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row %d: %w", res.Rows+2, err)
		}
		res.Rows++

		ids := SplitASINs(field(rec, ColumnASINs))
		text := field(rec, ColumnText)
		if len(ids) == 0 || text == "" {
			res.Skipped++
			im.logger.Debug("skipping row without ASIN or text", zap.Int("row", res.Rows+1))
			continue
		}

		rating, ok := parseRating(field(rec, ColumnRating))
		if !ok {
			res.Unrated++
			im.logger.Debug("row has no usable rating", zap.Int("row", res.Rows+1),
				zap.String("rating", field(rec, ColumnRating)))
		}
		batch = append(batch, database.Review{
			ASINs:       strings.Join(ids, ","),
			ProductName: field(rec, ColumnName),
			Text:        text,
			Rating:      rating,
		})

		for _, id := range ids {
			if _, seen := products[id]; !seen {
				order = append(order, id)
			}
			products[id] = database.Product{
				ASIN:     id,
				Name:     field(rec, ColumnName),
				Brand:    field(rec, ColumnBrand),
				Category: field(rec, ColumnCategory),
			}
		}

		if len(batch) >= importBatch {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	catalog := make([]database.Product, 0, len(order))
	for _, id := range order {
		catalog = append(catalog, products[id])
	}
	if err := im.db.UpsertProducts(catalog); err != nil {
		return nil, fmt.Errorf("saving products: %w", err)
	}
	res.Products = len(catalog)

	im.logger.Info("corpus imported",
		zap.Int("rows", res.Rows),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
		zap.Int("unrated", res.Unrated),
		zap.Int("products", res.Products))
	return res, nil
}

// SplitASINs splits a comma-separated ASIN field, dropping blanks.
func SplitASINs(field string) []string {
	var out []string
	for _, part := range strings.Split(field, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// parseRating accepts whole numbers written as integers or floats ("4",
// "4.0"). Range checking is left to labeling.
func parseRating(s string) (*int, bool) {
	if s == "" {
		return nil, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	n := int(f)
	return &n, true
}
