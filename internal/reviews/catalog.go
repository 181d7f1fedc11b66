package reviews

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ReviewLens/internal/database"
)

// Catalog serves reviews and product info from the imported corpus.
type Catalog struct {
	db                *database.DB
	substringFallback bool
	logger            *zap.Logger
}

// NewCatalog creates a catalog. With substringFallback set, a product with
// no exact ASIN match falls back to any review whose ASIN field contains the
// identifier.
func NewCatalog(db *database.DB, substringFallback bool, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{db: db, substringFallback: substringFallback, logger: logger}
}

// Reviews returns the review texts for productID. It returns ErrNoReviews
// when nothing matches.
func (c *Catalog) Reviews(ctx context.Context, productID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return nil, fmt.Errorf("empty product id: %w", ErrNoReviews)
	}

	texts, err := c.db.GetReviewTextsForASIN(id)
	if err != nil {
		return nil, fmt.Errorf("looking up reviews for %s: %w", id, err)
	}
	if len(texts) > 0 {
		c.logger.Info("reviews found", zap.String("asin", id), zap.Int("count", len(texts)), zap.String("match", "exact"))
		return texts, nil
	}

	if c.substringFallback {
		texts, err = c.db.GetReviewTextsContainingASIN(id)
		if err != nil {
			return nil, fmt.Errorf("looking up reviews for %s: %w", id, err)
		}
		if len(texts) > 0 {
			c.logger.Warn("reviews matched by substring; they may belong to other products",
				zap.String("asin", id), zap.Int("count", len(texts)))
			return texts, nil
		}
	}

	if sample, err := c.db.GetSampleASINs(5); err == nil {
		c.logger.Debug("no reviews for product", zap.String("asin", id), zap.Strings("sample_asins", sample))
	}
	return nil, fmt.Errorf("product %s: %w", id, ErrNoReviews)
}

// ProductInfo returns the catalog entry for productID, filling gaps with
// the defaults.
func (c *Catalog) ProductInfo(ctx context.Context, productID string) Product {
	id := strings.TrimSpace(productID)
	info := DefaultProduct(id)

	p, err := c.db.GetProduct(id)
	if err != nil {
		c.logger.Error("reading product info", zap.String("asin", id), zap.Error(err))
		return info
	}
	if p == nil {
		return info
	}
	if p.Name != "" {
		info.Name = p.Name
	}
	if p.Brand != "" {
		info.Brand = p.Brand
	}
	if p.Category != "" {
		info.Category = p.Category
	}
	return info
}
