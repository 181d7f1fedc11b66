// Package reviews supplies review text and product information to the
// analyzer: a catalog backed by the imported corpus, and a source that reads
// reviews from RSS/Atom feeds.
package reviews

import (
	"context"
	"errors"
)

// ErrNoReviews is returned when a product has no reviews to analyse.
var ErrNoReviews = errors.New("no reviews found")

// Source looks up the reviews and catalog entry of a product.
type Source interface {
	Reviews(ctx context.Context, productID string) ([]string, error)
	ProductInfo(ctx context.Context, productID string) Product
}
