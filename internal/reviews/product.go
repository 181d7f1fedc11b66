package reviews

import "fmt"

// Product is the catalog information shown alongside an analysis.
type Product struct {
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
	ID       string `json:"id"`
	URL      string `json:"url"`
}

// DefaultProduct is used when the catalog has no entry for id.
func DefaultProduct(id string) Product {
	return Product{
		Name:     fmt.Sprintf("Amazon Product (%s)", id),
		Brand:    "Unknown Brand",
		Category: "General",
		ID:       id,
		URL:      ProductURL(id),
	}
}

// ProductURL is the storefront link for an ASIN.
func ProductURL(id string) string {
	return "https://www.amazon.com/dp/" + id
}
