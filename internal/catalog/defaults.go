package catalog

import "github.com/fxmediacalicut-cloud/telegrambot/pkg/db/models"

// DefaultProducts seeds an empty catalog so the storefront is never blank on
// first boot or after storage loss.
func DefaultProducts() []models.Product {
	return []models.Product{
		{Code: "p1", Name: "Product A", Price: 100, Access: "🔑 Access: https://example.com/a"},
		{Code: "p2", Name: "Product B", Price: 200, Access: "🔑 Access: https://example.com/b"},
		{Code: "p3", Name: "Product C", Price: 300, Access: "🔑 Access: https://example.com/c"},
	}
}
