package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/fxmediacalicut-cloud/telegrambot/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists catalog products in the sqlite database.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode loads a single product.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// List returns all products in insertion order.
func (r *Repository) List(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("rowid").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Create inserts a product; the code must be unused.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// Delete removes the product and reports whether it existed.
func (r *Repository) Delete(ctx context.Context, code string) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&models.Product{}, "code = ?", code)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Count returns the number of products in the catalog.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// NextFreeCode scans existing p<N> codes and returns the first unused one.
func (r *Repository) NextFreeCode(ctx context.Context) (string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Pluck("code", &codes).Error; err != nil {
		return "", err
	}
	taken := make(map[int]bool, len(codes))
	for _, code := range codes {
		if !strings.HasPrefix(code, "p") {
			continue
		}
		if n, err := strconv.Atoi(code[1:]); err == nil && n > 0 {
			taken[n] = true
		}
	}
	for n := 1; ; n++ {
		if !taken[n] {
			return "p" + strconv.Itoa(n), nil
		}
	}
}

// IsNotFound reports whether err is the repository's missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
