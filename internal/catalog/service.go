package catalog

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxmediacalicut-cloud/telegrambot/pkg/db/models"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/logger"
	"github.com/go-playground/validator/v10"
)

// Getter is the read surface the workflow core depends on.
type Getter interface {
	Get(ctx context.Context, code string) (*models.Product, error)
}

// Service defines catalog operations. Reads serve every handler; writes come
// only from the admin product wizards.
type Service interface {
	Getter
	List(ctx context.Context) ([]models.Product, error)
	Upsert(ctx context.Context, product *models.Product) error
	Remove(ctx context.Context, code string) (*models.Product, error)
	NextFreeCode(ctx context.Context) (string, error)
}

type repository interface {
	FindByCode(ctx context.Context, code string) (*models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, code string) (bool, error)
	Count(ctx context.Context) (int64, error)
	NextFreeCode(ctx context.Context) (string, error)
}

type service struct {
	repo     repository
	validate *validator.Validate
}

// NewService wires the catalog service and seeds the default catalog when the
// store is empty, so the bot never starts without purchasable products.
func NewService(ctx context.Context, repo repository, logg *logger.Logger, defaults []models.Product) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog repository required")
	}
	svc := &service{repo: repo, validate: newValidator()}

	count, err := repo.Count(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count products")
	}
	if count == 0 {
		for i := range defaults {
			product := defaults[i]
			if err := repo.Create(ctx, &product); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed default catalog")
			}
		}
		if logg != nil && len(defaults) > 0 {
			logg.Info(logg.WithField(ctx, "products", len(defaults)), "seeded default catalog")
		}
	}
	return svc, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.ToLower(f.Name)
	})
	return v
}

func (s *service) Get(ctx context.Context, code string) (*models.Product, error) {
	product, err := s.repo.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %q not found", code))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch product")
	}
	return product, nil
}

func (s *service) List(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, nil
}

func (s *service) Upsert(ctx context.Context, product *models.Product) error {
	if product == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product required")
	}
	product.Code = strings.TrimSpace(product.Code)
	if product.Code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product code required")
	}
	if err := s.validate.Struct(product); err != nil {
		return formatValidationErrors(err)
	}

	if _, err := s.repo.FindByCode(ctx, product.Code); err == nil {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("product code %q already taken", product.Code))
	} else if !IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product code")
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return nil
}

func (s *service) Remove(ctx context.Context, code string) (*models.Product, error) {
	product, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	removed, err := s.repo.Delete(ctx, product.Code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	if !removed {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %q not found", code))
	}
	return product, nil
}

func (s *service) NextFreeCode(ctx context.Context) (string, error) {
	code, err := s.repo.NextFreeCode(ctx)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan product codes")
	}
	return code, nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	}
	return "is invalid"
}
