package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/fxmediacalicut-cloud/telegrambot/pkg/db/models"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
)

type fakeCatalog struct {
	products map[string]*models.Product
}

func (f *fakeCatalog) Get(ctx context.Context, code string) (*models.Product, error) {
	if product, ok := f.products[code]; ok {
		return product, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %q not found", code))
}

func newTestSelector(t *testing.T, codes ...string) *Selector {
	t.Helper()
	products := make(map[string]*models.Product, len(codes))
	for i, code := range codes {
		products[code] = &models.Product{Code: code, Name: "P", Price: (i + 1) * 100, Access: "link"}
	}
	selector, err := NewSelector(&fakeCatalog{products: products})
	if err != nil {
		t.Fatalf("failed to build selector: %v", err)
	}
	return selector
}

func TestSelectorLastWriteWins(t *testing.T) {
	selector := newTestSelector(t, "p1", "p2")
	ctx := context.Background()

	if err := selector.Select(ctx, 7, "p1"); err != nil {
		t.Fatalf("unexpected select error: %v", err)
	}
	if err := selector.Select(ctx, 7, "p2"); err != nil {
		t.Fatalf("unexpected select error: %v", err)
	}

	code, ok := selector.Current(7)
	if !ok || code != "p2" {
		t.Fatalf("expected latest selection p2, got %q ok=%v", code, ok)
	}
}

func TestSelectorMissingSelectionIsNotAnError(t *testing.T) {
	selector := newTestSelector(t, "p1")

	code, ok := selector.Current(99)
	if ok || code != "" {
		t.Fatalf("expected no selection, got %q ok=%v", code, ok)
	}
}

func TestSelectorRejectsUnknownProduct(t *testing.T) {
	selector := newTestSelector(t, "p1")

	err := selector.Select(context.Background(), 7, "p404")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok := selector.Current(7); ok {
		t.Fatal("failed select must not record a selection")
	}
}

func TestSelectorConcurrentUsersDoNotInterfere(t *testing.T) {
	selector := newTestSelector(t, "p1", "p2")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(user int64) {
			defer wg.Done()
			_ = selector.Select(ctx, user, "p1")
		}(int64(i))
		go func(user int64) {
			defer wg.Done()
			_ = selector.Select(ctx, user, "p2")
		}(int64(i + 1000))
	}
	wg.Wait()

	for i := int64(0); i < 50; i++ {
		if code, ok := selector.Current(i); !ok || code != "p1" {
			t.Fatalf("user %d: expected p1, got %q ok=%v", i, code, ok)
		}
		if code, ok := selector.Current(i + 1000); !ok || code != "p2" {
			t.Fatalf("user %d: expected p2, got %q ok=%v", i+1000, code, ok)
		}
	}
}
