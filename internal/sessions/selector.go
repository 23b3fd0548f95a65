// Package sessions tracks each buyer's most recent product selection. The
// selection is a snapshot pointer: it is validated against the catalog when
// made and again when consumed at submission time, never in between.
package sessions

import (
	"context"
	"sync"

	"github.com/fxmediacalicut-cloud/telegrambot/internal/catalog"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
)

// Selector owns the per-user selection map behind a single lock. It is never
// exposed as ambient global state; handlers receive it by reference.
type Selector struct {
	mu       sync.RWMutex
	selected map[int64]string
	catalog  catalog.Getter
}

// NewSelector wires the selector against the catalog read surface.
func NewSelector(cat catalog.Getter) (*Selector, error) {
	if cat == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog getter required")
	}
	return &Selector{
		selected: make(map[int64]string),
		catalog:  cat,
	}, nil
}

// Select records the user's choice, overwriting any prior one. The code must
// resolve in the catalog at selection time.
func (s *Selector) Select(ctx context.Context, userID int64, code string) error {
	if _, err := s.catalog.Get(ctx, code); err != nil {
		return err
	}
	s.mu.Lock()
	s.selected[userID] = code
	s.mu.Unlock()
	return nil
}

// Current returns the stored code; ok is false when the user has not selected
// anything yet, which is an expected state rather than an error.
func (s *Selector) Current(userID int64) (code string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok = s.selected[userID]
	return code, ok
}
