// Package wizard walks the admin through adding a product, one field per
// message. Each admin session is an explicit state object: current step plus
// the partially built product, advanced only on well-formed input and
// discarded on cancel or completion.
package wizard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/fxmediacalicut-cloud/telegrambot/internal/catalog"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/db/models"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/enums"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
)

// AutoCode asks the wizard to assign the next free p<N> code.
const AutoCode = "-"

type session struct {
	step    enums.WizardStep
	product models.Product
}

// Manager owns the per-admin wizard sessions behind a single lock.
type Manager struct {
	mu      sync.Mutex
	active  map[int64]*session
	catalog catalog.Service
}

// NewManager wires the wizard against the catalog service.
func NewManager(cat catalog.Service) (*Manager, error) {
	if cat == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog service required")
	}
	return &Manager{
		active:  make(map[int64]*session),
		catalog: cat,
	}, nil
}

// Start begins a fresh add-product session, replacing any stale one.
func (m *Manager) Start(adminID int64) string {
	m.mu.Lock()
	m.active[adminID] = &session{step: enums.WizardStepCode}
	m.mu.Unlock()
	return fmt.Sprintf("🆕 Adding a product.\nSend a product code, or %q to auto-assign the next free one.", AutoCode)
}

// Active reports whether the admin has a wizard session in flight.
func (m *Manager) Active(adminID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[adminID]
	return ok
}

// Cancel discards the session and reports whether one existed.
func (m *Manager) Cancel(adminID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[adminID]; !ok {
		return false
	}
	delete(m.active, adminID)
	return true
}

// Input advances the session with the admin's next message. Malformed input
// keeps the session at the same step and the reply says how to fix it; done
// is true once the product is saved.
func (m *Manager) Input(ctx context.Context, adminID int64, text string) (reply string, done bool, err error) {
	m.mu.Lock()
	sess, ok := m.active[adminID]
	m.mu.Unlock()
	if !ok {
		return "", false, pkgerrors.New(pkgerrors.CodeNotFound, "no wizard session in flight")
	}

	text = strings.TrimSpace(text)
	switch sess.step {
	case enums.WizardStepCode:
		return m.stepCode(ctx, sess, text)
	case enums.WizardStepName:
		if text == "" {
			return "❌ Name cannot be empty. Send the product name:", false, nil
		}
		sess.product.Name = text
		sess.step = enums.WizardStepPrice
		return "💰 Send the price (a whole positive number):", false, nil
	case enums.WizardStepPrice:
		price, convErr := strconv.Atoi(text)
		if convErr != nil || price <= 0 {
			return "❌ Price must be a whole positive number. Try again:", false, nil
		}
		sess.product.Price = price
		sess.step = enums.WizardStepAccess
		return "🔑 Send the access payload delivered on approval:", false, nil
	case enums.WizardStepAccess:
		if text == "" {
			return "❌ Access payload cannot be empty. Send it again:", false, nil
		}
		sess.product.Access = text
		sess.step = enums.WizardStepImage
		return "🖼 Send an image reference, or \"skip\":", false, nil
	case enums.WizardStepImage:
		if !strings.EqualFold(text, "skip") && text != "" {
			image := text
			sess.product.Image = &image
		}
		return m.finish(ctx, adminID, sess)
	}
	return "", false, pkgerrors.New(pkgerrors.CodeInternal, "unknown wizard step")
}

func (m *Manager) stepCode(ctx context.Context, sess *session, text string) (string, bool, error) {
	code := text
	if code == AutoCode || code == "" {
		free, err := m.catalog.NextFreeCode(ctx)
		if err != nil {
			return "", false, err
		}
		code = free
	} else if _, err := m.catalog.Get(ctx, code); err == nil {
		return fmt.Sprintf("❌ Code %q is already taken. Send another code:", code), false, nil
	} else if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return "", false, err
	}
	sess.product.Code = code
	sess.step = enums.WizardStepName
	return fmt.Sprintf("✅ Code %s.\nSend the product name:", code), false, nil
}

func (m *Manager) finish(ctx context.Context, adminID int64, sess *session) (string, bool, error) {
	product := sess.product
	if err := m.catalog.Upsert(ctx, &product); err != nil {
		// The code was free when chosen but races with another write path are
		// possible; report and end the session either way.
		m.discard(adminID)
		return "", false, err
	}
	m.discard(adminID)
	return fmt.Sprintf("✅ Product %s (%s) saved at price %d.", product.Code, product.Name, product.Price), true, nil
}

func (m *Manager) discard(adminID int64) {
	m.mu.Lock()
	delete(m.active, adminID)
	m.mu.Unlock()
}
