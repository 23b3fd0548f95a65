// Package dispatch consumes inbound chat updates on a single worker and routes
// them to the workflow core. Routing keys on the four event shapes and, for
// button payloads, on string prefixes: a product code for selection,
// "approve_"/"reject_" for review controls, "remove_" for catalog deletion.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxmediacalicut-cloud/telegrambot/internal/catalog"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/chat"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/delivery"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/registry"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/sessions"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/wizard"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/logger"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/metrics"
)

const (
	prefixApprove = "approve_"
	prefixReject  = "reject_"
	prefixRemove  = "remove_"

	genericFailureReply = "⚠️ An error occurred. Please try again later."
	staleAge            = 24 * time.Hour
)

// ArtifactSaver persists an uploaded proof image and returns its reference.
type ArtifactSaver interface {
	Save(ctx context.Context, userID int64, r io.Reader) (string, error)
}

// Dispatcher binds chat events to the workflow services.
type Dispatcher struct {
	queue   chan chat.Update
	adminID int64

	catalog   catalog.Service
	selector  *sessions.Selector
	registry  *registry.Service
	wizard    *wizard.Manager
	notifier  *delivery.Notifier
	artifacts ArtifactSaver
	files     chat.FileFetcher
	sender    chat.Sender
	logg      *logger.Logger
	metrics   *metrics.TransactionMetrics
}

// Params wires the dispatcher dependencies.
type Params struct {
	AdminID   int64
	QueueSize int
	Catalog   catalog.Service
	Selector  *sessions.Selector
	Registry  *registry.Service
	Wizard    *wizard.Manager
	Notifier  *delivery.Notifier
	Artifacts ArtifactSaver
	Files     chat.FileFetcher
	Sender    chat.Sender
	Logger    *logger.Logger
	Metrics   *metrics.TransactionMetrics
}

// New validates dependencies and builds the dispatcher.
func New(p Params) (*Dispatcher, error) {
	switch {
	case p.Catalog == nil, p.Selector == nil, p.Registry == nil, p.Wizard == nil,
		p.Notifier == nil, p.Artifacts == nil, p.Files == nil, p.Sender == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dispatcher dependencies incomplete")
	}
	if p.AdminID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	size := p.QueueSize
	if size <= 0 {
		size = 128
	}
	return &Dispatcher{
		queue:     make(chan chat.Update, size),
		adminID:   p.AdminID,
		catalog:   p.Catalog,
		selector:  p.Selector,
		registry:  p.Registry,
		wizard:    p.Wizard,
		notifier:  p.Notifier,
		artifacts: p.Artifacts,
		files:     p.Files,
		sender:    p.Sender,
		logg:      p.Logger,
		metrics:   p.Metrics,
	}, nil
}

// Enqueue hands an update to the worker; it reports false when the queue is
// saturated and the update was dropped.
func (d *Dispatcher) Enqueue(update chat.Update) bool {
	select {
	case d.queue <- update:
		return true
	default:
		d.metrics.IncUpdate("dropped")
		return false
	}
}

// Run consumes updates until the context is cancelled. One event's failure
// never affects the next: each runs under a recover guard.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-d.queue:
			d.process(ctx, update)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, update chat.Update) {
	if d.logg != nil {
		ctx = d.logg.WithUpdateID(ctx, update.ID)
	}
	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.IncUpdate("failed")
			if d.logg != nil {
				d.logg.Error(ctx, "panic while handling update", fmt.Errorf("panic: %v", rec))
			}
			d.replyGenericFailure(ctx, update)
		}
	}()

	if err := d.handle(ctx, update); err != nil {
		d.metrics.IncUpdate("failed")
		if d.logg != nil {
			d.logg.Error(ctx, "failed to handle update", err)
		}
		d.replyGenericFailure(ctx, update)
		return
	}
	d.metrics.IncUpdate("ok")
}

func (d *Dispatcher) handle(ctx context.Context, update chat.Update) error {
	switch {
	case update.Command != nil:
		return d.handleCommand(ctx, *update.Command)
	case update.Callback != nil:
		return d.handleCallback(ctx, *update.Callback)
	case update.Photo != nil:
		return d.handlePhoto(ctx, *update.Photo)
	case update.Text != nil:
		return d.handleText(ctx, *update.Text)
	}
	// Unknown shapes are dropped by the transport contract.
	return nil
}

func (d *Dispatcher) handleCommand(ctx context.Context, cmd chat.Command) error {
	switch cmd.Name {
	case "start":
		return d.sendCatalog(ctx, cmd.UserID)
	case "addproduct":
		if cmd.UserID != d.adminID {
			return nil
		}
		return d.sender.SendMessage(ctx, cmd.UserID, d.wizard.Start(cmd.UserID))
	case "removeproduct":
		if cmd.UserID != d.adminID {
			return nil
		}
		return d.sendRemovalControls(ctx, cmd.UserID)
	case "cancel":
		if cmd.UserID != d.adminID {
			return nil
		}
		if d.wizard.Cancel(cmd.UserID) {
			return d.sender.SendMessage(ctx, cmd.UserID, "🚫 Wizard cancelled.")
		}
		return nil
	case "pending":
		if cmd.UserID != d.adminID {
			return nil
		}
		return d.sendPendingReport(ctx, cmd.UserID)
	}
	// Unknown commands are ignored, they may belong to other bots in a group.
	return nil
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb chat.Callback) error {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, prefixApprove):
		return d.handleApprove(ctx, cb, strings.TrimPrefix(data, prefixApprove))
	case strings.HasPrefix(data, prefixReject):
		return d.handleBeginReject(ctx, cb, strings.TrimPrefix(data, prefixReject))
	case strings.HasPrefix(data, prefixRemove):
		return d.handleRemoveProduct(ctx, cb, strings.TrimPrefix(data, prefixRemove))
	case strings.HasPrefix(data, "p"):
		return d.handleSelection(ctx, cb, data)
	}
	return nil
}

func (d *Dispatcher) handleSelection(ctx context.Context, cb chat.Callback, code string) error {
	if err := d.selector.Select(ctx, cb.UserID, code); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return d.sender.SendMessage(ctx, cb.UserID, "⚠️ That product is no longer available. Use /start to pick another.")
		}
		return err
	}
	product, err := d.catalog.Get(ctx, code)
	if err != nil {
		return err
	}
	if err := d.notifier.PaymentInstructions(ctx, cb.UserID, product); err != nil {
		// Best-effort: the selection is already recorded.
		d.logDeliveryFailure(ctx, err)
	}
	return nil
}

func (d *Dispatcher) handleApprove(ctx context.Context, cb chat.Callback, txnID string) error {
	res, err := d.registry.Approve(ctx, txnID, cb.UserID)
	if err != nil {
		return d.replyReviewError(ctx, cb.UserID, err)
	}
	confirmation := fmt.Sprintf("✅ Approved Txn %s and access sent to @%s", res.Transaction.ID, res.Transaction.Username)
	if err := d.sender.SendMessage(ctx, cb.UserID, confirmation); err != nil {
		d.logDeliveryFailure(ctx, err)
	}
	return nil
}

func (d *Dispatcher) handleBeginReject(ctx context.Context, cb chat.Callback, txnID string) error {
	txn, err := d.registry.BeginReject(ctx, txnID, cb.UserID)
	if err != nil {
		return d.replyReviewError(ctx, cb.UserID, err)
	}
	prompt := fmt.Sprintf("✏️ Type the reason for rejecting transaction %s:", txn.ID)
	if err := d.sender.SendMessage(ctx, cb.UserID, prompt); err != nil {
		d.logDeliveryFailure(ctx, err)
	}
	return nil
}

func (d *Dispatcher) handleRemoveProduct(ctx context.Context, cb chat.Callback, code string) error {
	if cb.UserID != d.adminID {
		return nil
	}
	removed, err := d.catalog.Remove(ctx, code)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return d.sender.SendMessage(ctx, cb.UserID, "❌ Product not found.")
		}
		return err
	}
	return d.sender.SendMessage(ctx, cb.UserID, fmt.Sprintf("🗑 Removed %s (%s).", removed.Code, removed.Name))
}

func (d *Dispatcher) handlePhoto(ctx context.Context, photo chat.Photo) error {
	code, ok := d.selector.Current(photo.UserID)
	if !ok {
		return d.sender.SendMessage(ctx, photo.UserID, "⚠️ Please select a product first using /start.")
	}

	content, err := d.files.FetchFile(ctx, photo.FileID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch proof image")
	}
	defer content.Close()

	ref, err := d.artifacts.Save(ctx, photo.UserID, content)
	if err != nil {
		return err
	}

	_, err = d.registry.Submit(ctx, registry.SubmitParams{
		UserID:      photo.UserID,
		Username:    displayName(photo.Username),
		ProductCode: code,
		ArtifactRef: ref,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return d.sender.SendMessage(ctx, photo.UserID, "⚠️ That product is no longer available. Use /start to pick another.")
		}
		return err
	}
	return nil
}

// handleText is the rejection-reason sink. The armed correlation slot is the
// only thing distinguishing a reason from unrelated admin chatter; with no
// slot armed the message falls through to the wizard or is ignored.
func (d *Dispatcher) handleText(ctx context.Context, text chat.Text) error {
	if text.UserID != d.adminID {
		return nil
	}

	if d.registry.AwaitingReason(text.UserID) {
		res, err := d.registry.CompleteReject(ctx, text.UserID, text.Body)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) || pkgerrors.HasCode(err, pkgerrors.CodeNoPending) {
				return d.sender.SendMessage(ctx, text.UserID, "❌ Transaction not found.")
			}
			return err
		}
		confirmation := fmt.Sprintf("✅ Sent rejection reason to buyer of Txn %s.", res.Transaction.ID)
		if err := d.sender.SendMessage(ctx, text.UserID, confirmation); err != nil {
			d.logDeliveryFailure(ctx, err)
		}
		return nil
	}

	if d.wizard.Active(text.UserID) {
		reply, _, err := d.wizard.Input(ctx, text.UserID, text.Body)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
				return d.sender.SendMessage(ctx, text.UserID, "❌ "+typed.Message())
			}
			return err
		}
		return d.sender.SendMessage(ctx, text.UserID, reply)
	}

	// Unrelated admin chatter.
	return nil
}

func (d *Dispatcher) sendCatalog(ctx context.Context, userID int64) error {
	products, err := d.catalog.List(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return d.sender.SendMessage(ctx, userID, "⚠️ No products available right now.")
	}
	rows := make([][]chat.Button, 0, len(products))
	for _, product := range products {
		rows = append(rows, []chat.Button{{
			Label: fmt.Sprintf("%s – %d", product.Name, product.Price),
			Data:  product.Code,
		}})
	}
	return d.sender.SendMessageWithButtons(ctx, userID, "👋 Welcome! Choose a product:", rows)
}

func (d *Dispatcher) sendRemovalControls(ctx context.Context, userID int64) error {
	products, err := d.catalog.List(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return d.sender.SendMessage(ctx, userID, "⚠️ Catalog is empty.")
	}
	rows := make([][]chat.Button, 0, len(products))
	for _, product := range products {
		rows = append(rows, []chat.Button{{
			Label: fmt.Sprintf("🗑 %s (%s)", product.Name, product.Code),
			Data:  prefixRemove + product.Code,
		}})
	}
	return d.sender.SendMessageWithButtons(ctx, userID, "Select a product to remove:", rows)
}

func (d *Dispatcher) sendPendingReport(ctx context.Context, userID int64) error {
	pending := d.registry.Pending(ctx)
	if len(pending) == 0 {
		return d.sender.SendMessage(ctx, userID, "✅ No transactions awaiting review.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ %d transaction(s) awaiting review:\n", len(pending))
	stale := d.registry.Stale(ctx, staleAge)
	staleIDs := make(map[string]bool, len(stale))
	for _, txn := range stale {
		staleIDs[txn.ID] = true
	}
	for _, txn := range pending {
		marker := ""
		if staleIDs[txn.ID] {
			marker = " ⚠️ stale"
		}
		fmt.Fprintf(&b, "• %s — @%s, %s, since %s%s\n",
			txn.ID, txn.Username, txn.ProductCode, txn.SubmittedAt.Format(time.RFC822), marker)
	}
	return d.sender.SendMessage(ctx, userID, b.String())
}

// replyReviewError surfaces not-found to the admin and swallows unauthorized
// clicks so outsiders cannot probe for live transaction ids.
func (d *Dispatcher) replyReviewError(ctx context.Context, userID int64, err error) error {
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized):
		return nil
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		return d.sender.SendMessage(ctx, userID, "❌ Transaction not found.")
	}
	return err
}

func (d *Dispatcher) replyGenericFailure(ctx context.Context, update chat.Update) {
	userID, _ := update.From()
	if userID == 0 {
		return
	}
	if err := d.sender.SendMessage(ctx, userID, genericFailureReply); err != nil {
		d.logDeliveryFailure(ctx, err)
	}
}

func (d *Dispatcher) logDeliveryFailure(ctx context.Context, err error) {
	if d.logg != nil {
		d.logg.Error(ctx, "failed to send chat message", err)
	}
}

func displayName(username string) string {
	if username == "" {
		return "NoUsername"
	}
	return username
}
