// Package delivery composes and sends every buyer- and admin-facing message.
// Sends are fire-and-forget: a failed send never unwinds a state transition
// that already committed.
package delivery

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/fxmediacalicut-cloud/telegrambot/internal/chat"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/config"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/db/models"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
)

// ArtifactOpener re-resolves a stored proof reference to its content.
type ArtifactOpener interface {
	Open(ref string) (io.ReadCloser, error)
}

// Notifier sends workflow outcome messages over the chat transport.
type Notifier struct {
	sender    chat.Sender
	artifacts ArtifactOpener
	payment   config.PaymentConfig
	adminID   int64
}

// NewNotifier wires the notifier dependencies.
func NewNotifier(sender chat.Sender, artifacts ArtifactOpener, payment config.PaymentConfig, adminID int64) (*Notifier, error) {
	if sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "chat sender required")
	}
	if artifacts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "artifact opener required")
	}
	return &Notifier{
		sender:    sender,
		artifacts: artifacts,
		payment:   payment,
		adminID:   adminID,
	}, nil
}

// PaymentInstructions tells the buyer how to pay for the selected product.
func (n *Notifier) PaymentInstructions(ctx context.Context, userID int64, product *models.Product) error {
	text := fmt.Sprintf(
		"🛒 You selected: %s (%d %s)\n\n"+
			"💳 UPI ID: %s\n"+
			"📌 Copy this UPI link:\n%s\n\n"+
			"👉 After payment, upload your payment screenshot here.",
		product.Name, product.Price, n.payment.Currency,
		n.payment.UPIID,
		n.PaymentReference(product.Price),
	)
	return n.send(ctx, userID, text)
}

// PaymentReference builds the upi:// deep link for the given amount.
func (n *Notifier) PaymentReference(amount int) string {
	params := url.Values{}
	params.Set("pa", n.payment.UPIID)
	params.Set("pn", n.payment.PayeeName)
	params.Set("am", strconv.Itoa(amount))
	params.Set("cu", n.payment.Currency)
	return "upi://pay?" + params.Encode()
}

// SubmissionReceipt confirms to the buyer that the screenshot arrived.
func (n *Notifier) SubmissionReceipt(ctx context.Context, userID int64, productName string) error {
	return n.send(ctx, userID, fmt.Sprintf("✅ Screenshot received for %s. Await verification.", productName))
}

// ReviewPrompt shows the admin the proof image with approve/reject controls
// bound to the transaction id.
func (n *Notifier) ReviewPrompt(ctx context.Context, txnID, username, productName, artifactRef string) error {
	photo, err := n.artifacts.Open(artifactRef)
	if err != nil {
		return err
	}
	defer photo.Close()

	caption := fmt.Sprintf("⚠️ New Payment Pending\n\nUser: @%s\nProduct: %s\nTxn ID: %s", username, productName, txnID)
	buttons := [][]chat.Button{{
		{Label: "✅ Approve & Send Access", Data: "approve_" + txnID},
		{Label: "❌ Reject Payment", Data: "reject_" + txnID},
	}}
	return n.sender.SendPhoto(ctx, n.adminID, photo, caption, buttons)
}

// AccessDelivered releases the product's access payload to the buyer.
func (n *Notifier) AccessDelivered(ctx context.Context, userID int64, access string) error {
	return n.send(ctx, userID, fmt.Sprintf("🎉 Payment verified!\nHere is your access:\n\n%s", access))
}

// RejectionNotice tells the buyer the claim was rejected and why.
func (n *Notifier) RejectionNotice(ctx context.Context, userID int64, productName, txnID, reason string) error {
	text := fmt.Sprintf(
		"🚫 Payment Rejected\n\n❌ Your payment for %s was rejected.\n\n🆔 Txn ID: %s\n💬 Reason: %s\n\n👉 Please upload a valid screenshot.",
		productName, txnID, reason,
	)
	return n.send(ctx, userID, text)
}

func (n *Notifier) send(ctx context.Context, userID int64, text string) error {
	if err := n.sender.SendMessage(ctx, userID, text); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send chat message")
	}
	return nil
}
