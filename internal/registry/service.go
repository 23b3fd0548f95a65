package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fxmediacalicut-cloud/telegrambot/internal/catalog"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/enums"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/logger"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/metrics"
	"github.com/google/uuid"
)

// Notifier delivers workflow outcomes. Sends are best-effort; failures are
// logged and never roll back a committed transition.
type Notifier interface {
	SubmissionReceipt(ctx context.Context, userID int64, productName string) error
	ReviewPrompt(ctx context.Context, txnID, username, productName, artifactRef string) error
	AccessDelivered(ctx context.Context, userID int64, access string) error
	RejectionNotice(ctx context.Context, userID int64, productName, txnID, reason string) error
}

// Recorder appends terminal and submission events to the transaction log.
type Recorder interface {
	Submitted(txnID string, userID int64, username, productName string) error
	Approved(txnID string, userID int64, productName string) error
	Rejected(txnID string, userID int64, reason string) error
}

// Service drives submissions through the PENDING → APPROVED/REJECTED state
// machine under single-admin review.
type Service struct {
	mu sync.Mutex
	// pending holds the live transactions; resolved records are removed, so a
	// retried approve deterministically observes not-found.
	pending map[string]*Transaction
	// awaitingReason correlates the admin's next free-text message with the
	// transaction they clicked reject on. One slot per admin identity: a
	// second reject click overwrites the slot and abandons the first intent.
	awaitingReason map[int64]string

	adminID  int64
	catalog  catalog.Getter
	recorder Recorder
	notifier Notifier
	logg     *logger.Logger
	metrics  *metrics.TransactionMetrics
}

// Params wires the registry dependencies.
type Params struct {
	AdminID  int64
	Catalog  catalog.Getter
	Recorder Recorder
	Notifier Notifier
	Logger   *logger.Logger
	Metrics  *metrics.TransactionMetrics
}

// NewService validates dependencies and builds the registry.
func NewService(p Params) (*Service, error) {
	if p.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog getter required")
	}
	if p.Recorder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction recorder required")
	}
	if p.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier required")
	}
	if p.AdminID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	return &Service{
		pending:        make(map[string]*Transaction),
		awaitingReason: make(map[int64]string),
		adminID:        p.AdminID,
		catalog:        p.Catalog,
		recorder:       p.Recorder,
		notifier:       p.Notifier,
		logg:           p.Logger,
		metrics:        p.Metrics,
	}, nil
}

// Submit registers a PENDING transaction for the buyer's current selection.
// The product must still resolve in the catalog at submission time; a
// selection that outlived its product fails here instead of resolving to a
// stale record.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*Transaction, error) {
	product, err := s.catalog.Get(ctx, params.ProductCode)
	if err != nil {
		return nil, err
	}

	txn := &Transaction{
		ID:          uuid.NewString(),
		UserID:      params.UserID,
		Username:    params.Username,
		ProductCode: params.ProductCode,
		ArtifactRef: params.ArtifactRef,
		Status:      enums.TransactionStatusPending,
		SubmittedAt: time.Now(),
	}

	s.mu.Lock()
	s.pending[txn.ID] = txn
	s.mu.Unlock()

	s.metrics.IncSubmitted()

	// Side effects after the state commit; failures are reported, not rolled back.
	if err := s.recorder.Submitted(txn.ID, txn.UserID, txn.Username, product.Name); err != nil {
		s.logError(ctx, txn.ID, "record submission", err)
	}
	if err := s.notifier.SubmissionReceipt(ctx, txn.UserID, product.Name); err != nil {
		s.logError(ctx, txn.ID, "send submission receipt", err)
	}
	if err := s.notifier.ReviewPrompt(ctx, txn.ID, txn.Username, product.Name, txn.ArtifactRef); err != nil {
		s.logError(ctx, txn.ID, "send review prompt", err)
	}

	snapshot := *txn
	return &snapshot, nil
}

// Approve resolves the transaction and releases the access payload. Only the
// configured admin may call it; a retried approve observes not-found because
// resolved records are purged.
func (s *Service) Approve(ctx context.Context, txnID string, callerID int64) (*Resolution, error) {
	if err := s.authorize(callerID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	txn, ok := s.pending[txnID]
	var productCode string
	if ok {
		productCode = txn.ProductCode
	}
	s.mu.Unlock()
	if !ok {
		return nil, errTransactionNotFound(txnID)
	}

	// Resolve the payload before committing so a vanished product leaves the
	// claim pending instead of consuming it with nothing to deliver.
	product, err := s.catalog.Get(ctx, productCode)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	txn, ok = s.pending[txnID]
	if ok {
		delete(s.pending, txnID)
	}
	s.mu.Unlock()
	if !ok {
		// Lost the race against a concurrent resolution.
		return nil, errTransactionNotFound(txnID)
	}

	txn.Status = enums.TransactionStatusApproved
	s.metrics.IncResolved("approved")

	if err := s.recorder.Approved(txn.ID, txn.UserID, product.Name); err != nil {
		s.logError(ctx, txn.ID, "record approval", err)
	}
	if err := s.notifier.AccessDelivered(ctx, txn.UserID, product.Access); err != nil {
		s.logError(ctx, txn.ID, "deliver access payload", err)
	}

	return &Resolution{
		Transaction: *txn,
		ProductName: product.Name,
		Access:      product.Access,
	}, nil
}

// BeginReject arms the admin's correlation slot for the transaction. The
// record stays PENDING until the reason arrives via CompleteReject.
func (s *Service) BeginReject(ctx context.Context, txnID string, callerID int64) (*Transaction, error) {
	if err := s.authorize(callerID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.pending[txnID]
	if !ok {
		return nil, errTransactionNotFound(txnID)
	}
	s.awaitingReason[callerID] = txnID
	snapshot := *txn
	return &snapshot, nil
}

// CompleteReject consumes the armed slot, resolves the correlated transaction
// and notifies the buyer. A blank reason becomes DefaultRejectionReason.
func (s *Service) CompleteReject(ctx context.Context, callerID int64, reason string) (*Resolution, error) {
	if err := s.authorize(callerID); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}

	s.mu.Lock()
	txnID, armed := s.awaitingReason[callerID]
	if armed {
		delete(s.awaitingReason, callerID)
	}
	var txn *Transaction
	var live bool
	if armed {
		txn, live = s.pending[txnID]
		if live {
			delete(s.pending, txnID)
		}
	}
	s.mu.Unlock()

	if !armed {
		return nil, pkgerrors.New(pkgerrors.CodeNoPending, "no rejection awaiting a reason")
	}
	if !live {
		// Resolved through another path while the admin was typing.
		return nil, errTransactionNotFound(txnID)
	}

	txn.Status = enums.TransactionStatusRejected
	s.metrics.IncResolved("rejected")

	productName := txn.ProductCode
	if product, err := s.catalog.Get(ctx, txn.ProductCode); err == nil {
		productName = product.Name
	}

	if err := s.recorder.Rejected(txn.ID, txn.UserID, reason); err != nil {
		s.logError(ctx, txn.ID, "record rejection", err)
	}
	if err := s.notifier.RejectionNotice(ctx, txn.UserID, productName, txn.ID, reason); err != nil {
		s.logError(ctx, txn.ID, "send rejection notice", err)
	}

	return &Resolution{
		Transaction: *txn,
		ProductName: productName,
		Reason:      reason,
	}, nil
}

// AwaitingReason reports whether the admin has an armed rejection slot.
func (s *Service) AwaitingReason(callerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.awaitingReason[callerID]
	return ok
}

func (s *Service) authorize(callerID int64) error {
	if callerID != s.adminID {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is not the admin")
	}
	return nil
}

func errTransactionNotFound(txnID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("transaction %s not found", txnID))
}

func (s *Service) logError(ctx context.Context, txnID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithTransactionID(ctx, txnID), msg, err)
}
