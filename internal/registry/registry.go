// Package registry owns the transaction approval state machine. A submitted
// payment claim is PENDING until the single admin approves or rejects it;
// terminal records are purged from memory and live on only in the append-only
// log. All shared state sits behind one mutex owned by the Service; handlers
// receive the Service by reference, never as ambient globals.
package registry

import (
	"context"
	"sort"
	"time"

	"github.com/fxmediacalicut-cloud/telegrambot/pkg/enums"
)

// Transaction is an in-flight payment claim. ProductCode is a snapshot of the
// buyer's selection at submission time, not a live catalog reference.
type Transaction struct {
	ID          string
	UserID      int64
	Username    string
	ProductCode string
	ArtifactRef string
	Status      enums.TransactionStatus
	SubmittedAt time.Time
}

// Resolution is the outcome of a terminal transition, carrying everything the
// delivery path needs.
type Resolution struct {
	Transaction Transaction
	ProductName string
	// Access is set on approval only.
	Access string
	// Reason is set on rejection only.
	Reason string
}

// SubmitParams carries a proof-of-payment submission.
type SubmitParams struct {
	UserID      int64
	Username    string
	ProductCode string
	ArtifactRef string
}

// DefaultRejectionReason replaces a blank reason so buyers never receive an
// empty explanation.
const DefaultRejectionReason = "No reason provided."

// Pending returns a snapshot of unresolved transactions, oldest first.
func (s *Service) Pending(ctx context.Context) []Transaction {
	s.mu.Lock()
	snapshot := make([]Transaction, 0, len(s.pending))
	for _, txn := range s.pending {
		snapshot = append(snapshot, *txn)
	}
	s.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].SubmittedAt.Before(snapshot[j].SubmittedAt)
	})
	return snapshot
}

// Stale returns pending transactions older than the given age. Visibility
// only: nothing expires a pending claim, an admin still has to act.
func (s *Service) Stale(ctx context.Context, olderThan time.Duration) []Transaction {
	cutoff := time.Now().Add(-olderThan)
	var stale []Transaction
	for _, txn := range s.Pending(ctx) {
		if txn.SubmittedAt.Before(cutoff) {
			stale = append(stale, txn)
		}
	}
	return stale
}
