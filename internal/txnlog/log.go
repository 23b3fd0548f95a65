// Package txnlog appends human-readable transaction events to a plain text
// file. The core only ever writes; external reporting tools tail the file.
package txnlog

import (
	"fmt"
	"os"
	"sync"

	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
)

// Log serializes appends to the transaction log file.
type Log struct {
	mu   sync.Mutex
	path string
}

// New builds the append-only log writer.
func New(path string) (*Log, error) {
	if path == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction log path required")
	}
	return &Log{path: path}, nil
}

// Submitted records a new pending claim.
func (l *Log) Submitted(txnID string, userID int64, username, productName string) error {
	return l.append(fmt.Sprintf("UserID: %d, Username: @%s, Product: %s, Txn: %s, Status: PENDING\n",
		userID, username, productName, txnID))
}

// Approved records a verified claim.
func (l *Log) Approved(txnID string, userID int64, productName string) error {
	return l.append(fmt.Sprintf("Txn %s VERIFIED for %d, Product: %s\n", txnID, userID, productName))
}

// Rejected records a rejected claim and its reason.
func (l *Log) Rejected(txnID string, userID int64, reason string) error {
	return l.append(fmt.Sprintf("Txn %s REJECTED for %d, Reason: %s\n", txnID, userID, reason))
}

func (l *Log) append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open transaction log")
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append transaction log")
	}
	return nil
}
