package service

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/features/transaction/models"
)

// Ledger is an append-only list of marketplace transactions.
// A record may be settled once; after that it never changes.
type Ledger struct {
	mu    sync.RWMutex
	items []*models.Transaction
	index map[string]int
	now   func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{index: make(map[string]int), now: time.Now}
}

// Append records tx. Missing id, time and status are filled in.
func (l *Ledger) Append(tx models.Transaction) models.Transaction {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.OccurredAt.IsZero() {
		tx.OccurredAt = l.now()
	}
	if tx.Status == "" {
		tx.Status = models.StatusPending
	}
	if tx.Amount == nil {
		tx.Amount = big.NewInt(0)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.index[tx.ID] = len(l.items)
	stored := tx
	l.items = append(l.items, &stored)
	return stored
}

// Settle moves a pending transaction to a final status.
func (l *Ledger) Settle(id string, status models.Status, chainTxHash string) (models.Transaction, error) {
	if !status.Final() {
		return models.Transaction{}, apperrors.NewValidationError("status", "must be completed or failed")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return models.Transaction{}, apperrors.NewNotFoundError("transaction", id)
	}
	tx := l.items[i]
	if tx.Status.Final() {
		return *tx, apperrors.New(apperrors.ErrCodeConflict, "Transaction already settled").
			WithDetail("id", id)
	}
	tx.Status = status
	if chainTxHash != "" {
		tx.ChainTxHash = chainTxHash
	}
	return *tx, nil
}

func (l *Ledger) Get(id string) (models.Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return models.Transaction{}, false
	}
	return *l.items[i], true
}

// List returns all transactions, newest first.
func (l *Ledger) List() []models.Transaction {
	return l.Recent(0)
}

// Recent returns up to n transactions, newest first; n <= 0 means all.
func (l *Ledger) Recent(n int) []models.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.items) {
		n = len(l.items)
	}
	out := make([]models.Transaction, 0, n)
	for i := len(l.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *l.items[i])
	}
	return out
}

// Involving returns transactions where address is buyer or seller, newest first.
func (l *Ledger) Involving(address string) []models.Transaction {
	var out []models.Transaction
	for _, tx := range l.Recent(0) {
		if strings.EqualFold(tx.From, address) || strings.EqualFold(tx.To, address) {
			out = append(out, tx)
		}
	}
	return out
}
