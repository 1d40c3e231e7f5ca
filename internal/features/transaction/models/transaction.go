package models

import (
	"math/big"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusFailed
}

const (
	CurrencyUSD = "USD"
	CurrencyETH = "ETH"
)

// Transaction is a display-only record of a marketplace sale.
// Amount is in the smallest unit of Currency (wei for ETH).
type Transaction struct {
	ID          string    `json:"id"`
	PropertyID  string    `json:"property_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      *big.Int  `json:"amount"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
	Status      Status    `json:"status"`
	ChainTxHash string    `json:"chain_tx_hash,omitempty"`
}
