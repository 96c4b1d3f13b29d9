// Package models defines data structures for Portfolio Pro
package models

import (
	"fmt"
	"strings"
	"time"
)

// TransactionKind is the direction of a recorded trade.
type TransactionKind string

const (
	TransactionBuy  TransactionKind = "buy"
	TransactionSell TransactionKind = "sell"
)

// Transaction is one recorded buy or sell event. Immutable once created
// except for deletion; never updated in place.
type Transaction struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Quantity   float64         `json:"quantity"`
	UnitPrice  float64         `json:"unit_price"`
	Kind       TransactionKind `json:"kind"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Validate checks the invariants that hold for every stored transaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("transaction symbol is required")
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("transaction quantity must be positive, got %v", t.Quantity)
	}
	if t.UnitPrice < 0 {
		return fmt.Errorf("transaction unit price must be non-negative, got %v", t.UnitPrice)
	}
	if t.Kind != TransactionBuy && t.Kind != TransactionSell {
		return fmt.Errorf("transaction kind must be %q or %q, got %q", TransactionBuy, TransactionSell, t.Kind)
	}
	return nil
}

// Holding is the derived net position per symbol. Never stored; always
// recomputed by folding the transaction log.
type Holding struct {
	Symbol      string  `json:"symbol"`
	NetQuantity float64 `json:"net_quantity"`
	AverageCost float64 `json:"average_cost"`

	// Buy-lot accumulators kept for the reducer; sells never touch them.
	TotalBuyQuantity float64 `json:"-"`
	TotalBuyCost     float64 `json:"-"`
}

// CostBasis returns the remaining cost basis against the net position.
func (h *Holding) CostBasis() float64 {
	return h.NetQuantity * h.AverageCost
}
