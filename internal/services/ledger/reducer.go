// Package ledger folds the transaction log into net holdings.
package ledger

import (
	"strings"

	"github.com/big0725/portfolio-pro/internal/models"
)

// Reduce folds an ordered transaction list into net per-symbol
// holdings. Insertion order is chronological order by construction.
//
// This is a running-total reducer, not lot matching: buys accumulate
// both quantity and cost basis; sells reduce net quantity and leave the
// cost accumulators untouched, so only unrealized P&L against the
// remaining buy cost basis is ever computed.
func Reduce(txs []models.Transaction) map[string]models.Holding {
	acc := make(map[string]models.Holding)

	for _, tx := range txs {
		symbol := strings.ToUpper(strings.TrimSpace(tx.Symbol))
		if symbol == "" || tx.Quantity <= 0 {
			continue
		}

		h := acc[symbol]
		h.Symbol = symbol

		switch tx.Kind {
		case models.TransactionBuy:
			h.NetQuantity += tx.Quantity
			h.TotalBuyQuantity += tx.Quantity
			h.TotalBuyCost += tx.Quantity * tx.UnitPrice
		case models.TransactionSell:
			h.NetQuantity -= tx.Quantity
		}

		acc[symbol] = h
	}

	// Filter to open positions and derive average cost.
	holdings := make(map[string]models.Holding, len(acc))
	for symbol, h := range acc {
		if h.NetQuantity <= 0 {
			continue
		}
		if h.TotalBuyQuantity > 0 {
			h.AverageCost = h.TotalBuyCost / h.TotalBuyQuantity
		}
		holdings[symbol] = h
	}

	return holdings
}

// CostBasisMap extracts the per-symbol average cost, used as the
// last-resort price by the quote adapter.
func CostBasisMap(holdings map[string]models.Holding) map[string]float64 {
	basis := make(map[string]float64, len(holdings))
	for symbol, h := range holdings {
		basis[symbol] = h.AverageCost
	}
	return basis
}

// Symbols returns the held symbols in no particular order.
func Symbols(holdings map[string]models.Holding) []string {
	symbols := make([]string, 0, len(holdings))
	for symbol := range holdings {
		symbols = append(symbols, symbol)
	}
	return symbols
}
