package handler

import (
	"github.com/shopspring/decimal"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/api"
)

// ErrorResponse represents a standardized error response. Clients read Error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

func toRatesResponse(table entity.RateTable) api.RatesResponse {
	rates := make(map[string]decimal.Decimal, len(table.Rates))
	for cur, rate := range table.Rates {
		rates[cur.String()] = rate
	}
	return api.RatesResponse{
		Date:  table.Date.Format(entity.DateLayout),
		Rates: rates,
	}
}

func toArchiveResponse(entries []entity.ArchiveEntry) map[string]api.RatesResponse {
	out := make(map[string]api.RatesResponse, len(entries))
	for _, e := range entries {
		out[e.DateKey()] = toRatesResponse(e.Table)
	}
	return out
}

func toUserResponse(snap *entity.UserSnapshot) api.UserResponse {
	balance := make(map[string]decimal.Decimal, len(snap.Balance))
	for cur, amt := range snap.Balance {
		balance[cur.String()] = amt
	}

	txs := make([]api.TransactionDTO, 0, len(snap.Transactions))
	for _, tx := range snap.Transactions {
		txs = append(txs, api.TransactionDTO{
			ID:        tx.ID,
			Type:      string(tx.Kind),
			Currency:  tx.Currency.String(),
			Amount:    tx.Amount,
			Rate:      tx.RateApplied,
			Timestamp: tx.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			BaseValue: tx.BaseCurrencyValue,
		})
	}

	return api.UserResponse{Balance: balance, Transactions: txs}
}
