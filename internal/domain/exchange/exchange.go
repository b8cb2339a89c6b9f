package exchange

import (
	"context"
	"strings"

	"github.com/Xausdorf/payrelay/internal/domain/apperror"
)

type OrderType string

const (
	OrderBuy  OrderType = "buy"
	OrderSell OrderType = "sell"
)

func (t OrderType) Valid() bool {
	return t == OrderBuy || t == OrderSell
}

// Balance maps an asset symbol to its available quantity.
type Balance map[string]float64

type OrderRequest struct {
	Symbol string    `json:"symbol"`
	Type   OrderType `json:"type"`
	Amount int64     `json:"amount"`
}

func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return apperror.Invalid("symbol", "is required")
	}
	if !r.Type.Valid() {
		return apperror.Invalid("type", "must be buy or sell")
	}
	if r.Amount <= 0 {
		return apperror.Invalid("amount", "must be positive")
	}
	return nil
}

type Order struct {
	OrderID string  `json:"order_id"`
	Status  string  `json:"status"`
	Filled  float64 `json:"filled"`
}

type WithdrawRequest struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

func (r WithdrawRequest) Validate() error {
	if strings.TrimSpace(r.Address) == "" {
		return apperror.Invalid("address", "is required")
	}
	if r.Amount <= 0 {
		return apperror.Invalid("amount", "must be positive")
	}
	return nil
}

// Exchange is the trading venue. Nothing is checked locally: availability of
// funds and tradability of a symbol surface only as remote errors.
type Exchange interface {
	GetBalance(ctx context.Context) (Balance, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (map[string]any, error)
}
