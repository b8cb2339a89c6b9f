package payment

import (
	"context"
	"net/url"
	"strings"

	"github.com/Xausdorf/payrelay/internal/domain/apperror"
)

type Request struct {
	OrderID     string `json:"order_id"`
	AmountIRR   int64  `json:"amount_irr"`
	CallbackURL string `json:"callback_url"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.OrderID) == "" {
		return apperror.Invalid("order_id", "is required")
	}
	if r.AmountIRR <= 0 {
		return apperror.Invalid("amount_irr", "must be positive")
	}
	u, err := url.ParseRequestURI(r.CallbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperror.Invalid("callback_url", "must be an absolute http(s) URL")
	}
	return nil
}

type Created struct {
	Code       string `json:"code"`
	PaymentURL string `json:"payment_url"`
}

type Verification struct {
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type PayoutRequest struct {
	Sheba       string `json:"sheba"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (r PayoutRequest) Validate() error {
	if strings.TrimSpace(r.Sheba) == "" {
		return apperror.Invalid("sheba", "is required")
	}
	if r.Amount <= 0 {
		return apperror.Invalid("amount", "must be positive")
	}
	return nil
}

type Payout struct {
	PayoutID string `json:"payout_id"`
	Status   string `json:"status"`
}

// Gateway is the payment-collection service. VerifyPayment reports the
// gateway's status verbatim; judging it is up to the caller.
type Gateway interface {
	CreatePayment(ctx context.Context, req Request) (*Created, error)
	VerifyPayment(ctx context.Context, code string) (*Verification, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error)
}
