package generateqr

//go:generate mockgen -destination=mocks/qrcode.go -package=mocks github.com/Xausdorf/payrelay/internal/domain/qrcode Generator

import (
	"context"
	"fmt"

	"github.com/Xausdorf/payrelay/internal/domain/payment"
	"github.com/Xausdorf/payrelay/internal/domain/qrcode"
)

type Result struct {
	Created *payment.Created
	PNG     []byte
}

type UseCase struct {
	gateway   payment.Gateway
	generator qrcode.Generator
}

func NewUseCase(gateway payment.Gateway, generator qrcode.Generator) *UseCase {
	return &UseCase{gateway: gateway, generator: generator}
}

// Execute creates the payment and renders its payment page URL as a QR code.
func (uc *UseCase) Execute(ctx context.Context, req payment.Request) (*Result, error) {
	created, err := uc.gateway.CreatePayment(ctx, req)
	if err != nil {
		return nil, err
	}

	img, err := uc.generator.Generate(qrcode.PaymentLink{Code: created.Code, URL: created.PaymentURL})
	if err != nil {
		return nil, fmt.Errorf("generate qr code: %w", err)
	}
	return &Result{Created: created, PNG: img}, nil
}
