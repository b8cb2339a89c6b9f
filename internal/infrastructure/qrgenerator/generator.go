package qrgenerator

import (
	"errors"

	qr "github.com/skip2/go-qrcode"

	"github.com/Xausdorf/payrelay/internal/domain/qrcode"
)

const DefaultSize = 256

type Generator struct {
	size int
}

func NewGenerator(size int) *Generator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Generator{size: size}
}

var _ qrcode.Generator = (*Generator)(nil)

// Generate encodes the payment page URL as a PNG.
func (g *Generator) Generate(link qrcode.PaymentLink) ([]byte, error) {
	if link.URL == "" {
		return nil, errors.New("payment link has no url")
	}
	return qr.Encode(link.URL, qr.Medium, g.size)
}
