package qrcode

// PaymentLink is what the end user scans to reach the gateway's payment page.
type PaymentLink struct {
	Code string
	URL  string
}

type Generator interface {
	Generate(link PaymentLink) ([]byte, error)
}
