package http //nolint:revive // directory-based package name, imported with alias

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultRequestTimeout = 60 * time.Second

func NewRouter(h *Handler, requestTimeout time.Duration) *chi.Mux {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/payping", func(r chi.Router) {
		r.Post("/create", h.HandleCreatePayment)
		r.Post("/create/qr", h.HandleCreatePaymentQR)
		r.Post("/verify", h.HandleVerifyPayment)
		r.Post("/payout", h.HandleCreatePayout)
	})
	r.Route("/nobitex", func(r chi.Router) {
		r.Get("/balance", h.HandleBalance)
		r.Post("/order", h.HandlePlaceOrder)
		r.Post("/withdraw", h.HandleWithdraw)
	})

	r.Post("/create", h.HandleCreatePayment)
	r.Post("/create/qr", h.HandleCreatePaymentQR)
	r.Post("/verify", h.HandleVerifyPayment)
	r.Post("/payout", h.HandleCreatePayout)
	r.Get("/balance", h.HandleBalance)
	r.Post("/order", h.HandlePlaceOrder)
	r.Post("/withdraw", h.HandleWithdraw)

	r.Post("/webhooks/payping", h.HandleWebhook)
	r.Get("/health", h.HandleHealth)

	return r
}

// Instrument wraps the router with otelhttp server spans named "METHOD /path".
func Instrument(router *chi.Mux) http.Handler {
	return otelhttp.NewHandler(router, "payrelay",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
