package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Xausdorf/payrelay/internal/domain/apperror"
	"github.com/Xausdorf/payrelay/internal/domain/exchange"
	"github.com/Xausdorf/payrelay/internal/domain/payment"
	"github.com/Xausdorf/payrelay/internal/usecase/generateqr"
	"github.com/Xausdorf/payrelay/internal/usecase/webhook"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	gateway      payment.Gateway
	exchange     exchange.Exchange
	webhookUC    *webhook.UseCase
	generateQRUC *generateqr.UseCase
	hotWallet    string
}

func NewHandler(
	gateway payment.Gateway,
	ex exchange.Exchange,
	webhookUC *webhook.UseCase,
	generateQRUC *generateqr.UseCase,
	hotWallet string,
) *Handler {
	return &Handler{
		gateway:      gateway,
		exchange:     ex,
		webhookUC:    webhookUC,
		generateQRUC: generateQRUC,
		hotWallet:    hotWallet,
	}
}

type CodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) HandleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req payment.Request
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.gateway.CreatePayment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (h *Handler) HandleCreatePaymentQR(w http.ResponseWriter, r *http.Request) {
	var req payment.Request
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.generateQRUC.Execute(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Payment-Code", result.Created.Code)
	w.Header().Set("X-Payment-Url", result.Created.PaymentURL)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.PNG)
}

func (h *Handler) HandleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Code == "" {
		writeError(w, r, apperror.Invalid("code", "is required"))
		return
	}

	verification, err := h.gateway.VerifyPayment(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

func (h *Handler) HandleCreatePayout(w http.ResponseWriter, r *http.Request) {
	var req payment.PayoutRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	payout, err := h.gateway.CreatePayout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.exchange.GetBalance(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *Handler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req exchange.OrderRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	order, err := h.exchange.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req exchange.WithdrawRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Address == "" {
		req.Address = h.hotWallet
	}

	out, err := h.exchange.Withdraw(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleWebhook accepts the gateway callback. Fields other than code are
// ignored so gateway payload additions do not break delivery.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.webhookUC.Execute(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.Replayed {
		w.Header().Set("X-Webhook-Replayed", "true")
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, true)
}

func decode(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &apperror.ValidationError{Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
		case errors.Is(err, io.EOF):
			return &apperror.ValidationError{Message: "request body is empty"}
		default:
			return &apperror.ValidationError{Message: "invalid json: " + err.Error()}
		}
	}
	return nil
}
