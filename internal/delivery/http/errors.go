package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Xausdorf/payrelay/internal/domain/apperror"
)

type ErrorResponse struct {
	Error    string `json:"error"`
	Upstream string `json:"upstream,omitempty"`
	Status   int    `json:"status,omitempty"`
	Message  string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err))
	} else {
		slog.WarnContext(r.Context(), "request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err))
	}
	writeJSON(w, status, resp)
}

func mapError(err error) (int, ErrorResponse) {
	var (
		authErr       *apperror.AuthError
		gatewayErr    *apperror.GatewayError
		exchangeErr   *apperror.ExchangeError
		validationErr *apperror.ValidationError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: validationErr.Error()}
	case errors.Is(err, apperror.ErrDeliveryInProgress), errors.Is(err, apperror.ErrNeedsReconciliation):
		return http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error()}
	case errors.As(err, &authErr):
		return http.StatusBadGateway, upstream("gateway", authErr.Status, err)
	case errors.As(err, &gatewayErr):
		return http.StatusBadGateway, upstream("gateway", gatewayErr.Status, err)
	case errors.As(err, &exchangeErr):
		return http.StatusBadGateway, upstream("exchange", exchangeErr.Status, err)
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: err.Error()}
	}
}

func upstream(name string, status int, err error) ErrorResponse {
	return ErrorResponse{Error: "upstream_error", Upstream: name, Status: status, Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
