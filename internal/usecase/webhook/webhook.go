package webhook

//go:generate mockgen -destination=mocks/payment.go -package=mocks github.com/Xausdorf/payrelay/internal/domain/payment Gateway
//go:generate mockgen -destination=mocks/exchange.go -package=mocks github.com/Xausdorf/payrelay/internal/domain/exchange Exchange
//go:generate mockgen -destination=mocks/repository.go -package=mocks github.com/Xausdorf/payrelay/internal/domain/repository DeliveryRepository,JournalRepository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Xausdorf/payrelay/internal/domain/apperror"
	"github.com/Xausdorf/payrelay/internal/domain/entity"
	"github.com/Xausdorf/payrelay/internal/domain/exchange"
	"github.com/Xausdorf/payrelay/internal/domain/payment"
	"github.com/Xausdorf/payrelay/internal/domain/repository"
)

const (
	StatusProcessed = "processed"
	StatusRejected  = "rejected"

	meterName = "github.com/Xausdorf/payrelay/internal/usecase/webhook"

	// bookkeepingTimeout bounds store and journal writes, which outlive the
	// inbound request.
	bookkeepingTimeout = 5 * time.Second
)

type OrderOptions struct {
	Symbol string
	Type   exchange.OrderType
}

type Options struct {
	PayoutSheba string
	// RequireSuccessStatus gates the payout on the verified status matching
	// SuccessStatus. When false every verified payment is paid out.
	RequireSuccessStatus bool
	SuccessStatus        string
	// Order enables the conversion order after the payout.
	Order *OrderOptions
}

type Result struct {
	Status  string                `json:"status"`
	Payment *payment.Verification `json:"payment"`
	Payout  *payment.Payout       `json:"payout,omitempty"`
	Order   *exchange.Order       `json:"order,omitempty"`

	// Replayed is set when the response was served from the delivery store.
	Replayed bool `json:"-"`
}

type UseCase struct {
	gateway    payment.Gateway
	exchange   exchange.Exchange
	deliveries repository.DeliveryRepository
	journal    repository.JournalRepository
	opts       Options
	outcomes   metric.Int64Counter
}

// NewUseCase wires the chain. deliveries and journal may be nil: without a
// delivery store replays re-run the whole chain, without a journal step
// outcomes are only logged.
func NewUseCase(
	gateway payment.Gateway,
	ex exchange.Exchange,
	deliveries repository.DeliveryRepository,
	journal repository.JournalRepository,
	opts Options,
) *UseCase {
	if opts.SuccessStatus == "" {
		opts.SuccessStatus = "success"
	}
	outcomes, err := otel.Meter(meterName).Int64Counter("payrelay.webhook.deliveries",
		metric.WithDescription("Webhook deliveries by outcome"))
	if err != nil {
		slog.Warn("webhook outcome counter unavailable", slog.Any("error", err))
	}
	return &UseCase{
		gateway:    gateway,
		exchange:   ex,
		deliveries: deliveries,
		journal:    journal,
		opts:       opts,
		outcomes:   outcomes,
	}
}

// Execute runs verify -> payout -> (order) for one verification code. Nothing
// is retried and nothing completed is undone when a later step fails.
func (uc *UseCase) Execute(ctx context.Context, code string) (*Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.Invalid("code", "is required")
	}

	delivery, replay, err := uc.claim(ctx, code)
	if err != nil {
		uc.record(ctx, "error")
		return nil, err
	}
	if replay != nil {
		slog.InfoContext(ctx, "webhook delivery replayed", slog.String("code", code))
		uc.record(ctx, "replayed")
		return replay, nil
	}

	verification, err := uc.gateway.VerifyPayment(ctx, code)
	if err != nil {
		uc.logStep(ctx, code, entity.StepVerify, entity.OutcomeFailed, failureDetail(err))
		uc.release(ctx, code)
		uc.record(ctx, "failed")
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	if reason := uc.rejection(verification); reason != "" {
		uc.logStep(ctx, code, entity.StepVerify, entity.OutcomeRejected, detail(map[string]any{
			"status": verification.Status,
			"amount": verification.Amount,
			"reason": reason,
		}))
		uc.release(ctx, code)
		uc.record(ctx, StatusRejected)
		return &Result{Status: StatusRejected, Payment: verification}, nil
	}
	uc.logStep(ctx, code, entity.StepVerify, entity.OutcomeSucceeded, detail(verification))

	payout, err := uc.gateway.CreatePayout(ctx, payment.PayoutRequest{
		Sheba:       uc.opts.PayoutSheba,
		Amount:      verification.Amount,
		Description: "Webhook payout for " + code,
	})
	if err != nil {
		uc.logStep(ctx, code, entity.StepPayout, entity.OutcomeFailed, failureDetail(err))
		uc.fail(ctx, delivery, entity.StepPayout)
		return nil, fmt.Errorf("create payout: %w", err)
	}
	uc.logStep(ctx, code, entity.StepPayout, entity.OutcomeSucceeded, detail(payout))

	result := &Result{Status: StatusProcessed, Payment: verification, Payout: payout}

	if uc.opts.Order != nil {
		order, err := uc.exchange.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol: uc.opts.Order.Symbol,
			Type:   uc.opts.Order.Type,
			Amount: verification.Amount,
		})
		if err != nil {
			uc.logStep(ctx, code, entity.StepOrder, entity.OutcomeFailed, failureDetail(err))
			uc.fail(ctx, delivery, entity.StepOrder)
			return nil, fmt.Errorf("place order: %w", err)
		}
		uc.logStep(ctx, code, entity.StepOrder, entity.OutcomeSucceeded, detail(order))
		result.Order = order
	}

	uc.complete(ctx, delivery, result)
	uc.record(ctx, StatusProcessed)
	return result, nil
}

func (uc *UseCase) rejection(v *payment.Verification) string {
	if uc.opts.RequireSuccessStatus && !strings.EqualFold(v.Status, uc.opts.SuccessStatus) {
		return "status is not " + uc.opts.SuccessStatus
	}
	if v.Amount <= 0 {
		return "verified amount is not positive"
	}
	return ""
}

func (uc *UseCase) claim(ctx context.Context, code string) (*entity.Delivery, *Result, error) {
	if uc.deliveries == nil {
		return entity.NewDelivery(code), nil, nil
	}

	existing, claimed, err := uc.deliveries.Claim(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("claim delivery: %w", err)
	}
	if claimed {
		return entity.NewDelivery(code), nil, nil
	}

	switch {
	case existing.Finished():
		replay, err := parseCache(existing.ResponseBody())
		if err != nil {
			return nil, nil, err
		}
		return nil, replay, nil
	case existing.Status() == entity.DeliveryProcessing:
		return nil, nil, apperror.ErrDeliveryInProgress
	default:
		return nil, nil, fmt.Errorf("%w (failed at %s)", apperror.ErrNeedsReconciliation, existing.FailedStep())
	}
}

// detached keeps ctx values for tracing but drops its cancellation, so a
// disconnected sender or an expired request deadline cannot leave a claim
// stuck in processing.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

func (uc *UseCase) release(ctx context.Context, code string) {
	if uc.deliveries == nil {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := uc.deliveries.Release(ctx, code); err != nil {
		slog.ErrorContext(ctx, "release delivery failed", slog.String("code", code), slog.Any("error", err))
	}
}

func (uc *UseCase) fail(ctx context.Context, delivery *entity.Delivery, step entity.StepName) {
	uc.record(ctx, "failed")
	if err := delivery.MarkFailed(step); err != nil {
		slog.ErrorContext(ctx, "mark delivery failed", slog.String("code", delivery.Code()), slog.Any("error", err))
		return
	}
	uc.save(ctx, delivery)
}

func (uc *UseCase) complete(ctx context.Context, delivery *entity.Delivery, result *Result) {
	body, err := json.Marshal(result)
	if err != nil {
		slog.ErrorContext(ctx, "encode delivery response", slog.String("code", delivery.Code()), slog.Any("error", err))
		return
	}
	if err := delivery.MarkProcessed(body); err != nil {
		slog.ErrorContext(ctx, "mark delivery processed", slog.String("code", delivery.Code()), slog.Any("error", err))
		return
	}
	uc.save(ctx, delivery)
}

// save runs after an upstream side effect happened, so a store error is
// logged rather than returned.
func (uc *UseCase) save(ctx context.Context, delivery *entity.Delivery) {
	if uc.deliveries == nil {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := uc.deliveries.Save(ctx, delivery); err != nil {
		slog.ErrorContext(ctx, "save delivery failed",
			slog.String("code", delivery.Code()),
			slog.String("status", string(delivery.Status())),
			slog.Any("error", err))
	}
}

func (uc *UseCase) logStep(ctx context.Context, code string, name entity.StepName, outcome entity.StepOutcome, detail []byte) {
	attrs := []any{
		slog.String("code", code),
		slog.String("step", string(name)),
		slog.String("outcome", string(outcome)),
	}
	if outcome == entity.OutcomeFailed {
		slog.ErrorContext(ctx, "webhook step failed", append(attrs, slog.String("detail", string(detail)))...)
	} else {
		slog.InfoContext(ctx, "webhook step completed", attrs...)
	}

	if uc.journal == nil {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := uc.journal.Append(ctx, entity.NewStep(code, name, outcome, detail)); err != nil {
		slog.ErrorContext(ctx, "journal append failed", append(attrs, slog.Any("error", err))...)
	}
}

func (uc *UseCase) record(ctx context.Context, outcome string) {
	if uc.outcomes == nil {
		return
	}
	uc.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", outcome)))
}

func parseCache(body []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode stored delivery response: %w", err)
	}
	result.Replayed = true
	return &result, nil
}

func detail(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func failureDetail(err error) []byte {
	return detail(map[string]string{"error": err.Error()})
}
