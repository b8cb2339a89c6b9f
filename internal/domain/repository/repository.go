package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Xausdorf/payrelay/internal/domain/entity"
)

// DeliveryRepository deduplicates webhook deliveries by verification code.
type DeliveryRepository interface {
	// Claim registers code as in flight. When a record already exists it is
	// returned with claimed == false and nothing is written.
	Claim(ctx context.Context, code string) (existing *entity.Delivery, claimed bool, err error)
	Save(ctx context.Context, delivery *entity.Delivery) error
	Release(ctx context.Context, code string) error
}

// JournalRepository is the durable step log used for manual reconciliation.
type JournalRepository interface {
	Append(ctx context.Context, step *entity.Step) error
	Unpublished(ctx context.Context, limit int) ([]*entity.Step, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
}
