package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Xausdorf/payrelay/internal/domain/entity"
	"github.com/Xausdorf/payrelay/internal/domain/repository"
)

const DefaultTTL = 7 * 24 * time.Hour

type DeliveryRepo struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeliveryRepo(client *redis.Client, ttl time.Duration) *DeliveryRepo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DeliveryRepo{client: client, ttl: ttl}
}

var _ repository.DeliveryRepository = (*DeliveryRepo)(nil)

type record struct {
	Status     entity.DeliveryStatus `json:"status"`
	FailedStep entity.StepName       `json:"failed_step,omitempty"`
	Body       json.RawMessage       `json:"body,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Claim writes a processing record with SET NX. When the key exists the
// stored record is returned instead.
func (r *DeliveryRepo) Claim(ctx context.Context, code string) (*entity.Delivery, bool, error) {
	data, err := encode(entity.NewDelivery(code))
	if err != nil {
		return nil, false, err
	}

	ok, err := r.client.SetNX(ctx, deliveryKey(code), data, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	existing, err := r.get(ctx, code)
	if errors.Is(err, redis.Nil) {
		// released between SETNX and GET
		return r.Claim(ctx, code)
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *DeliveryRepo) Save(ctx context.Context, delivery *entity.Delivery) error {
	data, err := encode(delivery)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, deliveryKey(delivery.Code()), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) Release(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, deliveryKey(code)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *DeliveryRepo) get(ctx context.Context, code string) (*entity.Delivery, error) {
	data, err := r.client.Get(ctx, deliveryKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal delivery failed: %w", err)
	}
	return entity.ReconstructDelivery(code, rec.Status, rec.FailedStep, rec.Body, rec.CreatedAt, rec.UpdatedAt), nil
}

func encode(d *entity.Delivery) ([]byte, error) {
	data, err := json.Marshal(record{
		Status:     d.Status(),
		FailedStep: d.FailedStep(),
		Body:       d.ResponseBody(),
		CreatedAt:  d.CreatedAt(),
		UpdatedAt:  d.UpdatedAt(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal delivery failed: %w", err)
	}
	return data, nil
}

func deliveryKey(code string) string {
	return fmt.Sprintf("webhook:delivery:%s", code)
}
