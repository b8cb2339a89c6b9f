package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Xausdorf/payrelay/internal/domain/entity"
	"github.com/Xausdorf/payrelay/internal/domain/repository"
)

// DeliveryRepo keeps delivery records in process memory. Records expire ttl
// after their last write; expired records are swept during Claim.
type DeliveryRepo struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	records   map[string]deliveryEntry
	lastSweep time.Time
}

type deliveryEntry struct {
	delivery  *entity.Delivery
	expiresAt time.Time
}

// NewDeliveryRepo returns a store whose records live for ttl. A non-positive
// ttl keeps records for the life of the process.
func NewDeliveryRepo(ttl time.Duration) *DeliveryRepo {
	return &DeliveryRepo{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]deliveryEntry),
	}
}

var _ repository.DeliveryRepository = (*DeliveryRepo)(nil)

func (r *DeliveryRepo) Claim(_ context.Context, code string) (*entity.Delivery, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	if entry, ok := r.records[code]; ok && !r.expired(entry, now) {
		return copyDelivery(entry.delivery), false, nil
	}
	r.put(entity.NewDelivery(code), now)
	return nil, true, nil
}

func (r *DeliveryRepo) Save(_ context.Context, delivery *entity.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.put(copyDelivery(delivery), r.now())
	return nil
}

func (r *DeliveryRepo) Release(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, code)
	return nil
}

// Len reports how many records are held, expired ones included until swept.
func (r *DeliveryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *DeliveryRepo) put(d *entity.Delivery, now time.Time) {
	entry := deliveryEntry{delivery: d}
	if r.ttl > 0 {
		entry.expiresAt = now.Add(r.ttl)
	}
	r.records[d.Code()] = entry
}

func (r *DeliveryRepo) expired(entry deliveryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

// sweep drops expired records, at most once per ttl.
func (r *DeliveryRepo) sweep(now time.Time) {
	if r.ttl <= 0 || now.Sub(r.lastSweep) < r.ttl {
		return
	}
	r.lastSweep = now
	for code, entry := range r.records {
		if r.expired(entry, now) {
			delete(r.records, code)
		}
	}
}

func copyDelivery(d *entity.Delivery) *entity.Delivery {
	return entity.ReconstructDelivery(
		d.Code(), d.Status(), d.FailedStep(),
		append([]byte(nil), d.ResponseBody()...),
		d.CreatedAt(), d.UpdatedAt(),
	)
}

// JournalRepo holds steps in memory until they are published. Published
// steps are dropped, so it only stays bounded while something drains it.
type JournalRepo struct {
	mu    sync.Mutex
	steps []*entity.Step
}

func NewJournalRepo() *JournalRepo {
	return &JournalRepo{}
}

var _ repository.JournalRepository = (*JournalRepo)(nil)

func (r *JournalRepo) Append(_ context.Context, step *entity.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps = append(r.steps, step)
	return nil
}

func (r *JournalRepo) Unpublished(_ context.Context, limit int) ([]*entity.Step, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.steps)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]*entity.Step(nil), r.steps[:n]...), nil
}

func (r *JournalRepo) MarkPublished(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.steps {
		if s.ID() == id {
			r.steps = slices.Delete(r.steps, i, i+1)
			return nil
		}
	}
	return nil
}

// Steps returns the pending steps for code in append order.
func (r *JournalRepo) Steps(code string) []*entity.Step {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Step
	for _, s := range r.steps {
		if s.Code() == code {
			out = append(out, s)
		}
	}
	return out
}

// Len reports how many steps are pending.
func (r *JournalRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}
