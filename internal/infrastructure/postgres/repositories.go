package postgres

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Xausdorf/payrelay/internal/domain/entity"
	"github.com/Xausdorf/payrelay/internal/domain/repository"
)

type DeliveryRepo struct {
	pool       *pgxpool.Pool
	staleAfter time.Duration
}

// NewDeliveryRepo returns a delivery store. A claim still processing
// staleAfter past its last write is taken over by the next Claim; processed
// and failed rows never expire. A non-positive staleAfter disables takeover.
func NewDeliveryRepo(pool *pgxpool.Pool, staleAfter time.Duration) *DeliveryRepo {
	return &DeliveryRepo{pool: pool, staleAfter: staleAfter}
}

var _ repository.DeliveryRepository = (*DeliveryRepo)(nil)

// Claim serializes concurrent deliveries of one code on an advisory lock and
// re-reads the row under it.
func (r *DeliveryRepo) Claim(ctx context.Context, code string) (existing *entity.Delivery, claimed bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(code)); err != nil {
		return nil, false, err
	}

	existing, err = findDelivery(ctx, tx, code)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && !r.stale(existing) {
		return existing, false, tx.Commit(ctx)
	}
	if existing != nil {
		slog.WarnContext(ctx, "taking over stale webhook delivery",
			slog.String("code", code),
			slog.Time("updated_at", existing.UpdatedAt()))
	}

	d := entity.NewDelivery(code)
	_, err = tx.Exec(ctx,
		`INSERT INTO webhook_deliveries (code, status, failed_step, response_body, created_at, updated_at)
		 VALUES ($1, $2, '', NULL, $3, $4)
		 ON CONFLICT (code) DO UPDATE
		 SET status = EXCLUDED.status,
		     failed_step = '',
		     response_body = NULL,
		     created_at = EXCLUDED.created_at,
		     updated_at = EXCLUDED.updated_at`,
		d.Code(), string(d.Status()), d.CreatedAt(), d.UpdatedAt(),
	)
	if err != nil {
		return nil, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

func (r *DeliveryRepo) stale(d *entity.Delivery) bool {
	return r.staleAfter > 0 &&
		d.Status() == entity.DeliveryProcessing &&
		time.Since(d.UpdatedAt()) >= r.staleAfter
}

func (r *DeliveryRepo) Save(ctx context.Context, d *entity.Delivery) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_deliveries (code, status, failed_step, response_body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (code) DO UPDATE
		 SET status = EXCLUDED.status,
		     failed_step = EXCLUDED.failed_step,
		     response_body = EXCLUDED.response_body,
		     updated_at = EXCLUDED.updated_at`,
		d.Code(), string(d.Status()), string(d.FailedStep()), nullJSON(d.ResponseBody()), d.CreatedAt(), d.UpdatedAt(),
	)
	return err
}

func (r *DeliveryRepo) Release(ctx context.Context, code string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM webhook_deliveries WHERE code = $1`, code)
	return err
}

func findDelivery(ctx context.Context, tx pgx.Tx, code string) (*entity.Delivery, error) {
	var (
		status, failedStep   string
		body                 []byte
		createdAt, updatedAt time.Time
	)
	err := tx.QueryRow(ctx,
		`SELECT status, failed_step, response_body, created_at, updated_at
		 FROM webhook_deliveries WHERE code = $1`,
		code,
	).Scan(&status, &failedStep, &body, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity.ReconstructDelivery(
		code, entity.DeliveryStatus(status), entity.StepName(failedStep), body, createdAt, updatedAt,
	), nil
}

type JournalRepo struct {
	pool *pgxpool.Pool
}

func NewJournalRepo(pool *pgxpool.Pool) *JournalRepo {
	return &JournalRepo{pool: pool}
}

var _ repository.JournalRepository = (*JournalRepo)(nil)

func (r *JournalRepo) Append(ctx context.Context, s *entity.Step) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pipeline_steps (id, code, step, outcome, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID(), s.Code(), string(s.Name()), string(s.Outcome()), nullJSON(s.Detail()), s.CreatedAt(),
	)
	return err
}

func (r *JournalRepo) Unpublished(ctx context.Context, limit int) ([]*entity.Step, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, step, outcome, detail, created_at
		 FROM pipeline_steps
		 WHERE published_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*entity.Step
	for rows.Next() {
		var (
			id                  uuid.UUID
			code, step, outcome string
			detail              []byte
			createdAt           time.Time
		)
		if err := rows.Scan(&id, &code, &step, &outcome, &detail, &createdAt); err != nil {
			return nil, err
		}
		steps = append(steps, entity.ReconstructStep(
			id, code, entity.StepName(step), entity.StepOutcome(outcome), detail, createdAt, nil,
		))
	}
	return steps, rows.Err()
}

func (r *JournalRepo) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE pipeline_steps SET published_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return err
}

func lockKey(code string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(code))
	return int64(h.Sum64())
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
