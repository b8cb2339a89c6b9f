package entity

import (
	"time"

	"github.com/google/uuid"
)

type StepName string

const (
	StepVerify StepName = "verify"
	StepPayout StepName = "payout"
	StepOrder  StepName = "order"
)

type StepOutcome string

const (
	OutcomeSucceeded StepOutcome = "succeeded"
	OutcomeFailed    StepOutcome = "failed"
	OutcomeRejected  StepOutcome = "rejected"
)

// Step is one journal entry: the outcome of a single upstream call made
// while handling a webhook delivery.
type Step struct {
	id          uuid.UUID
	code        string
	name        StepName
	outcome     StepOutcome
	detail      []byte
	createdAt   time.Time
	publishedAt *time.Time
}

func NewStep(code string, name StepName, outcome StepOutcome, detail []byte) *Step {
	return &Step{
		id:        uuid.New(),
		code:      code,
		name:      name,
		outcome:   outcome,
		detail:    detail,
		createdAt: time.Now().UTC(),
	}
}

func ReconstructStep(
	id uuid.UUID,
	code string,
	name StepName,
	outcome StepOutcome,
	detail []byte,
	createdAt time.Time,
	publishedAt *time.Time,
) *Step {
	return &Step{
		id:          id,
		code:        code,
		name:        name,
		outcome:     outcome,
		detail:      detail,
		createdAt:   createdAt,
		publishedAt: publishedAt,
	}
}

func (s *Step) ID() uuid.UUID {
	return s.id
}

func (s *Step) Code() string {
	return s.code
}

func (s *Step) Name() StepName {
	return s.name
}

func (s *Step) Outcome() StepOutcome {
	return s.outcome
}

func (s *Step) Detail() []byte {
	return s.detail
}

func (s *Step) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Step) PublishedAt() *time.Time {
	return s.publishedAt
}
