package entity

import (
	"errors"
	"time"
)

type DeliveryStatus string

const (
	DeliveryProcessing DeliveryStatus = "processing"
	DeliveryProcessed  DeliveryStatus = "processed"
	DeliveryFailed     DeliveryStatus = "failed"
)

var ErrDeliveryFinished = errors.New("delivery already finished")

// Delivery is the dedup record of one webhook verification code.
type Delivery struct {
	code         string
	status       DeliveryStatus
	failedStep   StepName
	responseBody []byte
	createdAt    time.Time
	updatedAt    time.Time
}

func NewDelivery(code string) *Delivery {
	now := time.Now().UTC()
	return &Delivery{
		code:      code,
		status:    DeliveryProcessing,
		createdAt: now,
		updatedAt: now,
	}
}

func ReconstructDelivery(
	code string,
	status DeliveryStatus,
	failedStep StepName,
	body []byte,
	createdAt, updatedAt time.Time,
) *Delivery {
	return &Delivery{
		code:         code,
		status:       status,
		failedStep:   failedStep,
		responseBody: body,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

func (d *Delivery) Code() string {
	return d.code
}

func (d *Delivery) Status() DeliveryStatus {
	return d.status
}

func (d *Delivery) FailedStep() StepName {
	return d.failedStep
}

func (d *Delivery) ResponseBody() []byte {
	return d.responseBody
}

func (d *Delivery) CreatedAt() time.Time {
	return d.createdAt
}

func (d *Delivery) UpdatedAt() time.Time {
	return d.updatedAt
}

// Finished reports whether the stored response can be replayed as is.
func (d *Delivery) Finished() bool {
	return d.status == DeliveryProcessed
}

func (d *Delivery) MarkProcessed(body []byte) error {
	return d.finish(DeliveryProcessed, "", body)
}

func (d *Delivery) MarkFailed(step StepName) error {
	return d.finish(DeliveryFailed, step, nil)
}

func (d *Delivery) finish(status DeliveryStatus, step StepName, body []byte) error {
	if d.status != DeliveryProcessing {
		return ErrDeliveryFinished
	}
	d.status = status
	d.failedStep = step
	d.responseBody = body
	d.updatedAt = time.Now().UTC()
	return nil
}
