// Package queue carries batch jobs from the batcher to the dispatcher workers.
package queue

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned when an in-memory queue cannot take more jobs
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("queue closed")
)

// BatchJob asks a worker to process one campaign batch
type BatchJob struct {
	CampaignID  string `json:"campaignId"`
	BatchID     string `json:"batchId"`
	BatchNumber int    `json:"batchNumber"`
}

// Handler processes one job. A returned error means the job was not handled.
type Handler func(ctx context.Context, job BatchJob) error

// Queue is a batch job transport
type Queue interface {
	Publish(ctx context.Context, job BatchJob) error
	// Consume feeds jobs to handler until ctx is done or the transport fails
	Consume(ctx context.Context, handler Handler) error
	Close() error
}
