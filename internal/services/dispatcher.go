package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/queue"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"github.com/sirupsen/logrus"
)

// DispatcherOptions configure the worker pool
type DispatcherOptions struct {
	Workers         int
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	// SweepInterval of 0 disables the stale batch sweeper
	SweepInterval time.Duration
	SweepAfter    time.Duration
	SweepLimit    int
}

// Dispatcher runs supervised workers that consume batch jobs, plus a sweeper that re-queues
// batches left pending too long
type Dispatcher struct {
	queue     queue.Queue
	processor BatchProcessor
	batches   repositories.BatchRepository
	opts      DispatcherOptions
	log       logrus.FieldLogger

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  sync.WaitGroup
	inflight sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(q queue.Queue, processor BatchProcessor, batches repositories.BatchRepository, opts DispatcherOptions, log logrus.FieldLogger) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = time.Second
	}
	if opts.MaxRestartDelay < opts.RestartDelay {
		opts.MaxRestartDelay = opts.RestartDelay
	}
	if opts.SweepLimit <= 0 {
		opts.SweepLimit = 100
	}
	return &Dispatcher{
		queue:     q,
		processor: processor,
		batches:   batches,
		opts:      opts,
		log:       log,
	}
}

// Start launches the workers and the sweeper. They stop when ctx is cancelled or on Shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)

	for i := 1; i <= d.opts.Workers; i++ {
		d.running.Add(1)
		go d.supervise(ctx, i)
	}
	if d.opts.SweepInterval > 0 {
		d.running.Add(1)
		go d.sweep(ctx)
	}
	d.log.WithField("workers", d.opts.Workers).Info("Batch dispatcher started")
}

// Shutdown stops taking new jobs and waits up to timeout for in-flight batches to finish
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		d.running.Wait()
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("Batch dispatcher stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("dispatcher shutdown timed out after %s", timeout)
	}
}

// supervise keeps one consumer alive, restarting it with a doubling delay after a crash
func (d *Dispatcher) supervise(ctx context.Context, worker int) {
	defer d.running.Done()
	logger := d.log.WithField("worker", worker)
	delay := d.opts.RestartDelay

	for {
		err := d.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, queue.ErrClosed) {
			logger.Info("Batch queue closed, worker exiting")
			return
		}
		logger.WithError(err).WithField("restartIn", delay.String()).Error("Batch worker stopped, restarting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > d.opts.MaxRestartDelay {
			delay = d.opts.MaxRestartDelay
		}
	}
}

// consume runs the queue consumer, turning a panic into an error
func (d *Dispatcher) consume(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.queue.Consume(ctx, d.handle)
}

// handle processes one job. Batches are processed to completion even during shutdown.
func (d *Dispatcher) handle(ctx context.Context, job queue.BatchJob) error {
	d.inflight.Add(1)
	defer d.inflight.Done()

	logger := d.log.WithFields(logrus.Fields{"campaignId": job.CampaignID, "batchId": job.BatchID})
	batchID, err := models.ParseEntityID(job.BatchID)
	if err != nil {
		logger.WithError(err).Error("Dropping batch job with malformed id")
		return nil
	}

	result, err := d.processor.Process(context.WithoutCancel(ctx), batchID)
	switch {
	case err == nil:
		logger.WithFields(logrus.Fields{
			"status":  result.Status,
			"success": result.Success,
			"failed":  result.Failed,
		}).Debug("Batch job done")
		return nil
	case errors.Is(err, ErrBatchNotPending):
		logger.Debug("Batch already claimed, skipping")
		return nil
	case errors.Is(err, ErrCampaignPaused):
		logger.Debug("Campaign paused, batch left pending")
		return nil
	case errors.Is(err, ErrCampaignNotFound), errors.Is(err, repositories.ErrNotFound):
		logger.WithError(err).Warn("Dropping batch job for missing data")
		return nil
	default:
		return err
	}
}

// sweep periodically re-queues batches that stayed pending longer than SweepAfter
func (d *Dispatcher) sweep(ctx context.Context) {
	defer d.running.Done()
	ticker := time.NewTicker(d.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.SweepOnce(ctx)
		}
	}
}

// SweepOnce re-queues stale pending batches and returns how many were queued
func (d *Dispatcher) SweepOnce(ctx context.Context) int {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("Panic while sweeping pending batches")
		}
	}()

	stale, err := d.batches.FindPendingBefore(ctx, time.Now().Add(-d.opts.SweepAfter), d.opts.SweepLimit)
	if err != nil {
		d.log.WithError(err).Error("Failed to load stale pending batches")
		return 0
	}

	queued := 0
	for _, b := range stale {
		job := queue.BatchJob{CampaignID: b.CampaignID.Hex(), BatchID: b.ID.Hex(), BatchNumber: b.BatchNumber}
		if err := d.queue.Publish(ctx, job); err != nil {
			d.log.WithError(err).WithField("batchId", job.BatchID).Warn("Failed to re-queue stale batch")
			continue
		}
		queued++
	}
	if queued > 0 {
		d.log.WithField("batches", queued).Info("Re-queued stale pending batches")
	}
	return queued
}
