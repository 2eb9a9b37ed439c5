package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/pkg/rabbitmq"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// errDeliveriesClosed means the broker closed the consumer channel
var errDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// RabbitQueue carries batch jobs over a durable RabbitMQ queue. Jobs a handler
// rejects are dead-lettered.
type RabbitQueue struct {
	mgr   *rabbitmq.Manager
	queue string
	log   logrus.FieldLogger
}

// NewRabbitQueue declares the queue topology and returns the transport
func NewRabbitQueue(mgr *rabbitmq.Manager, queueName, deadLetterQueue string, log logrus.FieldLogger) (*RabbitQueue, error) {
	if err := mgr.DeclareWorkQueue(queueName, deadLetterQueue); err != nil {
		return nil, err
	}
	return &RabbitQueue{mgr: mgr, queue: queueName, log: log}, nil
}

// Publish sends a persistent job message
func (q *RabbitQueue) Publish(ctx context.Context, job BatchJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ch, err := q.mgr.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	return ch.Publish(
		"",
		q.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.BatchID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Consume reads one delivery at a time and acks it once handler returns
func (q *RabbitQueue) Consume(ctx context.Context, handler Handler) error {
	ch, err := q.mgr.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(
		q.queue,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			q.handle(ctx, handler, d)
		}
	}
}

func (q *RabbitQueue) handle(ctx context.Context, handler Handler, d amqp.Delivery) {
	var job BatchJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.log.WithError(err).Error("invalid batch job payload, dead-lettering")
		_ = d.Nack(false, false)
		return
	}
	if err := handler(ctx, job); err != nil {
		q.log.WithError(err).WithField("batchId", job.BatchID).Error("batch job failed, dead-lettering")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Close releases the broker connection
func (q *RabbitQueue) Close() error {
	return q.mgr.Close()
}
