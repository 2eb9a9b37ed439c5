package bootstrap

import (
	"fmt"

	"github.com/ArowuTest/bulkcomms-backend/internal/config"
	"github.com/ArowuTest/bulkcomms-backend/internal/queue"
	"github.com/ArowuTest/bulkcomms-backend/pkg/rabbitmq"
	"github.com/sirupsen/logrus"
)

// OpenQueue creates the configured batch job transport
func OpenQueue(cfg *config.Config, log logrus.FieldLogger) (queue.Queue, error) {
	switch cfg.Queue.Driver {
	case "memory", "":
		return queue.NewInMemoryQueue(cfg.Queue.BufferSize, cfg.Dispatch.RetryBackoff, log.WithField("queue", "memory")), nil

	case "rabbitmq":
		mgr, err := rabbitmq.NewManager(cfg.RabbitMQ.URL, log.WithField("queue", "rabbitmq"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		q, err := queue.NewRabbitQueue(mgr, cfg.RabbitMQ.BatchQueue, cfg.RabbitMQ.DeadLetterQueue, log.WithField("queue", "rabbitmq"))
		if err != nil {
			_ = mgr.Close()
			return nil, fmt.Errorf("failed to declare batch queue: %w", err)
		}
		return q, nil

	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}
