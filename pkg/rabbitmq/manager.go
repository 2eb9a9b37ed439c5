package rabbitmq

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Manager maintains a single AMQP connection, redialling when it drops
type Manager struct {
	url    string
	conn   *amqp.Connection
	logger logrus.FieldLogger
	mu     sync.Mutex
}

// NewManager dials the broker
func NewManager(url string, logger logrus.FieldLogger) (*Manager, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &Manager{
		url:    url,
		conn:   conn,
		logger: logger,
	}, nil
}

// Channel opens a channel, reconnecting first if the connection was lost
func (m *Manager) Channel() (*amqp.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.conn.IsClosed() {
		m.logger.Warn("rabbitmq connection lost, redialling")
		conn, err := amqp.Dial(m.url)
		if err != nil {
			return nil, fmt.Errorf("redial: %w", err)
		}
		m.conn = conn
	}
	return m.conn.Channel()
}

// Close closes the connection
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// DeclareWorkQueue ensures a durable queue exists on the default exchange, dead-lettering
// rejected deliveries to dlq when one is given.
func (m *Manager) DeclareWorkQueue(queue, dlq string) error {
	ch, err := m.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	args := amqp.Table{}
	if dlq != "" {
		if _, err := ch.QueueDeclare(
			dlq,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("declare dlq: %w", err)
		}
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = dlq
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		args,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}
