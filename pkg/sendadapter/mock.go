package sendadapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SentMessage records a send accepted by a MockAdapter
type SentMessage struct {
	To                Recipient
	Payload           Payload
	ExternalMessageID string
}

type mockFailure struct {
	remaining int // -1 fails forever
	err       error
}

// MockAdapter accepts every send unless told to fail for a recipient
type MockAdapter struct {
	Name string

	mu       sync.Mutex
	delay    time.Duration
	failures map[string]*mockFailure
	sent     []SentMessage
	attempts map[string]int
	keys     map[string][]string
}

// NewMockAdapter creates a new MockAdapter
func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{
		Name:     name,
		failures: make(map[string]*mockFailure),
		attempts: make(map[string]int),
		keys:     make(map[string][]string),
	}
}

// FailFor makes every send to recipientID fail with err
func (m *MockAdapter) FailFor(recipientID string, err error) {
	m.FailTimes(recipientID, -1, err)
}

// FailTimes makes the next n sends to recipientID fail with err
func (m *MockAdapter) FailTimes(recipientID string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[recipientID] = &mockFailure{remaining: n, err: err}
}

// SetDelay makes every send take d, honouring context cancellation
func (m *MockAdapter) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Sent returns the accepted sends in order
func (m *MockAdapter) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Attempts returns how many times a recipient was tried
func (m *MockAdapter) Attempts(recipientID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[recipientID]
}

// AttemptKeys returns the idempotency key of every attempt for a recipient, in order
func (m *MockAdapter) AttemptKeys(recipientID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys[recipientID]...)
}

// Send simulates a provider call
func (m *MockAdapter) Send(ctx context.Context, to Recipient, p Payload) (Result, error) {
	m.mu.Lock()
	m.attempts[to.ID]++
	m.keys[to.ID] = append(m.keys[to.ID], p.IdempotencyKey)
	delay := m.delay
	var failErr error
	if f, ok := m.failures[to.ID]; ok && f.remaining != 0 {
		failErr = f.err
		if f.remaining > 0 {
			f.remaining--
		}
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if failErr != nil {
		return Result{}, failErr
	}

	id := fmt.Sprintf("%s-MOCK-MSG-%s", strings.ToUpper(m.Name), uuid.NewString())
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{To: to, Payload: p, ExternalMessageID: id})
	m.mu.Unlock()
	return Result{ExternalMessageID: id}, nil
}
