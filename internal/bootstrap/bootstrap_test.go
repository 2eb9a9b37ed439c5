package bootstrap

import (
	"context"
	"testing"

	"github.com/ArowuTest/bulkcomms-backend/internal/config"
	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/queue"
	"github.com/ArowuTest/bulkcomms-backend/pkg/logger"
	"github.com/ArowuTest/bulkcomms-backend/pkg/sendadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStorageMemory(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: "memory"}}
	repos, err := OpenStorage(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, repos.Memory)
	assert.NotNil(t, repos.Dedup)
	assert.Nil(t, repos.Ping)
	assert.NoError(t, repos.Close(context.Background()))

	cfg.Storage.Driver = "cassandra"
	_, err = OpenStorage(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}

func TestOpenQueue(t *testing.T) {
	cfg := &config.Config{Queue: config.QueueConfig{Driver: "memory", BufferSize: 4}}
	q, err := OpenQueue(cfg, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &queue.InMemoryQueue{}, q)

	cfg.Queue.Driver = "kafka"
	_, err = OpenQueue(cfg, logger.Discard())
	assert.Error(t, err)
}

func TestBuildAdaptersWrapsEveryChannel(t *testing.T) {
	cfg := &config.Config{
		Email:    config.EmailConfig{Mock: true},
		WhatsApp: config.WhatsAppConfig{Mock: true},
		Dispatch: config.DispatchConfig{BreakerFailures: 2},
	}
	adapters := BuildAdapters(cfg, logger.Discard())
	for _, ch := range []models.Channel{models.ChannelEmail, models.ChannelWhatsApp} {
		a, ok := adapters.For(string(ch))
		require.True(t, ok, ch)
		assert.IsType(t, &sendadapter.Breaker{}, a)

		res, err := a.Send(context.Background(), sendadapter.Recipient{ID: "r1"}, sendadapter.Payload{})
		require.NoError(t, err)
		assert.NotEmpty(t, res.ExternalMessageID)
	}
}
