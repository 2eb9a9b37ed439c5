// Package bootstrap builds the storage, queue and provider dependencies shared by the API
// server and the command line tools.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/ArowuTest/bulkcomms-backend/internal/config"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories/memory"
	mongorepo "github.com/ArowuTest/bulkcomms-backend/internal/repositories/mongodb"
	"github.com/ArowuTest/bulkcomms-backend/pkg/mongodb"
	"github.com/sirupsen/logrus"
)

// Repositories groups every repository the services need
type Repositories struct {
	Campaigns repositories.CampaignRepository
	Batches   repositories.BatchRepository
	Messages  repositories.MessageRepository
	Tracking  repositories.TrackingRepository
	Templates repositories.TemplateRepository
	// Dedup is nil when no dedupe store is configured
	Dedup repositories.WebhookDedupRepository

	// Memory is set for the in-memory driver
	Memory *memory.Store
	// Ping checks the storage connection; nil for the in-memory driver
	Ping func(ctx context.Context) error

	close func(ctx context.Context) error
}

// Close releases the storage connection
func (r *Repositories) Close(ctx context.Context) error {
	if r.close == nil {
		return nil
	}
	return r.close(ctx)
}

// OpenStorage connects the configured storage driver
func OpenStorage(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Repositories, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("Using in-memory storage, nothing survives a restart")
		store := memory.NewStore()
		return &Repositories{
			Campaigns: store.Campaigns(),
			Batches:   store.Batches(),
			Messages:  store.Messages(),
			Tracking:  store.Tracking(),
			Templates: store.Templates(),
			Dedup:     store.Dedup(),
			Memory:    store,
		}, nil

	case "mongodb", "":
		client, err := mongodb.NewClient(ctx, cfg.MongoDB.URI, cfg.MongoDB.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDB.Database)
		if err := mongorepo.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to ensure indexes: %w", err)
		}
		log.WithField("database", cfg.MongoDB.Database).Info("Connected to MongoDB")
		return &Repositories{
			Campaigns: mongorepo.NewCampaignRepository(db),
			Batches:   mongorepo.NewBatchRepository(db),
			Messages:  mongorepo.NewMessageRepository(db),
			Tracking:  mongorepo.NewTrackingRepository(db),
			Templates: mongorepo.NewTemplateRepository(db),
			Ping:      client.Ping,
			close:     client.Disconnect,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
