// Package memory holds in-process implementations of the repository interfaces.
// They back the "memory" storage driver and the service tests, and follow the same
// uniqueness and atomicity rules as the MongoDB repositories.
package memory

import (
	"sync"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is a single mutex-guarded dataset shared by all memory repositories
type Store struct {
	mu sync.Mutex

	campaigns map[primitive.ObjectID]*models.Campaign
	batches   map[primitive.ObjectID]*models.CampaignBatch
	messages  map[primitive.ObjectID]*models.Message
	byRecip   map[string]primitive.ObjectID
	byExtID   map[string]primitive.ObjectID
	events    []*models.TrackingEvent
	firsts    map[string]struct{}
	templates map[string]*models.WhatsAppTemplate
	seen      map[string]time.Time

	failures map[string]*injectedFailure
}

type injectedFailure struct {
	err       error
	remaining int // -1 fails until cleared
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		campaigns: make(map[primitive.ObjectID]*models.Campaign),
		batches:   make(map[primitive.ObjectID]*models.CampaignBatch),
		messages:  make(map[primitive.ObjectID]*models.Message),
		byRecip:   make(map[string]primitive.ObjectID),
		byExtID:   make(map[string]primitive.ObjectID),
		firsts:    make(map[string]struct{}),
		templates: make(map[string]*models.WhatsAppTemplate),
		seen:      make(map[string]time.Time),
		failures:  make(map[string]*injectedFailure),
	}
}

// Operation names accepted by FailOn
const (
	OpCampaignCreate     = "campaigns.Create"
	OpCampaignIncrement  = "campaigns.IncrementCounters"
	OpBatchCreateMany    = "batches.CreateMany"
	OpBatchIncrement     = "batches.IncrementProgress"
	OpMessageInsertMany  = "messages.InsertMany"
	OpMessageUpdate      = "messages.UpdateByRecipient"
	OpMessageTransition  = "messages.TransitionByExternalID"
	OpMessageRestore     = "messages.Restore"
	OpTrackingAppend     = "tracking.Append"
	OpTemplateFindByName = "templates.FindByName"
	OpDedupFirstSeen     = "dedup.FirstSeen"
)

// FailOn makes the named operation return err until cleared with a nil err
func (s *Store) FailOn(op string, err error) {
	s.FailTimes(op, -1, err)
}

// FailTimes makes the next n calls of the named operation return err
func (s *Store) FailTimes(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil || n == 0 {
		delete(s.failures, op)
		return
	}
	s.failures[op] = &injectedFailure{err: err, remaining: n}
}

// failure must be called with mu held
func (s *Store) failure(op string) error {
	f, ok := s.failures[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.failures, op)
		}
	}
	return f.err
}

// Campaigns returns the campaign repository view of the store
func (s *Store) Campaigns() repositories.CampaignRepository { return &CampaignRepository{s: s} }

// Batches returns the batch repository view of the store
func (s *Store) Batches() repositories.BatchRepository { return &BatchRepository{s: s} }

// Messages returns the message ledger view of the store
func (s *Store) Messages() repositories.MessageRepository { return &MessageRepository{s: s} }

// Tracking returns the tracking repository view of the store
func (s *Store) Tracking() repositories.TrackingRepository { return &TrackingRepository{s: s} }

// Templates returns the template repository view of the store
func (s *Store) Templates() *TemplateRepository { return &TemplateRepository{s: s} }

// Dedup returns the webhook dedupe view of the store
func (s *Store) Dedup() repositories.WebhookDedupRepository { return &DedupRepository{s: s} }

func recipientKey(campaignID primitive.ObjectID, recipientID string) string {
	return campaignID.Hex() + "|" + recipientID
}

func pageBounds(total, page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}
