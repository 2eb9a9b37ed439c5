package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CampaignRepository is the in-memory repositories.CampaignRepository
type CampaignRepository struct {
	s *Store
}

// Create creates a new campaign
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpCampaignCreate); err != nil {
		return err
	}
	if campaign.ID.IsZero() {
		campaign.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = now
	}
	campaign.UpdatedAt = now
	c := *campaign
	r.s.campaigns[c.ID] = &c
	return nil
}

// FindByID finds a campaign by ID
func (r *CampaignRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *c
	return &out, nil
}

// FindAll finds campaigns with pagination, newest first
func (r *CampaignRepository) FindAll(ctx context.Context, page, limit int) ([]models.Campaign, error) {
	all, _ := r.ListAll(ctx)
	start, end := pageBounds(len(all), page, limit)
	return all[start:end], nil
}

// ListAll returns every campaign, newest first
func (r *CampaignRepository) ListAll(ctx context.Context) ([]models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Campaign, 0, len(r.s.campaigns))
	for _, c := range r.s.campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Count counts all campaigns
func (r *CampaignRepository) Count(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.campaigns)), nil
}

// MarkQueued stores batching totals and moves a draft campaign to queued
func (r *CampaignRepository) MarkQueued(ctx context.Context, id primitive.ObjectID, totalRecipients, totalBatches int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok || c.Status != models.CampaignStatusDraft {
		return repositories.ErrNotFound
	}
	c.Status = models.CampaignStatusQueued
	c.TotalRecipients = totalRecipients
	c.TotalBatches = totalBatches
	c.CurrentBatch = 0
	c.UpdatedAt = time.Now()
	return nil
}

// TransitionStatus changes the status only if the current one is in from
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from []models.CampaignStatus, to models.CampaignStatus, errorMessage string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if c.Status == f {
			if c.Status == to {
				return false, nil
			}
			c.Status = to
			if errorMessage != "" {
				c.ErrorMessage = errorMessage
			}
			c.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

// IncrementCounters applies delta under the store lock
func (r *CampaignRepository) IncrementCounters(ctx context.Context, id primitive.ObjectID, delta models.CounterDelta) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpCampaignIncrement); err != nil {
		return err
	}
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil
	}
	c.SentCount += delta.Sent
	c.DeliveredCount += delta.Delivered
	c.FailedCount += delta.Failed
	c.OpensCount += delta.Opens
	c.ClicksCount += delta.Clicks
	c.UpdatedAt = time.Now()
	return nil
}

// AdvanceBatch increments currentBatch and returns the updated campaign
func (r *CampaignRepository) AdvanceBatch(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c.CurrentBatch++
	c.UpdatedAt = time.Now()
	out := *c
	return &out, nil
}
