package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatchRepository is the in-memory repositories.BatchRepository
type BatchRepository struct {
	s *Store
}

// CreateMany inserts all batches or none of them
func (r *BatchRepository) CreateMany(ctx context.Context, batches []*models.CampaignBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpBatchCreateMany); err != nil {
		return fmt.Errorf("insert batches: %w", err)
	}

	taken := make(map[string]bool)
	for _, b := range r.s.batches {
		taken[fmt.Sprintf("%s|%d", b.CampaignID.Hex(), b.BatchNumber)] = true
	}
	for _, b := range batches {
		key := fmt.Sprintf("%s|%d", b.CampaignID.Hex(), b.BatchNumber)
		if taken[key] {
			return fmt.Errorf("insert batches: duplicate batch %s", key)
		}
		taken[key] = true
	}

	now := time.Now()
	for _, b := range batches {
		if b.ID.IsZero() {
			b.ID = primitive.NewObjectID()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		c := *b
		r.s.batches[c.ID] = &c
	}
	return nil
}

// FindByID finds a batch by ID
func (r *BatchRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.CampaignBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *b
	return &out, nil
}

// FindByCampaign finds all batches of a campaign ordered by batch number
func (r *BatchRepository) FindByCampaign(ctx context.Context, campaignID primitive.ObjectID) ([]*models.CampaignBatch, error) {
	return r.filter(func(b *models.CampaignBatch) bool { return b.CampaignID == campaignID }), nil
}

// FindByCampaignAndStatus finds a campaign's batches in the given status
func (r *BatchRepository) FindByCampaignAndStatus(ctx context.Context, campaignID primitive.ObjectID, status models.BatchStatus) ([]*models.CampaignBatch, error) {
	return r.filter(func(b *models.CampaignBatch) bool {
		return b.CampaignID == campaignID && b.Status == status
	}), nil
}

// FindPendingBefore finds pending batches created before the given time
func (r *BatchRepository) FindPendingBefore(ctx context.Context, createdBefore time.Time, limit int) ([]*models.CampaignBatch, error) {
	out := r.filter(func(b *models.CampaignBatch) bool {
		return b.Status == models.BatchStatusPending && b.CreatedAt.Before(createdBefore)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Claim moves a pending batch to processing
func (r *BatchRepository) Claim(ctx context.Context, id primitive.ObjectID, startedAt time.Time) (*models.CampaignBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok || b.Status != models.BatchStatusPending {
		return nil, repositories.ErrNotFound
	}
	b.Status = models.BatchStatusProcessing
	t := startedAt
	b.StartedAt = &t
	out := *b
	return &out, nil
}

// Release moves a processing batch back to pending
func (r *BatchRepository) Release(ctx context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok || b.Status != models.BatchStatusProcessing {
		return repositories.ErrNotFound
	}
	b.Status = models.BatchStatusPending
	b.StartedAt = nil
	return nil
}

// IncrementProgress adds per-recipient outcomes to the batch counters
func (r *BatchRepository) IncrementProgress(ctx context.Context, id primitive.ObjectID, success, failed int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpBatchIncrement); err != nil {
		return err
	}
	b, ok := r.s.batches[id]
	if !ok {
		return nil
	}
	b.ProcessedCount += success + failed
	b.SuccessCount += success
	b.FailedCount += failed
	return nil
}

// Finish records the final status of a batch
func (r *BatchRepository) Finish(ctx context.Context, id primitive.ObjectID, status models.BatchStatus, errorMessage string, completedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil
	}
	b.Status = status
	if errorMessage != "" {
		b.ErrorMessage = errorMessage
	}
	t := completedAt
	b.CompletedAt = &t
	return nil
}

// DeleteByCampaign removes every batch of a campaign
func (r *BatchRepository) DeleteByCampaign(ctx context.Context, campaignID primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, b := range r.s.batches {
		if b.CampaignID == campaignID {
			delete(r.s.batches, id)
		}
	}
	return nil
}

func (r *BatchRepository) filter(keep func(*models.CampaignBatch) bool) []*models.CampaignBatch {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.CampaignBatch{}
	for _, b := range r.s.batches {
		if keep(b) {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CampaignID != out[j].CampaignID {
			return out[i].CampaignID.Hex() < out[j].CampaignID.Hex()
		}
		return out[i].BatchNumber < out[j].BatchNumber
	})
	return out
}
