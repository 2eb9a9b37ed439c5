package memory

import (
	"context"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TrackingRepository is the in-memory repositories.TrackingRepository
type TrackingRepository struct {
	s *Store
}

// MarkFirst records the first interaction of a kind
func (r *TrackingRepository) MarkFirst(ctx context.Context, kind models.InteractionKind, campaignID primitive.ObjectID, recipientID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := recipientKey(campaignID, recipientID) + "|" + string(kind)
	if _, ok := r.s.firsts[key]; ok {
		return false, nil
	}
	r.s.firsts[key] = struct{}{}
	return true, nil
}

// UnmarkFirst removes the first-interaction marker
func (r *TrackingRepository) UnmarkFirst(ctx context.Context, kind models.InteractionKind, campaignID primitive.ObjectID, recipientID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.firsts, recipientKey(campaignID, recipientID)+"|"+string(kind))
	return nil
}

// Append adds an event to the log
func (r *TrackingRepository) Append(ctx context.Context, event *models.TrackingEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpTrackingAppend); err != nil {
		return err
	}
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	c := *event
	r.s.events = append(r.s.events, &c)
	return nil
}

// FindByCampaign lists a campaign's events of one kind, newest first
func (r *TrackingRepository) FindByCampaign(ctx context.Context, campaignID primitive.ObjectID, kind models.InteractionKind, page, limit int) ([]*models.TrackingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := []*models.TrackingEvent{}
	for i := len(r.s.events) - 1; i >= 0; i-- {
		e := r.s.events[i]
		if e.CampaignID == campaignID && e.Kind == kind {
			c := *e
			all = append(all, &c)
		}
	}
	start, end := pageBounds(len(all), page, limit)
	return all[start:end], nil
}
