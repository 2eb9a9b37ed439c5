package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageRepository is the in-memory message ledger
type MessageRepository struct {
	s *Store
}

// InsertMany writes messages, skipping (campaignId, recipientId) duplicates
func (r *MessageRepository) InsertMany(ctx context.Context, messages []*models.Message) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpMessageInsertMany); err != nil {
		return 0, err
	}
	now := time.Now()
	inserted := 0
	for _, m := range messages {
		key := recipientKey(m.CampaignID, m.RecipientID)
		if _, dup := r.s.byRecip[key]; dup {
			continue
		}
		if m.ID.IsZero() {
			m.ID = primitive.NewObjectID()
		}
		m.CreatedAt = now
		m.UpdatedAt = now
		c := *m
		r.s.messages[c.ID] = &c
		r.s.byRecip[key] = c.ID
		if c.ExternalMessageID != "" {
			r.s.byExtID[c.ExternalMessageID] = c.ID
		}
		inserted++
	}
	return inserted, nil
}

// UpdateByRecipient overwrites the status of the message for (campaignId, recipientId)
func (r *MessageRepository) UpdateByRecipient(ctx context.Context, campaignID primitive.ObjectID, recipientID string, update models.MessageUpdate) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpMessageUpdate); err != nil {
		return false, err
	}
	id, ok := r.s.byRecip[recipientKey(campaignID, recipientID)]
	if !ok {
		return false, nil
	}
	r.apply(r.s.messages[id], update)
	return true, nil
}

// TransitionByExternalID applies update when the status differs and returns the previous state.
// A late sent never overwrites delivered or failed.
func (r *MessageRepository) TransitionByExternalID(ctx context.Context, externalID string, update models.MessageUpdate) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpMessageTransition); err != nil {
		return nil, err
	}
	id, ok := r.s.byExtID[externalID]
	if !ok {
		return nil, nil
	}
	m := r.s.messages[id]
	if m.Status == update.Status || (update.Status == models.MessageStatusSent && m.Status.IsFinal()) {
		return nil, nil
	}
	previous := *m
	r.apply(m, update)
	return &previous, nil
}

// Restore puts back a previous state while the message is still in status current
func (r *MessageRepository) Restore(ctx context.Context, previous *models.Message, current models.MessageStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpMessageRestore); err != nil {
		return false, err
	}
	m, ok := r.s.messages[previous.ID]
	if !ok || m.Status != current {
		return false, nil
	}
	m.Status = previous.Status
	m.ErrorMessage = previous.ErrorMessage
	m.SentAt = previous.SentAt
	m.DeliveredAt = previous.DeliveredAt
	m.UpdatedAt = previous.UpdatedAt
	return true, nil
}

// FindByRecipient finds the message for (campaignId, recipientId)
func (r *MessageRepository) FindByRecipient(ctx context.Context, campaignID primitive.ObjectID, recipientID string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byRecip[recipientKey(campaignID, recipientID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *r.s.messages[id]
	return &out, nil
}

// FindByExternalID finds the message with the provider's id
func (r *MessageRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byExtID[externalID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *r.s.messages[id]
	return &out, nil
}

// FindByCampaign finds a campaign's messages with pagination, in insertion order
func (r *MessageRepository) FindByCampaign(ctx context.Context, campaignID primitive.ObjectID, page, limit int) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := []*models.Message{}
	for _, m := range r.s.messages {
		if m.CampaignID == campaignID {
			c := *m
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.Hex() < all[j].ID.Hex() })
	start, end := pageBounds(len(all), page, limit)
	return all[start:end], nil
}

// apply must be called with the store lock held
func (r *MessageRepository) apply(m *models.Message, update models.MessageUpdate) {
	at := update.At
	if at.IsZero() {
		at = time.Now()
	}
	m.Status = update.Status
	m.UpdatedAt = at
	if update.ErrorMessage != "" {
		m.ErrorMessage = update.ErrorMessage
	}
	if update.ExternalMessageID != "" {
		m.ExternalMessageID = update.ExternalMessageID
		r.s.byExtID[update.ExternalMessageID] = m.ID
	}
	switch update.Status {
	case models.MessageStatusSent:
		t := at
		m.SentAt = &t
	case models.MessageStatusDelivered:
		t := at
		m.DeliveredAt = &t
	}
}
