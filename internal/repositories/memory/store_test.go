package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMessageInsertManySkipsDuplicateRecipients(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Messages()
	campaignID := primitive.NewObjectID()

	first := []*models.Message{
		{CampaignID: campaignID, RecipientID: "r1", Status: models.MessageStatusQueued},
		{CampaignID: campaignID, RecipientID: "r2", Status: models.MessageStatusQueued},
	}
	n, err := repo.InsertMany(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	again := []*models.Message{
		{CampaignID: campaignID, RecipientID: "r2", Status: models.MessageStatusQueued},
		{CampaignID: campaignID, RecipientID: "r3", Status: models.MessageStatusQueued},
	}
	n, err = repo.InsertMany(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := repo.FindByCampaign(ctx, campaignID, 1, 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMessageTransitionByExternalID(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Messages()
	campaignID := primitive.NewObjectID()

	_, err := repo.InsertMany(ctx, []*models.Message{{CampaignID: campaignID, RecipientID: "r1", Status: models.MessageStatusQueued}})
	require.NoError(t, err)

	ok, err := repo.UpdateByRecipient(ctx, campaignID, "r1", models.MessageUpdate{Status: models.MessageStatusSent, ExternalMessageID: "ext-1"})
	require.NoError(t, err)
	require.True(t, ok)

	prev, err := repo.TransitionByExternalID(ctx, "ext-1", models.MessageUpdate{Status: models.MessageStatusDelivered})
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, models.MessageStatusSent, prev.Status)

	// replay of the same status matches nothing
	prev, err = repo.TransitionByExternalID(ctx, "ext-1", models.MessageUpdate{Status: models.MessageStatusDelivered})
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, err = repo.TransitionByExternalID(ctx, "unknown", models.MessageUpdate{Status: models.MessageStatusDelivered})
	require.NoError(t, err)
	assert.Nil(t, prev)

	// a late sent does not undo delivery
	prev, err = repo.TransitionByExternalID(ctx, "ext-1", models.MessageUpdate{Status: models.MessageStatusSent})
	require.NoError(t, err)
	assert.Nil(t, prev)

	m, err := repo.FindByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusDelivered, m.Status)
	assert.NotNil(t, m.DeliveredAt)
	assert.NotNil(t, m.SentAt)
}

func TestMarkFirstConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Tracking()
	campaignID := primitive.NewObjectID()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := repo.MarkFirst(ctx, models.InteractionOpen, campaignID, "r1", time.Now())
			assert.NoError(t, err)
			if first {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	first, err := repo.MarkFirst(ctx, models.InteractionClick, campaignID, "r1", time.Now())
	require.NoError(t, err)
	assert.True(t, first)
}

func TestBatchCreateManyAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Batches()
	campaignID := primitive.NewObjectID()

	store.FailOn(OpBatchCreateMany, errors.New("disk full"))
	err := repo.CreateMany(ctx, []*models.CampaignBatch{
		{CampaignID: campaignID, BatchNumber: 1, Status: models.BatchStatusPending},
		{CampaignID: campaignID, BatchNumber: 2, Status: models.BatchStatusPending},
	})
	require.Error(t, err)

	batches, err := repo.FindByCampaign(ctx, campaignID)
	require.NoError(t, err)
	assert.Empty(t, batches)

	store.FailOn(OpBatchCreateMany, nil)
	err = repo.CreateMany(ctx, []*models.CampaignBatch{
		{CampaignID: campaignID, BatchNumber: 1, Status: models.BatchStatusPending},
		{CampaignID: campaignID, BatchNumber: 1, Status: models.BatchStatusPending},
	})
	require.Error(t, err)
	batches, _ = repo.FindByCampaign(ctx, campaignID)
	assert.Empty(t, batches)
}

func TestBatchClaimOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Batches()
	b := &models.CampaignBatch{CampaignID: primitive.NewObjectID(), BatchNumber: 1, Status: models.BatchStatusPending}
	require.NoError(t, repo.CreateMany(ctx, []*models.CampaignBatch{b}))

	claimed, err := repo.Claim(ctx, b.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusProcessing, claimed.Status)

	_, err = repo.Claim(ctx, b.ID, time.Now())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestCampaignTransitionStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Campaigns()
	c := &models.Campaign{Name: "x", Channel: models.ChannelEmail, Status: models.CampaignStatusDraft}
	require.NoError(t, repo.Create(ctx, c))
	require.NoError(t, repo.MarkQueued(ctx, c.ID, 10, 2))

	ok, err := repo.TransitionStatus(ctx, c.ID, []models.CampaignStatus{models.CampaignStatusProcessing}, models.CampaignStatusPaused, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.TransitionStatus(ctx, c.ID, []models.CampaignStatus{models.CampaignStatusQueued}, models.CampaignStatusProcessing, "")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusProcessing, got.Status)
	assert.Equal(t, 10, got.TotalRecipients)
	assert.Equal(t, 2, got.TotalBatches)
}

func TestDedupFirstSeen(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Dedup()

	first, err := repo.FirstSeen(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = repo.FirstSeen(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, first)
}

func TestDedupForget(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Dedup()

	_, err := repo.FirstSeen(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.Forget(ctx, "k"))

	first, err := repo.FirstSeen(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestBatchRelease(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Batches()
	b := &models.CampaignBatch{CampaignID: primitive.NewObjectID(), BatchNumber: 1, Status: models.BatchStatusPending}
	require.NoError(t, repo.CreateMany(ctx, []*models.CampaignBatch{b}))

	assert.ErrorIs(t, repo.Release(ctx, b.ID), repositories.ErrNotFound)

	_, err := repo.Claim(ctx, b.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Release(ctx, b.ID))

	got, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)

	_, err = repo.Claim(ctx, b.ID, time.Now())
	assert.NoError(t, err)
}

func TestMessageRestore(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Messages()
	campaignID := primitive.NewObjectID()
	_, err := repo.InsertMany(ctx, []*models.Message{{CampaignID: campaignID, RecipientID: "r1", Status: models.MessageStatusQueued}})
	require.NoError(t, err)
	_, err = repo.UpdateByRecipient(ctx, campaignID, "r1", models.MessageUpdate{Status: models.MessageStatusSent, ExternalMessageID: "ext-1"})
	require.NoError(t, err)

	prev, err := repo.TransitionByExternalID(ctx, "ext-1", models.MessageUpdate{Status: models.MessageStatusFailed, ErrorMessage: "bounced"})
	require.NoError(t, err)
	require.NotNil(t, prev)

	// only restores while the status is still the one applied
	ok, err := repo.Restore(ctx, prev, models.MessageStatusDelivered)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Restore(ctx, prev, models.MessageStatusFailed)
	require.NoError(t, err)
	assert.True(t, ok)

	m, err := repo.FindByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSent, m.Status)
	assert.Empty(t, m.ErrorMessage)
}

func TestUnmarkFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Tracking()
	campaignID := primitive.NewObjectID()

	first, err := repo.MarkFirst(ctx, models.InteractionOpen, campaignID, "r1", time.Now())
	require.NoError(t, err)
	require.True(t, first)
	require.NoError(t, repo.UnmarkFirst(ctx, models.InteractionOpen, campaignID, "r1"))

	first, err = repo.MarkFirst(ctx, models.InteractionOpen, campaignID, "r1", time.Now())
	require.NoError(t, err)
	assert.True(t, first)
}

func TestFailTimes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.FailTimes(OpDedupFirstSeen, 2, errors.New("timeout"))

	for i := 0; i < 2; i++ {
		_, err := store.Dedup().FirstSeen(ctx, "k", time.Minute)
		assert.Error(t, err)
	}
	first, err := store.Dedup().FirstSeen(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}
