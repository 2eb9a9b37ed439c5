package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionCoversInputInOrder(t *testing.T) {
	for _, n := range []int{0, 1, 5, 10, 11, 250} {
		for _, size := range []int{1, 3, 10, 100} {
			recipients := makeRecipients(n)
			chunks := Partition(recipients, size)

			assert.Len(t, chunks, (n+size-1)/size, "n=%d size=%d", n, size)

			var joined []models.Recipient
			for i, c := range chunks {
				if i < len(chunks)-1 {
					assert.Len(t, c, size)
				}
				assert.NotEmpty(t, c)
				joined = append(joined, c...)
			}
			if n == 0 {
				assert.Empty(t, joined)
				continue
			}
			assert.Equal(t, recipients, joined, "n=%d size=%d", n, size)
		}
	}
}

func TestPartitionChunksDoNotShareCapacity(t *testing.T) {
	chunks := Partition(makeRecipients(4), 2)
	chunks[0] = append(chunks[0], models.Recipient{ID: "extra"})
	assert.Equal(t, "r3", chunks[1][0].ID)
}

func TestCreateBatchesPersistsPendingBatches(t *testing.T) {
	f := newFixture(t, defaultProcessorOptions())
	campaign, batches := f.seedCampaign(t, models.ChannelEmail, makeRecipients(25), 10)

	require.Len(t, batches, 3)
	stored, err := f.store.Batches().FindByCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, b := range stored {
		assert.Equal(t, i+1, b.BatchNumber)
		assert.Equal(t, 3, b.TotalBatches)
		assert.Equal(t, models.BatchStatusPending, b.Status)
	}
	assert.Len(t, stored[2].Recipients, 5)
	assert.Equal(t, "r21", stored[2].Recipients[0].ID)

	got := f.campaign(t, campaign)
	assert.Equal(t, models.CampaignStatusQueued, got.Status)
	assert.Equal(t, 25, got.TotalRecipients)
	assert.Equal(t, 3, got.TotalBatches)
	assert.Equal(t, 0, got.CurrentBatch)
}

func TestCreateBatchesRejectsEmptyRecipientList(t *testing.T) {
	f := newFixture(t, defaultProcessorOptions())
	campaign := &models.Campaign{Channel: models.ChannelEmail, Status: models.CampaignStatusDraft}
	require.NoError(t, f.store.Campaigns().Create(context.Background(), campaign))

	_, err := f.batcher.CreateBatches(context.Background(), campaign, nil, 10)
	assert.ErrorIs(t, err, ErrNoRecipients)

	stored, err := f.store.Batches().FindByCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, models.CampaignStatusDraft, f.campaign(t, campaign).Status)
}

func TestCreateBatchesIsAllOrNothing(t *testing.T) {
	f := newFixture(t, defaultProcessorOptions())
	campaign := &models.Campaign{Channel: models.ChannelEmail, Status: models.CampaignStatusDraft}
	require.NoError(t, f.store.Campaigns().Create(context.Background(), campaign))
	f.store.FailOn(memory.OpBatchCreateMany, errors.New("write conflict"))

	_, err := f.batcher.CreateBatches(context.Background(), campaign, makeRecipients(30), 10)
	require.Error(t, err)

	stored, err := f.store.Batches().FindByCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)

	got := f.campaign(t, campaign)
	assert.Equal(t, models.CampaignStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "write conflict")
}

func TestEffectiveBatchSize(t *testing.T) {
	b := NewRecipientBatcher(nil, nil, 100, nil)
	assert.Equal(t, 100, b.EffectiveBatchSize(0))
	assert.Equal(t, 7, b.EffectiveBatchSize(7))
	assert.Equal(t, MaxBatchSize, b.EffectiveBatchSize(MaxBatchSize+1))
}
