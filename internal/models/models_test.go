package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseEntityID(t *testing.T) {
	valid := primitive.NewObjectID()

	id, err := ParseEntityID(valid.Hex())
	require.NoError(t, err)
	assert.Equal(t, valid, id)

	for _, raw := range []string{"", "abc", "not-an-id", "000000000000000000000000", valid.Hex() + "ff"} {
		_, err := ParseEntityID(raw)
		assert.True(t, errors.Is(err, ErrMalformedID), raw)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(CampaignStatusDraft, CampaignStatusQueued))
	assert.True(t, CanTransition(CampaignStatusQueued, CampaignStatusProcessing))
	assert.True(t, CanTransition(CampaignStatusProcessing, CampaignStatusPaused))
	assert.True(t, CanTransition(CampaignStatusPaused, CampaignStatusProcessing))
	assert.True(t, CanTransition(CampaignStatusProcessing, CampaignStatusCompleted))

	assert.False(t, CanTransition(CampaignStatusCompleted, CampaignStatusProcessing))
	assert.False(t, CanTransition(CampaignStatusProcessing, CampaignStatusQueued))
	assert.False(t, CanTransition(CampaignStatusFailed, CampaignStatusQueued))
	assert.False(t, CanTransition(CampaignStatusDraft, CampaignStatusPaused))
}

func TestRecipientAddress(t *testing.T) {
	r := Recipient{ID: "r1", Email: "a@example.com", Phone: "2348030000000"}
	assert.Equal(t, "a@example.com", r.Address(ChannelEmail))
	assert.Equal(t, "2348030000000", r.Address(ChannelWhatsApp))
}
