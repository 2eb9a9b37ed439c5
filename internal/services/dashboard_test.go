package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lagos = time.FixedZone("WAT", 60*60)

func TestBuildDashboardEmpty(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, lagos)
	stats := BuildDashboard(nil, now, lagos)

	assert.Equal(t, 0, stats.AvgDeliveryRate)
	assert.Equal(t, 0, stats.RecipientsThisMonth)
	assert.NotNil(t, stats.ActiveCampaigns)
	assert.NotNil(t, stats.RecentCampaigns)
	require.Len(t, stats.Trend, TrendDays)
	assert.Equal(t, "2024-03-07", stats.Trend[0].Date)
	assert.Equal(t, "2024-03-20", stats.Trend[TrendDays-1].Date)
	for i := 1; i < len(stats.Trend); i++ {
		assert.Less(t, stats.Trend[i-1].Date, stats.Trend[i].Date)
		assert.Zero(t, stats.Trend[i].Sent)
	}
}

func TestBuildDashboardAggregates(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, lagos)
	campaigns := []models.Campaign{
		{Name: "a", Status: models.CampaignStatusCompleted, TotalRecipients: 100, SentCount: 100, DeliveredCount: 80, FailedCount: 20, CreatedAt: now.Add(-2 * time.Hour)},
		{Name: "b", Status: models.CampaignStatusProcessing, TotalRecipients: 100, SentCount: 100, DeliveredCount: 70, FailedCount: 5, CreatedAt: now.Add(-48 * time.Hour)},
		// previous month, outside the trend window
		{Name: "c", Status: models.CampaignStatusCompleted, TotalRecipients: 50, CreatedAt: time.Date(2024, 2, 1, 9, 0, 0, 0, lagos)},
		// 23:30 UTC on the 29th is already the 1st of March in Lagos
		{Name: "d", Status: models.CampaignStatusQueued, TotalRecipients: 7, CreatedAt: time.Date(2024, 2, 29, 23, 30, 0, 0, time.UTC)},
	}

	stats := BuildDashboard(campaigns, now, lagos)

	assert.Equal(t, 207, stats.RecipientsThisMonth)
	assert.Equal(t, 75, stats.AvgDeliveryRate)
	assert.Equal(t, 25, stats.TotalFailed)
	assert.Equal(t, 100, stats.Trend[TrendDays-1].Sent)
	assert.Equal(t, 100, stats.Trend[TrendDays-3].Sent)

	require.Len(t, stats.ActiveCampaigns, 2)
	assert.Equal(t, "b", stats.ActiveCampaigns[0].Name)
	assert.Equal(t, "d", stats.ActiveCampaigns[1].Name)
	require.Len(t, stats.RecentCampaigns, 4)
	assert.Equal(t, "a", stats.RecentCampaigns[0].Name)
	assert.Equal(t, "c", stats.RecentCampaigns[3].Name)
}

func TestBuildDashboardCapsLists(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	var campaigns []models.Campaign
	for i := 0; i < 15; i++ {
		campaigns = append(campaigns, models.Campaign{
			Name:      fmt.Sprintf("c%d", i),
			Status:    models.CampaignStatusProcessing,
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}

	stats := BuildDashboard(campaigns, now, time.UTC)
	assert.Len(t, stats.ActiveCampaigns, MaxActiveCampaigns)
	assert.Len(t, stats.RecentCampaigns, MaxRecentCampaigns)
	assert.Equal(t, "c0", stats.RecentCampaigns[0].Name)
}

func TestDashboardServiceGetStats(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Campaigns().Create(ctx, &models.Campaign{Name: "x", Status: models.CampaignStatusDraft, TotalRecipients: 3}))

	svc := NewDashboardService(store.Campaigns(), nil)
	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RecipientsThisMonth)
	require.Len(t, stats.RecentCampaigns, 1)
}
