package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
)

// Dashboard limits
const (
	TrendDays          = 14
	MaxActiveCampaigns = 5
	MaxRecentCampaigns = 10
	trendDateLayout    = "2006-01-02"
)

// Compile-time check to ensure DashboardServiceImpl implements DashboardService
var _ DashboardService = (*DashboardServiceImpl)(nil)

// DashboardServiceImpl computes dashboard stats from the campaign counters
type DashboardServiceImpl struct {
	campaigns repositories.CampaignRepository
	loc       *time.Location
	now       func() time.Time
}

// NewDashboardService creates a new DashboardServiceImpl
func NewDashboardService(campaigns repositories.CampaignRepository, loc *time.Location) *DashboardServiceImpl {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardServiceImpl{campaigns: campaigns, loc: loc, now: time.Now}
}

// GetStats loads every campaign and reduces them to dashboard stats
func (s *DashboardServiceImpl) GetStats(ctx context.Context) (*models.DashboardStats, error) {
	campaigns, err := s.campaigns.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	stats := BuildDashboard(campaigns, s.now(), s.loc)
	return &stats, nil
}

// BuildDashboard reduces campaigns to dashboard stats. Calendar days and months are taken
// in loc.
func BuildDashboard(campaigns []models.Campaign, now time.Time, loc *time.Location) models.DashboardStats {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	// newest first
	sorted := make([]models.Campaign, len(campaigns))
	copy(sorted, campaigns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	trend := make([]models.TrendPoint, TrendDays)
	index := make(map[string]int, TrendDays)
	for i := 0; i < TrendDays; i++ {
		day := today.AddDate(0, 0, i-(TrendDays-1)).Format(trendDateLayout)
		trend[i] = models.TrendPoint{Date: day}
		index[day] = i
	}

	stats := models.DashboardStats{
		Trend:           trend,
		ActiveCampaigns: []models.Campaign{},
		RecentCampaigns: []models.Campaign{},
	}
	var totalSent, totalDelivered int

	for _, c := range sorted {
		created := c.CreatedAt.In(loc)
		if !created.Before(monthStart) {
			stats.RecipientsThisMonth += c.TotalRecipients
		}
		totalSent += c.SentCount
		totalDelivered += c.DeliveredCount
		stats.TotalFailed += c.FailedCount

		if i, ok := index[created.Format(trendDateLayout)]; ok {
			stats.Trend[i].Sent += c.SentCount
		}

		active := c.Status == models.CampaignStatusProcessing || c.Status == models.CampaignStatusQueued
		if active && len(stats.ActiveCampaigns) < MaxActiveCampaigns {
			stats.ActiveCampaigns = append(stats.ActiveCampaigns, c)
		}
		if len(stats.RecentCampaigns) < MaxRecentCampaigns {
			stats.RecentCampaigns = append(stats.RecentCampaigns, c)
		}
	}

	if totalSent > 0 {
		stats.AvgDeliveryRate = int(math.Round(float64(totalDelivered) * 100 / float64(totalSent)))
	}
	return stats
}
