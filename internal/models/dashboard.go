package models

// DashboardStats is the campaign overview shown on the dashboard
type DashboardStats struct {
	RecipientsThisMonth int          `json:"recipientsThisMonth"`
	AvgDeliveryRate     int          `json:"avgDeliveryRate"`
	TotalFailed         int          `json:"totalFailed"`
	Trend               []TrendPoint `json:"trend"`
	ActiveCampaigns     []Campaign   `json:"activeCampaigns"`
	RecentCampaigns     []Campaign   `json:"recentCampaigns"`
}

// TrendPoint is the number of sends for campaigns created on one day
type TrendPoint struct {
	Date string `json:"date"`
	Sent int    `json:"sent"`
}
