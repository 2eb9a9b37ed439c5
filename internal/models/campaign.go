package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Channel is the delivery channel of a campaign
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Valid reports whether c is a supported channel
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelWhatsApp
}

// CampaignStatus is the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft      CampaignStatus = "draft"
	CampaignStatusQueued     CampaignStatus = "queued"
	CampaignStatusProcessing CampaignStatus = "processing"
	CampaignStatusPaused     CampaignStatus = "paused"
	CampaignStatusCompleted  CampaignStatus = "completed"
	CampaignStatusFailed     CampaignStatus = "failed"
)

// campaignTransitions lists the allowed forward moves. processing and paused may swap.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:      {CampaignStatusQueued, CampaignStatusFailed},
	CampaignStatusQueued:     {CampaignStatusProcessing, CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusFailed},
	CampaignStatusProcessing: {CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusFailed},
	CampaignStatusPaused:     {CampaignStatusProcessing, CampaignStatusCompleted, CampaignStatusFailed},
}

// CanTransition reports whether a campaign may move from one status to another
func CanTransition(from, to CampaignStatus) bool {
	for _, s := range campaignTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}

// Campaign represents a bulk send over one channel
type Campaign struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name            string             `bson:"name" json:"name"`
	Channel         Channel            `bson:"channel" json:"channel"`
	Status          CampaignStatus     `bson:"status" json:"status"`
	TotalRecipients int                `bson:"totalRecipients" json:"totalRecipients"`
	SentCount       int                `bson:"sentCount" json:"sentCount"`
	DeliveredCount  int                `bson:"deliveredCount" json:"deliveredCount"`
	FailedCount     int                `bson:"failedCount" json:"failedCount"`
	OpensCount      int                `bson:"opensCount" json:"opensCount"`
	ClicksCount     int                `bson:"clicksCount" json:"clicksCount"`
	CurrentBatch    int                `bson:"currentBatch" json:"currentBatch"`
	TotalBatches    int                `bson:"totalBatches" json:"totalBatches"`
	Email           *EmailContent      `bson:"email,omitempty" json:"email,omitempty"`
	WhatsApp        *WhatsAppContent   `bson:"whatsapp,omitempty" json:"whatsapp,omitempty"`
	ErrorMessage    string             `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedBy       string             `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// EmailContent is the stored email payload of a campaign
type EmailContent struct {
	Subject     string       `bson:"subject" json:"subject"`
	HTML        string       `bson:"html" json:"html"`
	FromName    string       `bson:"fromName,omitempty" json:"fromName,omitempty"`
	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`
}

// Attachment is a file sent with every email of a campaign
type Attachment struct {
	Filename    string `bson:"filename" json:"filename"`
	ContentType string `bson:"contentType" json:"contentType"`
	Content     []byte `bson:"content" json:"content"`
}

// WhatsAppContent references a WhatsApp template and the values for its variables.
// VariableValues may contain recipient placeholders such as {{name}}.
type WhatsAppContent struct {
	TemplateName   string            `bson:"templateName" json:"templateName"`
	Language       string            `bson:"language" json:"language"`
	VariableValues map[string]string `bson:"variableValues,omitempty" json:"variableValues,omitempty"`
}

// CounterDelta is a set of non-negative increments applied to a campaign's counters
type CounterDelta struct {
	Sent      int
	Delivered int
	Failed    int
	Opens     int
	Clicks    int
}

// IsZero reports whether the delta changes nothing
func (d CounterDelta) IsZero() bool {
	return d == CounterDelta{}
}
