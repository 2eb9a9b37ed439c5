package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatchStatus is the processing state of a campaign batch
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// CampaignBatch is a bounded, ordered slice of a campaign's recipients
type CampaignBatch struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CampaignID     primitive.ObjectID `bson:"campaignId" json:"campaignId"`
	BatchNumber    int                `bson:"batchNumber" json:"batchNumber"`
	TotalBatches   int                `bson:"totalBatches" json:"totalBatches"`
	Status         BatchStatus        `bson:"status" json:"status"`
	Recipients     []Recipient        `bson:"recipients" json:"recipients"`
	ProcessedCount int                `bson:"processedCount" json:"processedCount"`
	SuccessCount   int                `bson:"successCount" json:"successCount"`
	FailedCount    int                `bson:"failedCount" json:"failedCount"`
	ErrorMessage   string             `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	StartedAt      *time.Time         `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt    *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}

// Recipient is a single addressee resolved for a campaign
type Recipient struct {
	ID        string            `bson:"id" json:"id"`
	Name      string            `bson:"name,omitempty" json:"name,omitempty"`
	Email     string            `bson:"email,omitempty" json:"email,omitempty"`
	Phone     string            `bson:"phone,omitempty" json:"phone,omitempty"`
	Variables map[string]string `bson:"variables,omitempty" json:"variables,omitempty"`
}

// Address returns the recipient's address on the given channel
func (r Recipient) Address(ch Channel) string {
	if ch == ChannelWhatsApp {
		return r.Phone
	}
	return r.Email
}
