package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageStatus is the delivery state of one message
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

// IsFinal reports whether the provider has reported an outcome
func (s MessageStatus) IsFinal() bool {
	return s == MessageStatusDelivered || s == MessageStatusFailed
}

// Message is the per-recipient delivery record of a campaign
type Message struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CampaignID        primitive.ObjectID `bson:"campaignId" json:"campaignId"`
	RecipientID       string             `bson:"recipientId" json:"recipientId"`
	Channel           Channel            `bson:"channel" json:"channel"`
	Status            MessageStatus      `bson:"status" json:"status"`
	ErrorMessage      string             `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	ExternalMessageID string             `bson:"externalMessageId,omitempty" json:"externalMessageId,omitempty"`
	SentAt            *time.Time         `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	DeliveredAt       *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// MessageUpdate is a last-write-wins status change for a message.
// Zero-valued optional fields are left untouched.
type MessageUpdate struct {
	Status            MessageStatus
	ErrorMessage      string
	ExternalMessageID string
	At                time.Time
}
