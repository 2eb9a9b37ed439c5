package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InteractionKind distinguishes opens from clicks
type InteractionKind string

const (
	InteractionOpen  InteractionKind = "open"
	InteractionClick InteractionKind = "click"
)

// TrackingEvent is one open or click. The log is append-only.
type TrackingEvent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Kind        InteractionKind    `bson:"kind" json:"kind"`
	CampaignID  primitive.ObjectID `bson:"campaignId" json:"campaignId"`
	RecipientID string             `bson:"recipientId" json:"recipientId"`
	URL         string             `bson:"url,omitempty" json:"url,omitempty"`
	UserAgent   string             `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	IP          string             `bson:"ip,omitempty" json:"ip,omitempty"`
	Unique      bool               `bson:"unique" json:"unique"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
}

// FirstInteraction marks that a recipient has opened or clicked a campaign at least once.
// (campaignId, recipientId, kind) is unique.
type FirstInteraction struct {
	CampaignID  primitive.ObjectID `bson:"campaignId"`
	RecipientID string             `bson:"recipientId"`
	Kind        InteractionKind    `bson:"kind"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

// EventMeta is request metadata captured with a tracking event
type EventMeta struct {
	UserAgent string
	IP        string
	URL       string
}
