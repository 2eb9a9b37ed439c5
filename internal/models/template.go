package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WhatsAppTemplate is a provider-approved template with positional variables.
// Body placeholders are {{1}}..{{n}} in the order of Variables.
type WhatsAppTemplate struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name      string             `bson:"name" json:"name"`
	Language  string             `bson:"language" json:"language"`
	Body      string             `bson:"body" json:"body"`
	Variables []string           `bson:"variables" json:"variables"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}
