package models

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrMalformedID is returned when a raw identifier is not a valid entity id
var ErrMalformedID = errors.New("malformed entity id")

// ParseEntityID validates an untrusted identifier against the storage id space
func ParseEntityID(raw string) (primitive.ObjectID, error) {
	raw = strings.TrimSpace(raw)
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil || id.IsZero() {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrMalformedID, raw)
	}
	return id, nil
}
