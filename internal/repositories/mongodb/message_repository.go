package mongodb

import (
	"context"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository implements the repositories.MessageRepository interface
type MessageRepository struct {
	collection *mongo.Collection
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *mongo.Database) repositories.MessageRepository {
	return &MessageRepository{
		collection: db.Collection(MessagesCollection),
	}
}

// InsertMany writes all messages in one unordered bulk insert. Rows rejected by the
// (campaignId, recipientId) unique index are skipped.
func (r *MessageRepository) InsertMany(ctx context.Context, messages []*models.Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}
	now := time.Now()
	docs := make([]interface{}, len(messages))
	for i, m := range messages {
		if m.ID.IsZero() {
			m.ID = primitive.NewObjectID()
		}
		m.CreatedAt = now
		m.UpdatedAt = now
		docs[i] = m
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(docs), nil
	}
	if dups, ok := onlyDuplicateKeyErrors(err); ok {
		return len(docs) - dups, nil
	}
	return 0, err
}

// UpdateByRecipient overwrites the status of the message for (campaignId, recipientId)
func (r *MessageRepository) UpdateByRecipient(ctx context.Context, campaignID primitive.ObjectID, recipientID string, update models.MessageUpdate) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"campaignId": campaignID, "recipientId": recipientID},
		bson.M{"$set": updateFields(update)},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// TransitionByExternalID applies a provider status change and returns the message as it was
func (r *MessageRepository) TransitionByExternalID(ctx context.Context, externalID string, update models.MessageUpdate) (*models.Message, error) {
	var previous models.Message
	status := bson.M{"$ne": update.Status}
	if update.Status == models.MessageStatusSent {
		status = bson.M{"$nin": []models.MessageStatus{update.Status, models.MessageStatusDelivered, models.MessageStatusFailed}}
	}
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"externalMessageId": externalID, "status": status},
		bson.M{"$set": updateFields(update)},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&previous)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &previous, nil
}

// Restore puts back a previous state while the message is still in status current
func (r *MessageRepository) Restore(ctx context.Context, previous *models.Message, current models.MessageStatus) (bool, error) {
	set := bson.M{"status": previous.Status, "updatedAt": previous.UpdatedAt}
	unset := bson.M{}
	if previous.ErrorMessage != "" {
		set["errorMessage"] = previous.ErrorMessage
	} else {
		unset["errorMessage"] = ""
	}
	if previous.SentAt != nil {
		set["sentAt"] = *previous.SentAt
	} else {
		unset["sentAt"] = ""
	}
	if previous.DeliveredAt != nil {
		set["deliveredAt"] = *previous.DeliveredAt
	} else {
		unset["deliveredAt"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": previous.ID, "status": current}, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// FindByRecipient finds the message for (campaignId, recipientId)
func (r *MessageRepository) FindByRecipient(ctx context.Context, campaignID primitive.ObjectID, recipientID string) (*models.Message, error) {
	var message models.Message
	err := r.collection.FindOne(ctx, bson.M{"campaignId": campaignID, "recipientId": recipientID}).Decode(&message)
	if err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// FindByExternalID finds the message with the provider's id
func (r *MessageRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	var message models.Message
	if err := r.collection.FindOne(ctx, bson.M{"externalMessageId": externalID}).Decode(&message); err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// FindByCampaign finds a campaign's messages with pagination
func (r *MessageRepository) FindByCampaign(ctx context.Context, campaignID primitive.ObjectID, page, limit int) ([]*models.Message, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"campaignId": campaignID},
		pageOptions(page, limit).SetSort(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}

func updateFields(update models.MessageUpdate) bson.M {
	at := update.At
	if at.IsZero() {
		at = time.Now()
	}
	set := bson.M{"status": update.Status, "updatedAt": at}
	if update.ErrorMessage != "" {
		set["errorMessage"] = update.ErrorMessage
	}
	if update.ExternalMessageID != "" {
		set["externalMessageId"] = update.ExternalMessageID
	}
	switch update.Status {
	case models.MessageStatusSent:
		set["sentAt"] = at
	case models.MessageStatusDelivered:
		set["deliveredAt"] = at
	}
	return set
}
