package mongodb

import (
	"context"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TemplateRepository implements the repositories.TemplateRepository interface
type TemplateRepository struct {
	collection *mongo.Collection
}

// NewTemplateRepository creates a new TemplateRepository
func NewTemplateRepository(db *mongo.Database) repositories.TemplateRepository {
	return &TemplateRepository{
		collection: db.Collection(TemplatesCollection),
	}
}

// FindByName finds a template by name and language. An empty language matches any.
func (r *TemplateRepository) FindByName(ctx context.Context, name, language string) (*models.WhatsAppTemplate, error) {
	filter := bson.M{"name": name}
	if language != "" {
		filter["language"] = language
	}
	var template models.WhatsAppTemplate
	if err := r.collection.FindOne(ctx, filter).Decode(&template); err != nil {
		return nil, notFound(err)
	}
	return &template, nil
}
