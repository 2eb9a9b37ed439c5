package memory

import (
	"context"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
)

// TemplateRepository is the in-memory repositories.TemplateRepository
type TemplateRepository struct {
	s *Store
}

// Put stores or replaces a template
func (r *TemplateRepository) Put(template models.WhatsAppTemplate) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}
	template.UpdatedAt = now
	r.s.templates[template.Name+"|"+template.Language] = &template
}

// FindByName finds a template by name and language. An empty language matches any.
func (r *TemplateRepository) FindByName(ctx context.Context, name, language string) (*models.WhatsAppTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpTemplateFindByName); err != nil {
		return nil, err
	}
	if language != "" {
		if t, ok := r.s.templates[name+"|"+language]; ok {
			out := *t
			return &out, nil
		}
		return nil, repositories.ErrNotFound
	}
	for _, t := range r.s.templates {
		if t.Name == name {
			out := *t
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}
