package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/utils"
)

// RecipientCriteria describes who a campaign goes to. Exactly what a resolver does with
// it is up to the resolver.
type RecipientCriteria struct {
	Recipients []models.Recipient `json:"recipients,omitempty"`
	CSV        string             `json:"csv,omitempty"`
}

// RecipientResolver turns criteria into an ordered recipient list
type RecipientResolver interface {
	Resolve(ctx context.Context, criteria RecipientCriteria) ([]models.Recipient, error)
}

// StaticResolver returns the explicit recipients of the criteria, with ids filled in and
// duplicates removed
type StaticResolver struct {
	CountryCode string
}

// Resolve implements RecipientResolver
func (r StaticResolver) Resolve(ctx context.Context, criteria RecipientCriteria) ([]models.Recipient, error) {
	out := make([]models.Recipient, 0, len(criteria.Recipients))
	seen := make(map[string]bool, len(criteria.Recipients))
	for _, rec := range criteria.Recipients {
		rec.Email = strings.ToLower(strings.TrimSpace(rec.Email))
		rec.Phone = utils.NormalizePhone(rec.Phone, r.CountryCode)
		rec.Name = strings.TrimSpace(rec.Name)
		rec.ID = strings.TrimSpace(rec.ID)
		if rec.ID == "" {
			rec.ID = utils.DefaultRecipientID(rec)
		}
		if rec.ID == "" || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		out = append(out, rec)
	}
	return out, nil
}

// CSVResolver parses the inline CSV of the criteria
type CSVResolver struct {
	CountryCode string
}

// Resolve implements RecipientResolver
func (r CSVResolver) Resolve(ctx context.Context, criteria RecipientCriteria) ([]models.Recipient, error) {
	res, err := utils.ImportRecipientsCSV(strings.NewReader(criteria.CSV), r.CountryCode)
	if err != nil {
		return nil, fmt.Errorf("resolve csv recipients: %w", err)
	}
	return res.Recipients, nil
}

// CriteriaResolver uses the CSV resolver when the criteria carry CSV content and the
// static resolver otherwise
type CriteriaResolver struct {
	Static StaticResolver
	CSV    CSVResolver
}

// NewRecipientResolver creates the default resolver
func NewRecipientResolver(countryCode string) *CriteriaResolver {
	return &CriteriaResolver{
		Static: StaticResolver{CountryCode: countryCode},
		CSV:    CSVResolver{CountryCode: countryCode},
	}
}

// Resolve implements RecipientResolver
func (r *CriteriaResolver) Resolve(ctx context.Context, criteria RecipientCriteria) ([]models.Recipient, error) {
	if strings.TrimSpace(criteria.CSV) != "" {
		return r.CSV.Resolve(ctx, criteria)
	}
	return r.Static.Resolve(ctx, criteria)
}
