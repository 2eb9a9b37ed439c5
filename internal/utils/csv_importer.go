package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
)

// RecipientImportResult is the outcome of reading a recipient CSV
type RecipientImportResult struct {
	Recipients []models.Recipient
	TotalRows  int
	Errors     []string
}

// Column names accepted for each recipient field, compared case-insensitively
var (
	idColumns    = []string{"id", "recipient id", "recipientid", "external id"}
	emailColumns = []string{"email", "email address", "e-mail"}
	phoneColumns = []string{"phone", "phone number", "msisdn", "mobile", "whatsapp"}
	nameColumns  = []string{"name", "full name", "first name"}
)

// ImportRecipientsCSV reads recipients from CSV with a header row. Columns that are not
// id, email, phone or name become per-recipient template variables keyed by their
// lower-cased header. Rows without any address are reported in Errors and skipped, as
// are repeated recipient ids.
func ImportRecipientsCSV(r io.Reader, countryCode string) (*RecipientImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// Read the header row
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	idIdx := findColumnIndex(header, idColumns)
	emailIdx := findColumnIndex(header, emailColumns)
	phoneIdx := findColumnIndex(header, phoneColumns)
	nameIdx := findColumnIndex(header, nameColumns)

	if emailIdx == -1 && phoneIdx == -1 {
		return nil, fmt.Errorf("email or phone column not found in CSV")
	}

	variableCols := map[int]string{}
	for i, h := range header {
		if i == idIdx || i == emailIdx || i == phoneIdx || i == nameIdx {
			continue
		}
		if key := strings.ToLower(strings.TrimSpace(h)); key != "" {
			variableCols[i] = key
		}
	}

	result := &RecipientImportResult{Recipients: []models.Recipient{}}
	seen := map[string]bool{}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error reading row: %v", err))
			continue
		}
		result.TotalRows++

		rec := models.Recipient{
			ID:    cell(row, idIdx),
			Name:  cell(row, nameIdx),
			Email: strings.ToLower(cell(row, emailIdx)),
			Phone: NormalizePhone(cell(row, phoneIdx), countryCode),
		}
		if rec.Email == "" && rec.Phone == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: No email or phone found", result.TotalRows))
			continue
		}
		if rec.ID == "" {
			rec.ID = DefaultRecipientID(rec)
		}
		if seen[rec.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Duplicate recipient %s", result.TotalRows, rec.ID))
			continue
		}
		seen[rec.ID] = true

		for i, key := range variableCols {
			if v := cell(row, i); v != "" {
				if rec.Variables == nil {
					rec.Variables = map[string]string{}
				}
				rec.Variables[key] = v
			}
		}
		result.Recipients = append(result.Recipients, rec)
	}

	return result, nil
}

// DefaultRecipientID derives a stable id for a recipient that has none
func DefaultRecipientID(r models.Recipient) string {
	if r.Email != "" {
		return strings.ToLower(r.Email)
	}
	return r.Phone
}

// NormalizePhone keeps only digits. A national number with a leading 0 gets countryCode
// in place of the 0 when one is configured.
func NormalizePhone(phone, countryCode string) string {
	phone = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	if strings.HasPrefix(phone, "00") {
		return phone[2:]
	}
	if countryCode != "" && len(phone) >= 10 && len(phone) <= 11 && phone[0] == '0' {
		return countryCode + phone[1:]
	}
	return phone
}

// findColumnIndex finds the index of a column by possible names
func findColumnIndex(header []string, possibleNames []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range possibleNames {
			if strings.ToLower(name) == h {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
