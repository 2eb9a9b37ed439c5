package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"github.com/ArowuTest/bulkcomms-backend/pkg/sendadapter"
)

var (
	placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)
	hrefPattern        = regexp.MustCompile(`(?i)href\s*=\s*("([^"]*)"|'([^']*)')`)
	bodyClosePattern   = regexp.MustCompile(`(?i)</body\s*>`)
)

// payloadBuilder renders the per-recipient content of one campaign
type payloadBuilder func(rec models.Recipient) sendadapter.Payload

// newPayloadBuilder prepares rendering for a campaign. WhatsApp campaigns resolve their
// template here so a missing template fails the batch once instead of every recipient.
func newPayloadBuilder(ctx context.Context, campaign *models.Campaign, templates repositories.TemplateRepository, links *TrackingLinks) (payloadBuilder, error) {
	switch campaign.Channel {
	case models.ChannelEmail:
		if campaign.Email == nil {
			return nil, fmt.Errorf("%w: email content missing", ErrInvalidCampaign)
		}
		return emailPayloadBuilder(campaign.ID.Hex(), campaign.Email, links), nil

	case models.ChannelWhatsApp:
		if campaign.WhatsApp == nil {
			return nil, fmt.Errorf("%w: whatsapp content missing", ErrInvalidCampaign)
		}
		tmpl, err := templates.FindByName(ctx, campaign.WhatsApp.TemplateName, campaign.WhatsApp.Language)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, campaign.WhatsApp.TemplateName, campaign.WhatsApp.Language)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load whatsapp template: %w", err)
		}
		return whatsAppPayloadBuilder(campaign.WhatsApp, tmpl), nil

	default:
		return nil, fmt.Errorf("%w: unsupported channel %q", ErrInvalidCampaign, campaign.Channel)
	}
}

func emailPayloadBuilder(campaignID string, content *models.EmailContent, links *TrackingLinks) payloadBuilder {
	attachments := make([]sendadapter.Attachment, len(content.Attachments))
	for i, a := range content.Attachments {
		attachments[i] = sendadapter.Attachment{Filename: a.Filename, ContentType: a.ContentType, Content: a.Content}
	}
	return func(rec models.Recipient) sendadapter.Payload {
		body := renderPlaceholders(content.HTML, rec, html.EscapeString)
		if links.Enabled() {
			body = rewriteLinks(body, func(target string) string {
				return links.ClickURL(campaignID, rec.ID, target)
			})
			body = injectOpenPixel(body, links.OpenPixelURL(campaignID, rec.ID))
		}
		return sendadapter.Payload{
			Subject:     renderPlaceholders(content.Subject, rec, nil),
			HTML:        body,
			FromName:    content.FromName,
			Attachments: attachments,
		}
	}
}

func whatsAppPayloadBuilder(content *models.WhatsAppContent, tmpl *models.WhatsAppTemplate) payloadBuilder {
	return func(rec models.Recipient) sendadapter.Payload {
		params := make([]string, len(tmpl.Variables))
		for i, name := range tmpl.Variables {
			params[i] = renderPlaceholders(content.VariableValues[name], rec, nil)
			if params[i] == "" {
				params[i], _ = lookupVariable(rec, name)
			}
		}
		return sendadapter.Payload{
			TemplateName: tmpl.Name,
			Language:     tmpl.Language,
			Parameters:   params,
			Body:         renderPositional(tmpl.Body, params),
		}
	}
}

// renderPlaceholders replaces {{name}} style placeholders with recipient values. Unknown
// placeholders are left as written.
func renderPlaceholders(text string, rec models.Recipient, escape func(string) string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		v, ok := lookupVariable(rec, name)
		if !ok {
			return m
		}
		if escape != nil {
			return escape(v)
		}
		return v
	})
}

func lookupVariable(rec models.Recipient, name string) (string, bool) {
	switch strings.ToLower(name) {
	case "name":
		return rec.Name, true
	case "email":
		return rec.Email, true
	case "phone":
		return rec.Phone, true
	case "id", "recipientid":
		return rec.ID, true
	}
	if v, ok := rec.Variables[name]; ok {
		return v, true
	}
	v, ok := rec.Variables[strings.ToLower(name)]
	return v, ok
}

// renderPositional fills {{1}}..{{n}} from params
func renderPositional(body string, params []string) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(m string) string {
		n, err := strconv.Atoi(placeholderPattern.FindStringSubmatch(m)[1])
		if err != nil || n < 1 || n > len(params) {
			return m
		}
		return params[n-1]
	})
}

// rewriteLinks points every absolute http(s) href through the click tracker
func rewriteLinks(body string, track func(target string) string) string {
	return hrefPattern.ReplaceAllStringFunc(body, func(m string) string {
		sub := hrefPattern.FindStringSubmatch(m)
		raw := sub[2]
		if raw == "" {
			raw = sub[3]
		}
		target := html.UnescapeString(strings.TrimSpace(raw))
		if !isHTTPURL(target) {
			return m
		}
		return `href="` + html.EscapeString(track(target)) + `"`
	})
}

// injectOpenPixel adds the tracking image before </body>, or at the end without one
func injectOpenPixel(body, pixelURL string) string {
	img := `<img src="` + html.EscapeString(pixelURL) + `" width="1" height="1" alt="" style="display:none" />`
	if loc := bodyClosePattern.FindStringIndex(body); loc != nil {
		return body[:loc[0]] + img + body[loc[0]:]
	}
	return body + img
}
