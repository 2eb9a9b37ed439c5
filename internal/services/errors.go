package services

import "errors"

var (
	// ErrNoRecipients is returned when the resolver yields an empty recipient set
	ErrNoRecipients = errors.New("campaign has no recipients")
	// ErrBatchNotPending is returned when a batch was already claimed by another worker
	ErrBatchNotPending = errors.New("batch is not pending")
	// ErrInvalidTransition is returned for a status change the campaign lifecycle does not allow
	ErrInvalidTransition = errors.New("invalid campaign status transition")
	// ErrCampaignNotFound is returned when a campaign id matches nothing
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrInvalidCampaign is returned when a submission is missing required content
	ErrInvalidCampaign = errors.New("invalid campaign")
	// ErrTemplateNotFound is returned when a WhatsApp campaign names an unknown template
	ErrTemplateNotFound = errors.New("whatsapp template not found")
)

// ErrCampaignPaused is returned when a worker picks up a batch of a paused campaign.
// The batch stays pending until the campaign is resumed.
var ErrCampaignPaused = errors.New("campaign is paused")
