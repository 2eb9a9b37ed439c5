package bootstrap

import (
	"github.com/ArowuTest/bulkcomms-backend/internal/config"
	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/pkg/sendadapter"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BuildAdapters creates one send adapter per channel, each behind its own circuit breaker
func BuildAdapters(cfg *config.Config, log logrus.FieldLogger) sendadapter.Registry {
	var email, whatsapp sendadapter.Adapter
	if cfg.Email.Mock {
		log.Warn("Email channel uses the mock adapter")
		email = sendadapter.NewMockAdapter(string(models.ChannelEmail))
	} else {
		email = sendadapter.NewEmailAdapter(sendadapter.EmailConfig{
			Host:      cfg.Email.SMTPHost,
			Port:      cfg.Email.SMTPPort,
			Username:  cfg.Email.Username,
			Password:  cfg.Email.Password,
			FromName:  cfg.Email.FromName,
			FromEmail: cfg.Email.FromEmail,
		})
	}
	if cfg.WhatsApp.Mock {
		log.Warn("WhatsApp channel uses the mock adapter")
		whatsapp = sendadapter.NewMockAdapter(string(models.ChannelWhatsApp))
	} else {
		whatsapp = sendadapter.NewWhatsAppAdapter(sendadapter.WhatsAppConfig{
			BaseURL:       cfg.WhatsApp.BaseURL,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
		})
	}

	onStateChange := func(name string, from, to gobreaker.State) {
		log.WithFields(logrus.Fields{"adapter": name, "from": from.String(), "to": to.String()}).Warn("Send adapter circuit changed state")
	}
	wrap := func(name string, inner sendadapter.Adapter) sendadapter.Adapter {
		return sendadapter.NewBreaker(inner, sendadapter.BreakerSettings{
			Name:                name,
			ConsecutiveFailures: uint32(cfg.Dispatch.BreakerFailures),
			Cooldown:            cfg.Dispatch.BreakerCooldown,
			OnStateChange:       onStateChange,
		})
	}

	return sendadapter.Registry{
		string(models.ChannelEmail):    wrap("email", email),
		string(models.ChannelWhatsApp): wrap("whatsapp", whatsapp),
	}
}
