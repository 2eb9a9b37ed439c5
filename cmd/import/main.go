// Command import submits a campaign whose audience is read from a CSV file.
//
//	import --csv audience.csv --name "March promo" --channel email --subject "Hi {{name}}" --html body.html
//	import --csv audience.csv --name "Reminder" --channel whatsapp --template payment_reminder --var customer_name={{name}}
//
// Batches are published to RabbitMQ when it is the configured queue. Otherwise they are
// stored as pending and the API server's sweeper queues them.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/bootstrap"
	"github.com/ArowuTest/bulkcomms-backend/internal/config"
	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/queue"
	"github.com/ArowuTest/bulkcomms-backend/internal/services"
	"github.com/ArowuTest/bulkcomms-backend/internal/utils"
	"github.com/ArowuTest/bulkcomms-backend/pkg/logger"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

type options struct {
	csvPath   string
	name      string
	channel   string
	subject   string
	htmlPath  string
	fromName  string
	template  string
	language  string
	vars      map[string]string
	batchSize int
	dryRun    bool
}

// deferredPublisher leaves batches pending for the server sweeper
type deferredPublisher struct{}

func (deferredPublisher) Publish(context.Context, queue.BatchJob) error { return nil }

func main() {
	opts := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"})
	if err != nil {
		logrus.Fatalf("Failed to initialise logger: %v", err)
	}

	if err := run(context.Background(), cfg, opts, log); err != nil {
		log.WithError(err).Fatal("Import failed")
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.csvPath, "csv", "", "path of the audience CSV file")
	flag.StringVar(&opts.name, "name", "", "campaign name")
	flag.StringVar(&opts.channel, "channel", string(models.ChannelEmail), "email or whatsapp")
	flag.StringVar(&opts.subject, "subject", "", "email subject")
	flag.StringVar(&opts.htmlPath, "html", "", "path of the email HTML body")
	flag.StringVar(&opts.fromName, "from-name", "", "email sender name")
	flag.StringVar(&opts.template, "template", "", "WhatsApp template name")
	flag.StringVar(&opts.language, "language", "", "WhatsApp template language")
	flag.StringToStringVar(&opts.vars, "var", nil, "WhatsApp template variable, variable=value")
	flag.IntVar(&opts.batchSize, "batch-size", 0, "recipients per batch, 0 uses the configured size")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "parse the CSV and report without submitting")
	flag.Parse()

	if opts.csvPath == "" || opts.name == "" {
		fmt.Fprintln(os.Stderr, "--csv and --name are required")
		flag.Usage()
		os.Exit(2)
	}
	return opts
}

func run(ctx context.Context, cfg *config.Config, opts options, log *logrus.Logger) error {
	// 1. Read the audience
	raw, err := os.ReadFile(opts.csvPath)
	if err != nil {
		return fmt.Errorf("failed to read csv: %w", err)
	}
	parsed, err := utils.ImportRecipientsCSV(strings.NewReader(string(raw)), cfg.WhatsApp.DefaultCountryCode)
	if err != nil {
		return err
	}
	for _, rowErr := range parsed.Errors {
		log.Warn(rowErr)
	}
	log.WithFields(logrus.Fields{
		"rows":       parsed.TotalRows,
		"recipients": len(parsed.Recipients),
		"skipped":    len(parsed.Errors),
	}).Info("Audience parsed")

	req, err := buildRequest(opts, parsed.Recipients)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if opts.dryRun {
		return nil
	}

	// 2. Connect storage and the queue
	if cfg.Storage.Driver == "memory" {
		return fmt.Errorf("in-memory storage is not shared with the API server, configure MongoDB")
	}
	repos, err := bootstrap.OpenStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repos.Close(context.Background())

	var publisher services.JobPublisher = deferredPublisher{}
	if cfg.Queue.Driver == "rabbitmq" {
		q, err := bootstrap.OpenQueue(cfg, log)
		if err != nil {
			return err
		}
		defer q.Close()
		publisher = q
	} else {
		log.Info("Batches will be queued by the API server sweeper")
	}

	// 3. Submit
	svc := services.NewCampaignService(
		repos.Campaigns, repos.Batches, repos.Messages, repos.Tracking,
		services.NewRecipientResolver(cfg.WhatsApp.DefaultCountryCode),
		services.NewRecipientBatcher(repos.Campaigns, repos.Batches, cfg.Dispatch.BatchSize, log),
		publisher, log,
	)
	submitCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	campaign, err := svc.Submit(submitCtx, req)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"campaignId": campaign.ID.Hex(),
		"batches":    campaign.TotalBatches,
		"recipients": campaign.TotalRecipients,
	}).Info("Campaign submitted")
	return nil
}

func buildRequest(opts options, recipients []models.Recipient) (services.SubmitCampaignRequest, error) {
	req := services.SubmitCampaignRequest{
		Name:      opts.name,
		Channel:   models.Channel(opts.channel),
		Audience:  services.RecipientCriteria{Recipients: recipients},
		BatchSize: opts.batchSize,
		CreatedBy: "cli",
	}
	switch req.Channel {
	case models.ChannelEmail:
		if opts.htmlPath == "" {
			return req, fmt.Errorf("--html is required for email campaigns")
		}
		body, err := os.ReadFile(opts.htmlPath)
		if err != nil {
			return req, fmt.Errorf("failed to read html body: %w", err)
		}
		req.Email = &models.EmailContent{Subject: opts.subject, HTML: string(body), FromName: opts.fromName}
	case models.ChannelWhatsApp:
		req.WhatsApp = &models.WhatsAppContent{
			TemplateName:   opts.template,
			Language:       opts.language,
			VariableValues: opts.vars,
		}
	}
	return req, nil
}
