package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"magicworld/backend/internal/broadcast"
	"magicworld/backend/internal/config"
	"magicworld/backend/internal/db"
	"magicworld/backend/internal/integrations"
	"magicworld/backend/internal/logging"
	"magicworld/backend/internal/models"
	"magicworld/backend/internal/payment"
	"magicworld/backend/internal/repository"
	"magicworld/backend/internal/ticketing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()
	logger = logger.With("service", "worker")
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db error", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.New(pool)
	mailer := integrations.NewEmailSender(integrations.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	publisher, err := broadcast.NewPublisher(cfg.RedisURL, logger)
	if err != nil {
		logger.Error("broadcast error", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// Availability only reads the catalog and the sales ledger, so the
	// worker never needs a gateway.
	payments := payment.NewService(repo, repo, repo, nil, repo, logger)

	w := &worker{
		repo:      repo,
		mailer:    mailer,
		publisher: publisher,
		payments:  payments,
		qrSecret:  cfg.QRSecret,
		logger:    logger,
	}

	logger.Info("worker_started")
	for {
		if err := repo.RequeueStaleProcessing(ctx, 10*time.Minute); err != nil {
			logger.Warn("requeue_stale_jobs_error", "error", err)
		}
		jobs, err := repo.FetchDueJobs(ctx, 100)
		if err != nil {
			logger.Error("fetch_jobs_error", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if len(jobs) == 0 {
			time.Sleep(10 * time.Second)
			continue
		}

		for _, job := range jobs {
			if err := w.handleJob(ctx, job); err != nil {
				logger.Error("job_failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

type worker struct {
	repo      *repository.Repository
	mailer    *integrations.EmailSender
	publisher *broadcast.Publisher
	payments  *payment.Service
	qrSecret  string
	logger    *slog.Logger
}

func (w *worker) handleJob(ctx context.Context, job models.SideEffectJob) error {
	w.logger.Info("job_processing", "job_id", job.ID, "kind", job.Kind, "run_at", job.RunAt)

	var runErr error
	switch job.Kind {
	case models.JobKindPurchaseEmail:
		runErr = w.sendPurchaseEmail(ctx, job)
	case models.JobKindAvailabilityBroadcast:
		runErr = w.broadcastAvailability(ctx, job)
	default:
		return w.repo.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, job.Attempts+1, "unknown job kind", nil)
	}

	if runErr != nil {
		attempts := job.Attempts + 1
		if attempts >= 3 {
			return w.repo.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, attempts, runErr.Error(), nil)
		}
		delay := time.Duration(1<<attempts) * time.Minute
		nextRun := time.Now().Add(delay)
		return w.repo.UpdateJobStatus(ctx, job.ID, models.JobStatusPending, attempts, runErr.Error(), &nextRun)
	}

	if err := w.repo.UpdateJobStatus(ctx, job.ID, models.JobStatusDone, job.Attempts, "", nil); err != nil {
		return err
	}
	w.logger.Info("job_done", "job_id", job.ID, "kind", job.Kind)
	return nil
}

type purchaseEmailPayload struct {
	PurchaseID string `json:"purchaseId"`
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
}

func (w *worker) sendPurchaseEmail(ctx context.Context, job models.SideEffectJob) error {
	var payload purchaseEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.PurchaseID == "" {
		return fmt.Errorf("payload is missing purchaseId")
	}

	purchase, err := w.repo.GetPurchase(ctx, payload.PurchaseID)
	if err != nil {
		return fmt.Errorf("load purchase: %w", err)
	}
	buyer, err := w.repo.GetBuyer(ctx, purchase.BuyerID)
	if err != nil {
		return fmt.Errorf("load buyer: %w", err)
	}
	to := buyer.Email
	if payload.Email != "" {
		to = payload.Email
	}
	firstName := buyer.FirstName
	if payload.FirstName != "" {
		firstName = payload.FirstName
	}

	nonce, err := ticketing.NewNonce(16)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	token, err := ticketing.SignQRPayload(w.qrSecret, ticketing.BuildPayload(purchase.ID, purchase.BuyerID, purchase.VisitDate, time.Now().UTC(), nonce))
	if err != nil {
		return fmt.Errorf("sign qr: %w", err)
	}
	png, err := ticketing.GenerateQRImagePNG(token, 256)
	if err != nil {
		return fmt.Errorf("render qr: %w", err)
	}

	body := integrations.PurchaseEmailBody(
		firstName,
		purchase.ID,
		purchase.VisitDate.Format("2006-01-02"),
		purchase.Total.StringFixed(2),
		purchase.Currency,
	)
	subject := fmt.Sprintf("Your tickets for %s", purchase.VisitDate.Format("2006-01-02"))
	if err := w.mailer.Send(to, subject, body, png, "ticket-qr.png"); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	w.logger.Info("purchase_email_sent", "purchase_id", purchase.ID)
	return nil
}

type availabilityBroadcastPayload struct {
	Date string `json:"date"`
}

func (w *worker) broadcastAvailability(ctx context.Context, job models.SideEffectJob) error {
	var payload availabilityBroadcastPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		return fmt.Errorf("payload date: %w", err)
	}

	tickets, err := w.payments.Availability(ctx, date)
	if err != nil {
		return fmt.Errorf("availability: %w", err)
	}
	if err := w.publisher.PublishAvailability(ctx, payload.Date, tickets); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	w.logger.Info("availability_broadcast_sent", "date", payload.Date, "ticket_types", len(tickets))
	return nil
}
