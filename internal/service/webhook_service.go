package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultWebhookRetryIntervals are the waits between delivery attempts.
var DefaultWebhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// webhookLogSaveTimeout bounds the final log write of an interrupted delivery.
const webhookLogSaveTimeout = 5 * time.Second

// EventPaymentUpdate is the only event type sent today.
const EventPaymentUpdate = "PAYMENT_UPDATE"

// Webhook request headers.
const (
	HeaderSignature = "X-Settlement-Signature"
	HeaderTimestamp = "X-Settlement-Timestamp"
	HeaderEvent     = "X-Settlement-Event"
)

// WebhookPayload is the JSON body POSTed to the merchant's webhook_url.
type WebhookPayload struct {
	EventType string              `json:"event_type"`
	Data      domain.PaymentEvent `json:"data"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookNotifier implements ports.PaymentNotifier by POSTing signed events
// to the merchant. Deliveries run in the background and are logged per attempt.
type WebhookNotifier struct {
	merchantRepo ports.MerchantRepository
	logRepo      ports.WebhookLogRepository
	vault        ports.Vault
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	intervals    []time.Duration
	metrics      *metrics.Metrics
	log          zerolog.Logger
	wg           sync.WaitGroup

	// stop is cancelled by Close and aborts pending retries.
	stop context.Context
	halt context.CancelFunc
}

// NewWebhookNotifier creates a webhook notifier. Nil intervals use DefaultWebhookRetryIntervals.
func NewWebhookNotifier(
	merchantRepo ports.MerchantRepository,
	logRepo ports.WebhookLogRepository,
	vault ports.Vault,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	intervals []time.Duration,
	m *metrics.Metrics,
	log zerolog.Logger,
) *WebhookNotifier {
	if intervals == nil {
		intervals = DefaultWebhookRetryIntervals
	}
	stop, halt := context.WithCancel(context.Background())
	return &WebhookNotifier{
		merchantRepo: merchantRepo,
		logRepo:      logRepo,
		vault:        vault,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		intervals:    intervals,
		metrics:      m,
		log:          log,
		stop:         stop,
		halt:         halt,
	}
}

// PaymentChanged snapshots p and delivers it asynchronously. The delivery
// outlives the caller's context but not Close.
func (s *WebhookNotifier) PaymentChanged(ctx context.Context, p *domain.Payment) {
	event := domain.NewPaymentEvent(p, time.Now().UTC())
	if s.stop.Err() != nil {
		s.log.Warn().Str("payment_id", event.PaymentID.String()).Msg("webhook: notifier closed, event dropped")
		return
	}

	deliveryCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unhook := context.AfterFunc(s.stop, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer unhook()
		s.deliver(deliveryCtx, event)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (s *WebhookNotifier) Wait() {
	s.wg.Wait()
}

// Close aborts pending retries, records the interrupted deliveries as
// failed and waits for them to return.
func (s *WebhookNotifier) Close() {
	s.halt()
	s.wg.Wait()
}

func (s *WebhookNotifier) deliver(ctx context.Context, event domain.PaymentEvent) {
	logger := s.log.With().Str("payment_id", event.PaymentID.String()).Str("status", string(event.Status)).Logger()

	merchant, err := s.merchantRepo.GetByID(ctx, event.MerchantID)
	if err != nil {
		logger.Error().Err(err).Msg("webhook: failed to fetch merchant")
		return
	}
	if merchant == nil || merchant.WebhookURL == nil || *merchant.WebhookURL == "" {
		logger.Debug().Msg("webhook: no webhook URL configured, skipping")
		return
	}

	secret, err := s.vault.Decrypt(merchant.WebhookSecret)
	if err != nil {
		logger.Error().Err(err).Msg("webhook: failed to decrypt merchant webhook secret")
		return
	}

	body, err := json.Marshal(WebhookPayload{EventType: EventPaymentUpdate, Data: event})
	if err != nil {
		logger.Error().Err(err).Msg("webhook: failed to marshal payload")
		return
	}

	now := time.Now().UTC()
	entry := &domain.WebhookDeliveryLog{
		ID:          uuid.New(),
		PaymentID:   event.PaymentID,
		MerchantID:  event.MerchantID,
		EventStatus: event.Status,
		WebhookURL:  *merchant.WebhookURL,
		Payload:     string(body),
		Status:      domain.WebhookStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.logRepo.Create(ctx, entry); err != nil {
		logger.Warn().Err(err).Msg("webhook: failed to record delivery log")
	}

	maxAttempts := len(s.intervals) + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := s.post(ctx, entry.WebhookURL, secret, body)

		entry.Attempt = attempt
		entry.UpdatedAt = time.Now().UTC()
		entry.HTTPStatus = nil
		if status != 0 {
			code := status
			entry.HTTPStatus = &code
		}

		if err == nil {
			entry.Status = domain.WebhookStatusDelivered
			entry.NextRetryAt = nil
			entry.LastError = nil
			s.saveLog(ctx, entry, logger)
			s.metrics.WebhookDelivery(true)
			logger.Info().Int("attempt", attempt).Int("http_status", status).Msg("webhook: delivered successfully")
			return
		}

		msg := err.Error()
		entry.LastError = &msg
		if attempt == maxAttempts {
			break
		}

		wait := s.intervals[attempt-1]
		next := entry.UpdatedAt.Add(wait)
		entry.NextRetryAt = &next
		s.saveLog(ctx, entry, logger)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("webhook: delivery failed, retrying")

		if err := sleepCtx(ctx, wait); err != nil {
			break
		}
	}

	entry.Status = domain.WebhookStatusFailed
	entry.NextRetryAt = nil
	if ctx.Err() != nil {
		msg := "delivery interrupted by shutdown"
		if entry.LastError != nil {
			msg += ": " + *entry.LastError
		}
		entry.LastError = &msg
		entry.UpdatedAt = time.Now().UTC()

		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookLogSaveTimeout)
		defer cancel()
		s.saveLog(saveCtx, entry, logger)
		s.metrics.WebhookDelivery(false)
		logger.Warn().Int("attempts", entry.Attempt).Msg("webhook: delivery interrupted by shutdown")
		return
	}
	s.saveLog(ctx, entry, logger)
	s.metrics.WebhookDelivery(false)
	logger.Error().Int("attempts", entry.Attempt).Msg("webhook: all retry attempts exhausted")
}

// post sends one signed request. Any non-2xx response is an error.
func (s *WebhookNotifier) post(ctx context.Context, url, secret string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, EventPaymentUpdate)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, s.sigSvc.Sign(secret, SigningInput(ts, body)))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (s *WebhookNotifier) saveLog(ctx context.Context, entry *domain.WebhookDeliveryLog, logger zerolog.Logger) {
	if err := s.logRepo.Update(ctx, entry); err != nil {
		logger.Warn().Err(err).Msg("webhook: failed to update delivery log")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
