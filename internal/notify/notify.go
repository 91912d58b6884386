// Package notify delivers finished run reports to an operator webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"toplist-tracker-go/internal/config"
	"toplist-tracker-go/internal/report"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxRetries = 3

// Notifier receives every finished run report.
type Notifier interface {
	Notify(ctx context.Context, rep *report.RunReport) error
}

// NopNotifier drops reports. It is used when no webhook is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *report.RunReport) error { return nil }

// WebhookNotifier posts reports as JSON, rate limited and retried on throttling and server errors.
type WebhookNotifier struct {
	client  *resty.Client
	url     string
	logger  *zap.Logger
	limiter *rate.Limiter
	// backoff is the first retry delay; it doubles on every attempt.
	backoff time.Duration
}

var _ Notifier = (*WebhookNotifier)(nil)

// New returns a WebhookNotifier for cfg, or a NopNotifier when no URL is set.
func New(cfg *config.Notify, logger *zap.Logger) Notifier {
	if cfg.WebhookURL == "" {
		logger.Info("No webhook configured, run reports are only logged")
		return NopNotifier{}
	}
	return NewWebhookNotifier(cfg, logger)
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg *config.Notify, logger *zap.Logger) *WebhookNotifier {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return &WebhookNotifier{
		client:  resty.New().SetTimeout(10 * time.Second),
		url:     cfg.WebhookURL,
		logger:  logger.Named("notify"),
		limiter: rate.NewLimiter(limit, burst),
		backoff: time.Second,
	}
}

// Notify posts rep to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, rep *report.RunReport) error {
	req := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(rep)
	if _, err := n.doRequest(ctx, http.MethodPost, req); err != nil {
		return fmt.Errorf("failed to deliver %s report %s: %w", rep.Kind, rep.ID, err)
	}
	n.logger.Debug("Report delivered", zap.String("run_id", rep.ID), zap.String("status", string(rep.Status)))
	return nil
}

// doRequest executes req with rate limiting and retry logic.
func (n *WebhookNotifier) doRequest(ctx context.Context, method string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		resp, err = req.Execute(method, n.url)
		if err == nil && !resp.IsError() {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			err = fmt.Errorf("webhook responded %s", resp.Status())
		} else {
			// Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, err
		}

		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * n.backoff
		}

		n.logger.Warn("Webhook delivery failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
