package crmpoller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bookstore-orders/internal/ports"
	"bookstore-orders/internal/shared/contracts"
	"bookstore-orders/internal/shared/logger"
	"bookstore-orders/internal/shared/rabbitmq"
	"bookstore-orders/internal/shared/salesforce"
)

// Poller periodically asks the CRM for cases modified since the last
// successful check and republishes them as status updates.
type Poller struct {
	crm      *salesforce.Client
	pub      ports.Publisher
	interval time.Duration
	logger   *logger.Logger

	// watermark is the last successfully checked time. It moves only after a
	// successful query, and it moves as a whole: a publish failure for some
	// records does not roll it back, so those records are never re-fetched
	// (at-most-once delivery downstream).
	watermark time.Time
}

// New creates a Poller. The watermark starts at now: only changes after
// process start are relayed.
func New(crm *salesforce.Client, pub ports.Publisher, interval time.Duration, logger *logger.Logger) *Poller {
	return &Poller{
		crm:       crm,
		pub:       pub,
		interval:  interval,
		logger:    logger,
		watermark: time.Now().UTC(),
	}
}

// Run ticks at the fixed interval until ctx is cancelled. Query failures are
// logged and the loop continues at the same interval, no backoff.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick performs one poll cycle.
func (p *Poller) Tick(ctx context.Context, now time.Time) {
	records, err := p.crm.CasesModifiedSince(ctx, p.watermark)
	if err != nil {
		if errors.Is(err, salesforce.ErrUnauthorized) {
			// drop the cached token so the next tick re-authenticates
			p.crm.InvalidateToken()
		}
		p.logger.Error(ctx, "crm_poll_failed", "CRM modified-since query failed", err)
		return
	}

	// advance only after a successful query
	p.watermark = now

	published := 0
	for _, rec := range records {
		update := contracts.StatusUpdateMessage{
			ID:          rec.ID,
			Status:      rec.Status,
			Description: rec.Description,
		}
		body, err := json.Marshal(update)
		if err != nil {
			p.logger.Error(ctx, "status_update_encode_failed", "Failed to marshal status update", err)
			continue
		}
		if err := p.pub.Publish(rabbitmq.QueueOrderUpdates, body, false); err != nil {
			p.logger.Error(ctx, "status_update_publish_failed", "Failed to publish status update", err)
			continue
		}
		published++
	}

	if len(records) > 0 {
		p.logger.Info(ctx, "crm_poll_completed", "Polled CRM for modified cases", map[string]any{
			"modified":  len(records),
			"published": published,
		})
	}
}

// Watermark returns the current watermark.
func (p *Poller) Watermark() time.Time { return p.watermark }
