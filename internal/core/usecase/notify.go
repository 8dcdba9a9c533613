package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
	"github.com/earlybird-ai/finledger/internal/core/ports"
)

type NotifierConfig struct {
	Topic     string
	MarkerTTL time.Duration
}

func (c NotifierConfig) normalize() NotifierConfig {
	out := c
	if out.Topic == "" {
		out.Topic = "ledger.updates"
	}
	if out.MarkerTTL <= 0 {
		out.MarkerTTL = time.Hour
	}
	return out
}

// PublishOnceNotifier suppresses duplicate downstream notifications by
// test-and-setting a marker in the claim store before touching the
// transport. Subscribers see at most one notification per fingerprint
// per marker window, however often the pipeline is retried.
type PublishOnceNotifier struct {
	markers   ports.ClaimStore
	transport ports.NotificationPublisher
	logger    *slog.Logger
	cfg       NotifierConfig
}

func NewPublishOnceNotifier(markers ports.ClaimStore, transport ports.NotificationPublisher, logger *slog.Logger, cfg NotifierConfig) *PublishOnceNotifier {
	return &PublishOnceNotifier{
		markers:   markers,
		transport: transport,
		logger:    logger,
		cfg:       cfg.normalize(),
	}
}

// PublishOnce reports whether a notification was actually emitted.
func (n *PublishOnceNotifier) PublishOnce(ctx context.Context, fingerprint string, entry domain.LedgerEntry) (bool, error) {
	key := publishMarkerPrefix + fingerprint

	res, err := n.markers.TryClaim(ctx, key, n.cfg.MarkerTTL)
	if err != nil {
		return false, fmt.Errorf("set publish marker: %w", err)
	}
	if !res.Claimed {
		n.logger.Debug("notification_suppressed", "fingerprint", shortFP(fingerprint))
		return false, nil
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		n.releaseMarker(ctx, key, fingerprint)
		return false, fmt.Errorf("marshal notification payload: %w", err)
	}
	if err := n.transport.Publish(ctx, n.cfg.Topic, payload); err != nil {
		// Clearing the marker keeps a retry possible; the upstream
		// caller decides whether to retry the unit of work.
		n.releaseMarker(ctx, key, fingerprint)
		return false, fmt.Errorf("publish notification: %w", err)
	}

	if err := n.markers.Complete(ctx, key, "", n.cfg.MarkerTTL); err != nil {
		// The claim itself already suppresses duplicates until its TTL.
		n.logger.Warn("publish_marker_persist_failed", "fingerprint", shortFP(fingerprint), "error", err)
	}
	return true, nil
}

func (n *PublishOnceNotifier) releaseMarker(ctx context.Context, key, fingerprint string) {
	if err := n.markers.Release(ctx, key); err != nil {
		n.logger.Warn("publish_marker_release_failed", "fingerprint", shortFP(fingerprint), "error", err)
	}
}
