// Package consumer holds the message handlers that settle the asynchronous
// half of the pipeline: charge compensation, payment application and
// reservation timeouts. Every handler is written to survive redelivery.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/heartapi/heartgate/internal/mq"
	"github.com/heartapi/heartgate/internal/pkg/logger"
	"github.com/heartapi/heartgate/internal/pkg/metrics"
	"github.com/heartapi/heartgate/internal/service"
)

// CompensationConsumer reverses quota charges for calls that did not reach a
// successful upstream response. A per-charge marker makes the rollback apply
// at most once across redeliveries.
type CompensationConsumer struct {
	ledger  service.QuotaLedger
	markers service.MarkerStore
	ttl     time.Duration
}

func NewCompensationConsumer(ledger service.QuotaLedger, markers service.MarkerStore) *CompensationConsumer {
	return &CompensationConsumer{
		ledger:  ledger,
		markers: markers,
		ttl:     24 * time.Hour,
	}
}

// Handle applies one compensation message. Returning an error leaves the
// message pending for redelivery.
func (c *CompensationConsumer) Handle(ctx context.Context, msg mq.Message) error {
	var m model.CompensationMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		// Malformed payloads can never succeed; log and ack.
		logger.Get().Error("drop malformed compensation message", "error", err, "msg_id", msg.ID)
		metrics.CompensationApplied.WithLabelValues("malformed").Inc()
		return nil
	}
	if m.ChargeID == "" || m.UserID <= 0 || m.InterfaceID <= 0 {
		logger.Get().Error("drop incomplete compensation message", "msg_id", msg.ID)
		metrics.CompensationApplied.WithLabelValues("malformed").Inc()
		return nil
	}

	fresh, err := c.markers.SetNX(ctx, service.CompensationKey(m.ChargeID), service.MarkerValue, c.ttl)
	if err != nil {
		return fmt.Errorf("claim compensation marker: %w", err)
	}
	if !fresh {
		metrics.CompensationApplied.WithLabelValues("duplicate").Inc()
		logger.Get().Info("compensation already applied", "charge_id", m.ChargeID)
		return nil
	}

	if err := c.ledger.Rollback(ctx, m.UserID, m.InterfaceID); err != nil {
		// Release the claim so the redelivery can try again.
		if delErr := c.markers.Del(ctx, service.CompensationKey(m.ChargeID)); delErr != nil {
			logger.Get().Error("release compensation marker", "error", delErr, "charge_id", m.ChargeID)
		}
		metrics.CompensationApplied.WithLabelValues("error").Inc()
		return fmt.Errorf("rollback charge %s: %w", m.ChargeID, err)
	}

	metrics.CompensationApplied.WithLabelValues("ok").Inc()
	logger.Get().Info("compensated failed call",
		"charge_id", m.ChargeID, "user_id", m.UserID, "interface_id", m.InterfaceID)
	return nil
}
