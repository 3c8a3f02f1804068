package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/heartapi/heartgate/internal/mq"
	"github.com/heartapi/heartgate/internal/pkg/logger"
	"github.com/heartapi/heartgate/internal/pkg/metrics"
	"github.com/heartapi/heartgate/internal/repository"
	"github.com/heartapi/heartgate/internal/service"
)

// PaymentConsumer applies payment-success messages: flips the order to PAID
// and grants the purchased quota. The consume marker is the single-grant
// gate: it is written only after the grant landed, so a redelivery that
// finds the order PAID but the marker missing knows the grant may not have
// been applied and runs it again. Grant is therefore at-least-once and must
// stay additive-idempotent per charge from the marker's point of view.
type PaymentConsumer struct {
	orders  service.OrderStore
	ledger  service.QuotaLedger
	markers service.MarkerStore
	ttl     time.Duration
}

func NewPaymentConsumer(orders service.OrderStore, ledger service.QuotaLedger, markers service.MarkerStore, ttl time.Duration) *PaymentConsumer {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PaymentConsumer{orders: orders, ledger: ledger, markers: markers, ttl: ttl}
}

func (c *PaymentConsumer) Handle(ctx context.Context, msg mq.Message) error {
	var m model.PaymentSuccessMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		logger.Get().Error("drop malformed payment message", "error", err, "msg_id", msg.ID)
		return nil
	}
	if m.OutTradeNo == "" {
		logger.Get().Error("drop payment message without trade number", "msg_id", msg.ID)
		return nil
	}

	// The producer-side send marker has served its purpose once the message
	// arrives.
	if err := c.markers.Del(ctx, service.SendPaySuccessKey(m.OutTradeNo)); err != nil {
		logger.Get().Warn("clear send marker", "error", err, "out_trade_no", m.OutTradeNo)
	}

	consumed, err := c.markers.Get(ctx, service.ConsumePaySuccessKey(m.OutTradeNo))
	if err != nil {
		return fmt.Errorf("read consume marker: %w", err)
	}
	if consumed != "" {
		logger.Get().Info("payment already applied", "out_trade_no", m.OutTradeNo)
		return nil
	}

	order, err := c.orders.GetBySn(ctx, m.OutTradeNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			logger.Get().Error("payment for unknown order", "out_trade_no", m.OutTradeNo)
			return nil
		}
		return fmt.Errorf("load order %s: %w", m.OutTradeNo, err)
	}
	if order.Status == model.OrderTimeout {
		// Paid after the reservation lapsed; settlement is a refund
		// problem, not a grant.
		logger.Get().Warn("payment arrived after timeout", "out_trade_no", m.OutTradeNo)
		return nil
	}

	flipped, err := c.orders.MarkPaid(ctx, m.OutTradeNo)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if flipped {
		metrics.OrdersTotal.WithLabelValues("paid").Inc()
	}

	// No consume marker yet, so the grant is still owed — also when a prior
	// delivery flipped the order and then failed before granting.
	if err := c.ledger.Grant(ctx, order.UserID, order.InterfaceID, order.Count); err != nil {
		return fmt.Errorf("grant quota for %s: %w", m.OutTradeNo, err)
	}

	if err := c.markers.Set(ctx, service.ConsumePaySuccessKey(m.OutTradeNo), service.MarkerValue, c.ttl); err != nil {
		// Without the marker a redelivery would grant again; force the
		// redelivery now, while the failure is fresh.
		return fmt.Errorf("write consume marker for %s: %w", m.OutTradeNo, err)
	}
	logger.Get().Info("payment applied",
		"out_trade_no", m.OutTradeNo, "user_id", order.UserID, "count", order.Count)
	return nil
}
