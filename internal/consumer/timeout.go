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

// PaymentChecker asks the payment provider whether a trade completed. Used
// as a last look before expiring a reservation; optional.
type PaymentChecker interface {
	WasPaid(ctx context.Context, outTradeNo string) (bool, error)
}

// TimeoutConsumer expires reservations whose delayed message came due while
// the order is still NOT_PAID: the order moves to TIMEOUT and the reserved
// stock goes back. The status flip and the stock return are separate
// obligations — the guarded transition claims the expiry, and a per-order
// marker tracks the return, so a redelivery that finds the order already
// TIMEOUT still retries the return until it lands.
type TimeoutConsumer struct {
	orders   service.OrderStore
	registry service.InterfaceRegistry
	markers  service.MarkerStore
	checker  PaymentChecker // may be nil
}

func NewTimeoutConsumer(orders service.OrderStore, registry service.InterfaceRegistry, markers service.MarkerStore, checker PaymentChecker) *TimeoutConsumer {
	return &TimeoutConsumer{orders: orders, registry: registry, markers: markers, checker: checker}
}

func (c *TimeoutConsumer) Handle(ctx context.Context, msg mq.Message) error {
	var m model.OrderExpireMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		logger.Get().Error("drop malformed expire message", "error", err, "msg_id", msg.ID)
		return nil
	}
	if m.OrderSn == "" {
		logger.Get().Error("drop expire message without order number", "msg_id", msg.ID)
		return nil
	}

	order, err := c.orders.GetBySn(ctx, m.OrderSn)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			logger.Get().Warn("expire message for unknown order", "order_sn", m.OrderSn)
			return nil
		}
		return fmt.Errorf("load order %s: %w", m.OrderSn, err)
	}

	switch order.Status {
	case model.OrderPaid:
		return nil

	case model.OrderNotPaid:
		if c.checker != nil {
			paid, err := c.checker.WasPaid(ctx, m.OrderSn)
			if err != nil {
				logger.Get().Warn("payment status lookup failed, expiring anyway",
					"error", err, "order_sn", m.OrderSn)
			} else if paid {
				// The success message is in flight; let the payment
				// consumer settle it.
				logger.Get().Info("reservation due but trade completed", "order_sn", m.OrderSn)
				return nil
			}
		}

		flipped, err := c.orders.MarkTimedOut(ctx, m.OrderSn)
		if err != nil {
			return fmt.Errorf("mark order timed out: %w", err)
		}
		if !flipped {
			// Lost the race; see who won before touching stock.
			order, err = c.orders.GetBySn(ctx, m.OrderSn)
			if err != nil {
				return fmt.Errorf("reload order %s: %w", m.OrderSn, err)
			}
			if order.Status != model.OrderTimeout {
				return nil
			}
		} else {
			metrics.OrdersTotal.WithLabelValues("timeout").Inc()
			logger.Get().Info("reservation expired", "order_sn", m.OrderSn, "count", order.Count)
		}
	}

	// The order is TIMEOUT; the stock return may still be owed — also when
	// a prior delivery flipped it and then failed to return the stock.
	return c.returnStock(ctx, order)
}

func (c *TimeoutConsumer) returnStock(ctx context.Context, order *model.Order) error {
	fresh, err := c.markers.SetNX(ctx, service.StockReturnedKey(order.OrderSn), service.MarkerValue, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("claim stock-return marker: %w", err)
	}
	if !fresh {
		return nil
	}
	if _, err := c.registry.IncrementStock(ctx, order.InterfaceID, order.Count); err != nil {
		// Release the claim so the redelivery retries the return.
		if delErr := c.markers.Del(ctx, service.StockReturnedKey(order.OrderSn)); delErr != nil {
			logger.Get().Error("release stock-return marker", "error", delErr, "order_sn", order.OrderSn)
		}
		return fmt.Errorf("return stock for %s: %w", order.OrderSn, err)
	}
	return nil
}
