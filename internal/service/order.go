package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/heartapi/heartgate/internal/mq"
	"github.com/heartapi/heartgate/internal/pkg/apperrors"
	"github.com/heartapi/heartgate/internal/pkg/logger"
	"github.com/heartapi/heartgate/internal/pkg/metrics"
	"github.com/heartapi/heartgate/internal/repository"
)

// TradeSuccess is the provider callback status that counts as a completed
// payment; anything else is ignored.
const TradeSuccess = "TRADE_SUCCESS"

// CreateOrderRequest is a purchase attempt for invocation quota.
type CreateOrderRequest struct {
	UserID      int64   `json:"userId"`
	InterfaceID int64   `json:"interfaceId"`
	Count       int64   `json:"count"`
	TotalAmount float64 `json:"totalAmount"`
}

// OrderService owns the reservation lifecycle: price verification, stock
// reservation, order creation with a delayed expiry message, and the
// provider-facing payment notification intake.
type OrderService struct {
	registry  InterfaceRegistry
	orders    OrderStore
	markers   MarkerStore
	publisher mq.Publisher

	expireQueue string
	payQueue    string
	window      time.Duration

	now func() time.Time
}

func NewOrderService(registry InterfaceRegistry, orders OrderStore, markers MarkerStore, publisher mq.Publisher, expireQueue, payQueue string, window time.Duration) *OrderService {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &OrderService{
		registry:    registry,
		orders:      orders,
		markers:     markers,
		publisher:   publisher,
		expireQueue: expireQueue,
		payQueue:    payQueue,
		window:      window,
		now:         time.Now,
	}
}

// CreateOrder validates the purchase, reserves stock and persists the order
// in NOT_PAID state. The reservation expires through a delayed message; a
// failed persist returns the reserved stock immediately.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	if req.UserID <= 0 || req.InterfaceID <= 0 {
		return nil, apperrors.NewInvalidRequest("user and interface are required")
	}
	if req.Count <= 0 {
		return nil, apperrors.NewInvalidRequest("count must be positive")
	}
	if req.TotalAmount < 0 {
		return nil, apperrors.NewInvalidRequest("total amount must not be negative")
	}

	info, err := s.registry.GetByID(ctx, req.InterfaceID)
	if err != nil {
		if errors.Is(err, repository.ErrInterfaceNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "interface not found", nil)
		}
		return nil, apperrors.Wrap(err, "load interface")
	}

	// Server-side price is authoritative; the client total only confirms
	// what the buyer saw.
	want := decimal.NewFromFloat(info.Price).Mul(decimal.NewFromInt(req.Count)).Round(2)
	got := decimal.NewFromFloat(req.TotalAmount).Round(2)
	if !want.Equal(got) {
		return nil, apperrors.New(apperrors.ErrPriceMismatch,
			fmt.Sprintf("expected total %s, got %s", want.String(), got.String()), nil)
	}

	stock, err := s.registry.GetStock(ctx, req.InterfaceID)
	if err != nil {
		return nil, apperrors.Wrap(err, "read stock")
	}
	if stock <= 0 || stock-req.Count <= 0 {
		return nil, apperrors.New(apperrors.ErrStockShortage, "insufficient stock", nil)
	}
	ok, err := s.registry.DecrementStock(ctx, req.InterfaceID, req.Count)
	if err != nil {
		return nil, apperrors.Wrap(err, "reserve stock")
	}
	if !ok {
		return nil, apperrors.New(apperrors.ErrStockShortage, "insufficient stock", nil)
	}

	order := &model.Order{
		OrderSn:     s.generateOrderSn(req.UserID),
		UserID:      req.UserID,
		InterfaceID: req.InterfaceID,
		Count:       req.Count,
		TotalAmount: want.InexactFloat64(),
		Status:      model.OrderNotPaid,
		CreatedAt:   s.now(),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		if _, rbErr := s.registry.IncrementStock(ctx, req.InterfaceID, req.Count); rbErr != nil {
			logger.Get().Error("return reserved stock after failed order create",
				"error", rbErr, "interface_id", req.InterfaceID, "count", req.Count)
		}
		return nil, apperrors.Wrap(err, "persist order")
	}
	metrics.OrdersTotal.WithLabelValues("created").Inc()

	body, err := json.Marshal(model.OrderExpireMessage{OrderSn: order.OrderSn})
	if err != nil {
		return order, apperrors.Wrap(err, "marshal expire message")
	}
	if err := s.publisher.PublishDelayed(ctx, s.expireQueue, body, s.window); err != nil {
		// The order exists either way; without the expiry message the
		// reservation just never times out on its own.
		logger.Get().Error("schedule order expiry", "error", err, "order_sn", order.OrderSn)
	}
	return order, nil
}

// HandlePaymentNotify processes one provider callback. Duplicate callbacks
// for the same trade are absorbed by a dedup marker; only the first publishes
// a payment-success message.
func (s *OrderService) HandlePaymentNotify(ctx context.Context, outTradeNo, tradeStatus string) error {
	if outTradeNo == "" {
		return apperrors.NewInvalidRequest("missing out trade number")
	}
	if tradeStatus != TradeSuccess {
		logger.Get().Info("ignoring payment callback", "out_trade_no", outTradeNo, "status", tradeStatus)
		return nil
	}

	fresh, err := s.markers.SetNX(ctx, TradeSuccessKey(outTradeNo), MarkerValue, 24*time.Hour)
	if err != nil {
		return apperrors.Wrap(err, "record trade callback")
	}
	if !fresh {
		logger.Get().Info("duplicate payment callback", "out_trade_no", outTradeNo)
		return nil
	}

	if err := s.markers.Set(ctx, SendPaySuccessKey(outTradeNo), outTradeNo, 24*time.Hour); err != nil {
		logger.Get().Warn("write send marker", "error", err, "out_trade_no", outTradeNo)
	}

	body, err := json.Marshal(model.PaymentSuccessMessage{OutTradeNo: outTradeNo})
	if err != nil {
		return apperrors.Wrap(err, "marshal payment message")
	}
	if err := s.publisher.Publish(ctx, s.payQueue, body); err != nil {
		// Drop the dedup marker so a provider retry can get through.
		if delErr := s.markers.Del(ctx, TradeSuccessKey(outTradeNo)); delErr != nil {
			logger.Get().Error("clear trade marker after failed publish",
				"error", delErr, "out_trade_no", outTradeNo)
		}
		return apperrors.Wrap(err, "publish payment message")
	}
	return nil
}

// ListOrders returns a user's orders, optionally filtered by status
// (negative means all).
func (s *OrderService) ListOrders(ctx context.Context, userID int64, status, limit int) ([]*model.Order, error) {
	if userID <= 0 {
		return nil, apperrors.NewInvalidRequest("user is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	orders, err := s.orders.ListByUser(ctx, userID, status, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "list orders")
	}
	return orders, nil
}

// generateOrderSn builds a sortable order number: timestamp prefix, five
// random digits, then the buyer id.
func (s *OrderService) generateOrderSn(userID int64) string {
	return fmt.Sprintf("%s%05d%d", s.now().Format("20060102150405"), rand.IntN(100000), userID)
}
