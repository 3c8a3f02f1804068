package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartapi/heartgate/internal/model"
	"github.com/heartapi/heartgate/internal/pkg/apperrors"
	"github.com/heartapi/heartgate/internal/repository"
)

type published struct {
	queue string
	body  []byte
	delay time.Duration
}

// capturePublisher records publishes instead of talking to a broker.
type capturePublisher struct {
	mu       sync.Mutex
	messages []published
	failWith error
}

func (p *capturePublisher) Publish(_ context.Context, queue string, body []byte) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{queue: queue, body: body})
	return nil
}

func (p *capturePublisher) PublishDelayed(_ context.Context, queue string, body []byte, delay time.Duration) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{queue: queue, body: body, delay: delay})
	return nil
}

func (p *capturePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.messages...)
}

func appErrType(t *testing.T, err error) apperrors.ErrorType {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Type
}

func newOrderFixture() (*OrderService, *repository.MemoryInterfaceRegistry, *repository.MemoryOrderStore, *capturePublisher) {
	registry := repository.NewMemoryInterfaceRegistry()
	registry.Register(&model.InterfaceInfo{
		ID: 10, Name: "weather", Host: "http://upstream", Path: "/weather",
		Method: "GET", Price: 0.5, Stock: 100, Status: model.InterfaceOnline,
	})
	orders := repository.NewMemoryOrderStore()
	pub := &capturePublisher{}
	svc := NewOrderService(registry, orders, repository.NewMemoryKV(), pub,
		"expire", "pay", 30*time.Minute)
	return svc, registry, orders, pub
}

func TestCreateOrderHappyPath(t *testing.T) {
	svc, registry, _, pub := newOrderFixture()
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderRequest{
		UserID: 7, InterfaceID: 10, Count: 4, TotalAmount: 2.00,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderNotPaid, order.Status)
	assert.Equal(t, int64(4), order.Count)
	assert.True(t, strings.HasSuffix(order.OrderSn, "7"), "order number ends with the buyer id")

	stock, err := registry.GetStock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(96), stock)

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "expire", msgs[0].queue)
	assert.Equal(t, 30*time.Minute, msgs[0].delay)
	var expire model.OrderExpireMessage
	require.NoError(t, json.Unmarshal(msgs[0].body, &expire))
	assert.Equal(t, order.OrderSn, expire.OrderSn)
}

func TestCreateOrderPriceMismatch(t *testing.T) {
	svc, registry, _, pub := newOrderFixture()
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, CreateOrderRequest{
		UserID: 7, InterfaceID: 10, Count: 4, TotalAmount: 1.99,
	})
	assert.Equal(t, apperrors.ErrPriceMismatch, appErrType(t, err))

	stock, _ := registry.GetStock(ctx, 10)
	assert.Equal(t, int64(100), stock, "a rejected order must not touch stock")
	assert.Empty(t, pub.all())
}

func TestCreateOrderRoundsToTwoDecimals(t *testing.T) {
	svc, _, _, _ := newOrderFixture()

	// 0.5 * 3 = 1.5; the client may send a representation that rounds to it.
	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: 7, InterfaceID: 10, Count: 3, TotalAmount: 1.5000001,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, order.TotalAmount, 0.001)
}

func TestCreateOrderStockShortage(t *testing.T) {
	svc, registry, _, _ := newOrderFixture()
	ctx := context.Background()
	registry.Register(&model.InterfaceInfo{
		ID: 11, Host: "http://upstream", Path: "/scarce", Method: "GET",
		Price: 1, Stock: 3, Status: model.InterfaceOnline,
	})

	_, err := svc.CreateOrder(ctx, CreateOrderRequest{
		UserID: 7, InterfaceID: 11, Count: 5, TotalAmount: 5,
	})
	assert.Equal(t, apperrors.ErrStockShortage, appErrType(t, err))

	// Draining stock to exactly zero is also refused.
	_, err = svc.CreateOrder(ctx, CreateOrderRequest{
		UserID: 7, InterfaceID: 11, Count: 3, TotalAmount: 3,
	})
	assert.Equal(t, apperrors.ErrStockShortage, appErrType(t, err))
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _, _, _ := newOrderFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"missing user", CreateOrderRequest{InterfaceID: 10, Count: 1, TotalAmount: 0.5}},
		{"missing interface", CreateOrderRequest{UserID: 7, Count: 1, TotalAmount: 0.5}},
		{"zero count", CreateOrderRequest{UserID: 7, InterfaceID: 10, Count: 0, TotalAmount: 0}},
		{"negative total", CreateOrderRequest{UserID: 7, InterfaceID: 10, Count: 1, TotalAmount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, tt.req)
			assert.Equal(t, apperrors.ErrInvalidRequest, appErrType(t, err))
		})
	}

	_, err := svc.CreateOrder(ctx, CreateOrderRequest{UserID: 7, InterfaceID: 99, Count: 1, TotalAmount: 1})
	assert.Equal(t, apperrors.ErrNotFound, appErrType(t, err))
}

func TestPaymentNotifyPublishesOnce(t *testing.T) {
	svc, _, _, pub := newOrderFixture()
	ctx := context.Background()

	require.NoError(t, svc.HandlePaymentNotify(ctx, "sn-1", TradeSuccess))
	require.NoError(t, svc.HandlePaymentNotify(ctx, "sn-1", TradeSuccess))

	msgs := pub.all()
	require.Len(t, msgs, 1, "duplicate callbacks collapse to one publish")
	assert.Equal(t, "pay", msgs[0].queue)
	var pay model.PaymentSuccessMessage
	require.NoError(t, json.Unmarshal(msgs[0].body, &pay))
	assert.Equal(t, "sn-1", pay.OutTradeNo)
}

func TestPaymentNotifyIgnoresOtherStatuses(t *testing.T) {
	svc, _, _, pub := newOrderFixture()

	require.NoError(t, svc.HandlePaymentNotify(context.Background(), "sn-1", "WAIT_BUYER_PAY"))
	assert.Empty(t, pub.all())
}

func TestPaymentNotifyRetriableAfterPublishFailure(t *testing.T) {
	svc, _, _, pub := newOrderFixture()
	ctx := context.Background()

	pub.failWith = errors.New("broker down")
	assert.Error(t, svc.HandlePaymentNotify(ctx, "sn-1", TradeSuccess))

	// The dedup marker was released, so the provider retry goes through.
	pub.failWith = nil
	require.NoError(t, svc.HandlePaymentNotify(ctx, "sn-1", TradeSuccess))
	assert.Len(t, pub.all(), 1)
}
