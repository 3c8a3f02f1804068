package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heartapi/heartgate/internal/pkg/logger"
	"github.com/heartapi/heartgate/internal/service"
)

// PaymentHandler receives payment-provider callbacks. Providers retry until
// they see the literal body "success", so the response contract is plain
// text rather than the JSON error envelope.
type PaymentHandler struct {
	svc *service.OrderService
}

func NewPaymentHandler(svc *service.OrderService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

func (h *PaymentHandler) Notify(c *gin.Context) {
	outTradeNo := c.PostForm("out_trade_no")
	tradeStatus := c.PostForm("trade_status")

	if err := h.svc.HandlePaymentNotify(c.Request.Context(), outTradeNo, tradeStatus); err != nil {
		logger.Get().Error("payment notify failed", "error", err, "out_trade_no", outTradeNo)
		c.String(http.StatusOK, "failure")
		return
	}
	c.String(http.StatusOK, "success")
}
