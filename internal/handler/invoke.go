// Package handler wires HTTP routes to the services. Handlers bind and
// validate transport-level input, attach errors for the error middleware,
// and never hold business rules themselves.
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/heartapi/heartgate/internal/middleware"
	"github.com/heartapi/heartgate/internal/pkg/apperrors"
	"github.com/heartapi/heartgate/internal/service"
)

// InvokeHandler relays authenticated calls through the admission service and
// passes the upstream response back byte for byte.
type InvokeHandler struct {
	svc *service.AdmissionService
}

func NewInvokeHandler(svc *service.AdmissionService) *InvokeHandler {
	return &InvokeHandler{svc: svc}
}

func (h *InvokeHandler) Invoke(c *gin.Context) {
	cred, ok := middleware.CredentialFrom(c)
	if !ok {
		c.Error(apperrors.NewAuthFailed("request not authenticated"))
		return
	}

	out, err := h.svc.Invoke(c.Request.Context(), service.InvokeInput{
		Credential: cred,
		Path:       c.Param("path"),
		Method:     c.Request.Method,
		Body:       middleware.RawBodyFrom(c),
	})
	if err != nil {
		c.Error(err)
		return
	}

	contentType := out.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(out.Status, contentType, out.Body)
}
