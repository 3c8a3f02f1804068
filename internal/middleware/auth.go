package middleware

import (
	"bytes"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/heartapi/heartgate/internal/auth"
	"github.com/heartapi/heartgate/internal/model"
	"github.com/heartapi/heartgate/internal/pkg/apperrors"
	"github.com/heartapi/heartgate/internal/pkg/metrics"
	"github.com/heartapi/heartgate/internal/service"
)

// Request headers carried by every metered call.
const (
	HeaderAccessKey = "accessKey"
	HeaderSign      = "sign"
	HeaderNonce     = "nonce"
	HeaderTimestamp = "timestamp"
)

// Context keys set by Authenticate for downstream handlers.
const (
	CtxCredential = "credential"
	CtxRawBody    = "rawBody"
)

// Authenticate verifies the request signature against the caller's secret,
// enforces the per-credential rate limit, and consumes the nonce so the same
// request cannot be replayed. The raw body is restored for forwarding and
// also stashed in the context since signing covered it.
func Authenticate(creds *service.CredentialManager, verifier *auth.Verifier, guard *auth.ReplayGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessKey := c.GetHeader(HeaderAccessKey)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest("unreadable request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		cred, err := verifier.Verify(c.Request.Context(), accessKey, string(body), c.GetHeader(HeaderSign))
		if err != nil {
			metrics.AdmissionTotal.WithLabelValues("auth_failed").Inc()
			c.Error(err)
			c.Abort()
			return
		}

		if !creds.Allow(accessKey) {
			metrics.AdmissionTotal.WithLabelValues("rate_limited").Inc()
			c.Error(apperrors.New(apperrors.ErrRateLimited, "credential rate exceeded", nil))
			c.Abort()
			return
		}

		if err := guard.Check(c.Request.Context(), c.GetHeader(HeaderNonce), c.GetHeader(HeaderTimestamp)); err != nil {
			metrics.AdmissionTotal.WithLabelValues("replay_rejected").Inc()
			c.Error(err)
			c.Abort()
			return
		}

		c.Set(CtxCredential, cred)
		c.Set(CtxRawBody, string(body))
		c.Next()
	}
}

// CredentialFrom pulls the authenticated credential a prior Authenticate
// stage stored on the context.
func CredentialFrom(c *gin.Context) (*model.Credential, bool) {
	v, ok := c.Get(CtxCredential)
	if !ok {
		return nil, false
	}
	cred, ok := v.(*model.Credential)
	return cred, ok
}

// RawBodyFrom returns the raw request body captured during authentication.
func RawBodyFrom(c *gin.Context) string {
	return c.GetString(CtxRawBody)
}
