// Package middleware holds the gin stages that run in front of every
// metered request: error rendering, the global rate gate, and signature
// plus replay authentication.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heartapi/heartgate/internal/pkg/apperrors"
	"github.com/heartapi/heartgate/internal/pkg/logger"
)

// ErrorHandler renders the first error attached to the context as a JSON
// body. AppErrors keep their mapped status; anything else becomes a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			logger.Get().Error("unhandled error", "error", err, "path", c.Request.URL.Path)
			appErr = apperrors.New(apperrors.ErrInternal, "internal error", err)
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Get().Error("request failed",
				"error", appErr.Error(), "code", string(appErr.Type), "path", c.Request.URL.Path)
		}
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
	}
}
