package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/observability"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// RegisterMiddlewares installs the request chain shared by every route:
// deadline, access log, then the error responder closest to the handlers so
// the access log sees the final status.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(withDeadline(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorResponder(logger, metrics))
}

func withDeadline(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

var errDeadline = &apperrors.DomainError{
	Code:       "REQUEST_TIMEOUT",
	Message:    "request deadline exceeded",
	HTTPStatus: http.StatusGatewayTimeout,
	Retryable:  true,
}

// errorResponder turns handler errors and panics into the JSON error envelope.
func errorResponder(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panicked",
					zap.String("path", c.Path()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				err = writeError(c, logger, metrics, classify(err))
			}
		}()
		return c.Next()
	}
}

func classify(err error) *apperrors.DomainError {
	var de *apperrors.DomainError
	if !errors.As(err, &de) && errors.Is(err, context.DeadlineExceeded) {
		return errDeadline
	}
	return apperrors.ToDomainError(err)
}

func writeError(c *fiber.Ctx, logger *zap.Logger, metrics *observability.Metrics, de *apperrors.DomainError) error {
	metrics.RecordError(c.Route().Path, c.Method(), de.Code)
	if de.HTTPStatus >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("code", de.Code),
			zap.Error(de),
		)
	}
	if de.Retryable {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return c.Status(de.HTTPStatus).JSON(errorEnvelope{Error: errorBody{
		Code:    de.Code,
		Message: de.Message,
		Details: de.Details,
	}})
}
