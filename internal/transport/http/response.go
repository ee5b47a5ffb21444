package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
)

type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.InsufficientFunds:        fiber.StatusPaymentRequired,
	apperr.OutOfStock:               fiber.StatusConflict,
	apperr.WalletNotActive:          fiber.StatusConflict,
	apperr.ProductNotFound:          fiber.StatusNotFound,
	apperr.DuplicateIdempotencyKey:  fiber.StatusConflict,
	apperr.InvalidDisputeTransition: fiber.StatusBadRequest,
	apperr.UnitNotAssigned:          fiber.StatusConflict,
	apperr.NotFound:                 fiber.StatusNotFound,
	apperr.InvalidRequest:           fiber.StatusBadRequest,
	apperr.Forbidden:                fiber.StatusForbidden,
	apperr.Transient:                fiber.StatusServiceUnavailable,
}

func respond(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

func respondFail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return respondFail(c, fiber.StatusBadRequest, string(apperr.InvalidRequest), message)
}

// respondError maps a service error to its status code. Internal errors are
// reported without detail.
func respondError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	if kind == apperr.Transient {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return respondFail(c, status, string(kind), apperr.Message(err))
}

// errorHandler renders errors returned by handlers and fiber itself
// (unknown route, bad method) in the response envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return respondFail(c, fe.Code, "HTTP_ERROR", fe.Message)
	}
	return respondError(c, err)
}
