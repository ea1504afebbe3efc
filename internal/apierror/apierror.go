// Package apierror maps domain failures onto JSON {error} responses.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// Error carries the HTTP status a failure should surface as.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New declares a sentinel that Respond renders with the given status.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Shared sentinels. Domain packages declare their own with New.
var (
	ErrInvalidPayload = New(fiber.StatusBadRequest, "invalid payload")
	ErrUnauthorized   = New(fiber.StatusUnauthorized, "unauthorized")
	ErrNotFound       = New(fiber.StatusNotFound, "not found")
	ErrInternal       = New(fiber.StatusInternalServerError, "internal error")
)

// Invalid wraps ErrInvalidPayload with the offending field or reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// Status returns the HTTP status for err, 500 for anything unclassified.
func Status(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	if isDecodeError(err) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// Message returns the client-safe text for err. Validation errors keep their
// detail, everything else collapses to the sentinel message.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr == ErrInvalidPayload {
			return err.Error()
		}
		return apiErr.Message
	}
	if isDecodeError(err) {
		return ErrInvalidPayload.Message
	}
	return ErrInternal.Message
}

// Respond writes err as {error} with the mapped status. Unclassified errors
// are logged and never echoed.
func Respond(c *fiber.Ctx, logger *slog.Logger, err error) error {
	status := Status(err)
	if status >= fiber.StatusInternalServerError && logger != nil {
		logger.Error("Request failed",
			slog.String("path", c.Path()),
			slog.String("method", c.Method()),
			slog.Any("error", err))
	}
	return c.Status(status).JSON(fiber.Map{"error": Message(err)})
}

// Decode parses a JSON body into v, mapping malformed input to ErrInvalidPayload.
func Decode(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return Invalid("empty body")
	}
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return Invalid("malformed JSON")
	}
	return nil
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, fiber.ErrUnprocessableEntity)
}
