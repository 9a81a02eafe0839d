package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	genericServerErrorMessage = "An unexpected server error occurred"
	unavailableMessage        = "Service temporarily unavailable, please try again later"
)

// Response is the JSON envelope of every auth endpoint
type Response struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	ErrorCode  string `json:"errorCode,omitempty"`
}

// SendSuccess writes a success envelope
func SendSuccess(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{
		Success:    true,
		Message:    message,
		StatusCode: status,
		Data:       data,
	})
}

// ErrorResponder turns errors into envelopes. It is the only place that
// writes error responses.
type ErrorResponder struct {
	Logger Logger
	// Production hides role details from forbidden responses
	Production bool
	Metrics    MetricsRecorder
}

// NewErrorHandler returns a fiber.ErrorHandler writing the envelope
func NewErrorHandler(logger Logger, production bool) fiber.ErrorHandler {
	r := &ErrorResponder{Logger: logger, Production: production}
	return r.Handle
}

// Handle implements fiber.ErrorHandler
func (r *ErrorResponder) Handle(c *fiber.Ctx, err error) error {
	res := r.ResponseFromError(err)

	logger := r.Logger
	if logger == nil {
		logger = defLogger{}
	}

	if res.StatusCode >= http.StatusInternalServerError {
		var richErr *goerrors.Error
		details := ""
		if goerrors.As(err, &richErr) {
			details = print.MaybePrettyJSON(richErr.Metadata)
		}
		logger.Error("%s %s failed with %d: %v %s", c.Method(), c.OriginalURL(), res.StatusCode, err, details)
	} else {
		logger.Debug("%s %s rejected with %d (%s): %v", c.Method(), c.OriginalURL(), res.StatusCode, res.ErrorCode, err)
	}

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		normalizeMetrics(r.Metrics).IncRejection(res.ErrorCode)
	}

	return c.Status(res.StatusCode).JSON(res)
}

// ResponseFromError builds the envelope for err. Internal details never
// reach the message of a 5xx response.
func (r *ErrorResponder) ResponseFromError(err error) Response {
	res := Response{
		Success:    false,
		Message:    genericServerErrorMessage,
		StatusCode: http.StatusInternalServerError,
		ErrorCode:  TextCodeInternal,
	}

	var richErr *goerrors.Error
	var fiberErr *fiber.Error

	switch {
	case goerrors.As(err, &richErr):
		res.StatusCode = richErr.Code
		if res.StatusCode == 0 {
			res.StatusCode = statusFromCategory(richErr)
		}
		res.ErrorCode = richErr.TextCode
		if res.ErrorCode == "" {
			res.ErrorCode = textCodeFromStatus(res.StatusCode)
		}
		res.Message = richErr.Message

		if fields, ok := richErr.Metadata["fields"]; ok && richErr.Category == goerrors.CategoryValidation {
			res.Data = map[string]any{"fields": fields}
		}

		if res.StatusCode == http.StatusForbidden && r.Production {
			res.Message = ErrRoleNotAllowed.Message
		}

	case goerrors.As(err, &fiberErr):
		res.StatusCode = fiberErr.Code
		res.ErrorCode = textCodeFromStatus(fiberErr.Code)
		res.Message = fiberErr.Message
	}

	switch {
	case res.StatusCode == http.StatusServiceUnavailable:
		res.Message = unavailableMessage
	case res.StatusCode >= http.StatusInternalServerError:
		res.Message = genericServerErrorMessage
	}

	return res
}

func statusFromCategory(err *goerrors.Error) int {
	switch err.Category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func textCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return TextCodeValidation
	case http.StatusUnauthorized:
		return TextCodeInvalidToken
	case http.StatusForbidden:
		return TextCodeForbidden
	case http.StatusNotFound:
		return TextCodeNotFound
	case http.StatusTooManyRequests:
		return TextCodeTooManyRequests
	case http.StatusServiceUnavailable:
		return TextCodeDatabaseUnavailable
	}
	if status >= http.StatusInternalServerError {
		return TextCodeInternal
	}
	return ""
}
