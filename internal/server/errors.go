package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/opensmile/internal/access"
	analyticsdomain "github.com/smallbiznis/opensmile/internal/analytics/domain"
	appointmentdomain "github.com/smallbiznis/opensmile/internal/appointment/domain"
	"github.com/smallbiznis/opensmile/internal/assistant"
	authdomain "github.com/smallbiznis/opensmile/internal/auth/domain"
	"github.com/smallbiznis/opensmile/internal/contact"
	interactiondomain "github.com/smallbiznis/opensmile/internal/interaction/domain"
	leaddomain "github.com/smallbiznis/opensmile/internal/lead/domain"
	practicedomain "github.com/smallbiznis/opensmile/internal/practice/domain"
	"github.com/smallbiznis/opensmile/internal/ratelimit"
	"github.com/smallbiznis/opensmile/internal/tenant"
	webhookdomain "github.com/smallbiznis/opensmile/internal/webhook/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrCSRF           = errors.New("csrf_origin_mismatch")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusTooManyRequests {
			setRateLimitHeaders(c, lastErr.Err)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var wErr *webhookError
	if errors.As(err, &wErr) {
		if code, status, ok := webhookCode(wErr.err); ok {
			return status, errorPayload{Type: code, Message: strings.ReplaceAll(code, "_", " ")}
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, access.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked),
		errors.Is(err, authdomain.ErrUserNotFound):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrCSRF),
		errors.Is(err, access.ErrForbidden),
		errors.Is(err, authdomain.ErrSelfRegistrationForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, appointmentdomain.ErrOutcomeAlreadyRecorded):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// webhookError marks an error raised by the ingestion endpoint, whose
// responses use fixed machine codes instead of the validation envelope.
type webhookError struct{ err error }

func (e *webhookError) Error() string { return e.err.Error() }

func (e *webhookError) Unwrap() error { return e.err }

// webhookCode maps pipeline errors to the codes Meta sees. A missing
// signature is reported as an invalid one.
func webhookCode(err error) (string, int, bool) {
	switch {
	case errors.Is(err, webhookdomain.ErrPayloadTooLarge):
		return "payload_too_large", http.StatusRequestEntityTooLarge, true
	case errors.Is(err, webhookdomain.ErrMissingSignature),
		errors.Is(err, webhookdomain.ErrInvalidSignature):
		return "invalid_signature", http.StatusUnauthorized, true
	case errors.Is(err, webhookdomain.ErrInvalidPayload):
		return "invalid_payload", http.StatusBadRequest, true
	case errors.Is(err, webhookdomain.ErrInvalidPhone):
		return "invalid_phone", http.StatusBadRequest, true
	case errors.Is(err, webhookdomain.ErrInvalidEmail):
		return "invalid_email", http.StatusBadRequest, true
	case errors.Is(err, webhookdomain.ErrCampaignNotFound):
		return "campaign_not_found", http.StatusNotFound, true
	default:
		return "", 0, false
	}
}

func setRateLimitHeaders(c *gin.Context, err error) {
	var limited *ratelimit.LimitedError
	if !errors.As(err, &limited) {
		return
	}
	seconds := int(limited.Decision.RetryAfter / time.Second)
	if limited.Decision.RetryAfter%time.Second != 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(limited.Decision.Remaining))
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, contact.ErrInvalidPhone),
		errors.Is(err, contact.ErrInvalidEmail),
		errors.Is(err, authdomain.ErrInvalidEmail),
		errors.Is(err, authdomain.ErrInvalidRole),
		errors.Is(err, authdomain.ErrInvalidFullName),
		errors.Is(err, authdomain.ErrWeakPassword),
		errors.Is(err, leaddomain.ErrInvalidStatus),
		errors.Is(err, leaddomain.ErrInvalidSource),
		errors.Is(err, leaddomain.ErrInvalidUrgency),
		errors.Is(err, leaddomain.ErrInvalidLostReason),
		errors.Is(err, leaddomain.ErrInvalidName),
		errors.Is(err, leaddomain.ErrInvalidPractice),
		errors.Is(err, interactiondomain.ErrInvalidType),
		errors.Is(err, appointmentdomain.ErrInvalidStatus),
		errors.Is(err, appointmentdomain.ErrInvalidKind),
		errors.Is(err, appointmentdomain.ErrInvalidConfirmationSource),
		errors.Is(err, appointmentdomain.ErrInvalidSchedule),
		errors.Is(err, appointmentdomain.ErrInvalidDateRange),
		errors.Is(err, appointmentdomain.ErrTreatmentTypeMismatch),
		errors.Is(err, analyticsdomain.ErrInvalidDateRange),
		errors.Is(err, practicedomain.ErrInvalidName),
		errors.Is(err, assistant.ErrEmptyText),
		errors.Is(err, tenant.ErrPracticeImmutable):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenant.ErrNotFound),
		errors.Is(err, leaddomain.ErrLeadNotFound),
		errors.Is(err, interactiondomain.ErrInteractionNotFound),
		errors.Is(err, appointmentdomain.ErrAppointmentNotFound),
		errors.Is(err, practicedomain.ErrPracticeNotFound),
		errors.Is(err, practicedomain.ErrCampaignNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, contact.ErrInvalidPhone):
		return contact.ErrInvalidPhone.Error()
	case errors.Is(err, contact.ErrInvalidEmail):
		return contact.ErrInvalidEmail.Error()
	default:
		return rootCode(err)
	}
}

// rootCode returns the innermost sentinel's text so wrapped errors still
// surface a stable code.
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog returns a coarse class and the response type for the
// request log. It never returns the error text.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "server", payload.Type
	}
	return "client", payload.Type
}
