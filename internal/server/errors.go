package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	"github.com/smallbiznis/clinicbilling/internal/authorization"
	rulesdomain "github.com/smallbiznis/clinicbilling/internal/blockingrules/domain"
	"github.com/smallbiznis/clinicbilling/internal/escalation"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/messaging"
	reminderdomain "github.com/smallbiznis/clinicbilling/internal/reminder/domain"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"github.com/smallbiznis/clinicbilling/pkg/repository"
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
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
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

	var cfgErr *rulesdomain.ConfigError
	if errors.As(err, &cfgErr) {
		fields := make([]ValidationError, 0, len(cfgErr.Fields))
		for _, f := range cfgErr.Fields {
			fields = append(fields, ValidationError{Field: f.Field, Code: f.Code, Message: f.Message})
		}
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_configuration",
			Message: "blocking rules are invalid",
			Errors:  fields,
		}
	}
	if errors.Is(err, rulesdomain.ErrRulesDisabled) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_configuration",
			Message: "blocking rules are disabled",
			Errors: []ValidationError{
				{Field: "enabled", Code: "rules_disabled", Message: "enable the rules before applying them"},
			},
		}
	}
	if errors.Is(err, rulesdomain.ErrInvalidConfiguration) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_configuration",
			Message: "blocking rules are invalid",
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
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many reminder sends, retry later",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidRole):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
			Errors: []ValidationError{
				{Code: conflictCode(err), Message: conflictMessage(err)},
			},
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

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 && payload.Errors[0].Code != "" {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	invoicedomain.ErrInvalidTenant,
	invoicedomain.ErrInvalidInvoiceID,
	invoicedomain.ErrInvalidInvoiceNumber,
	invoicedomain.ErrInvalidAmount,
	invoicedomain.ErrInvalidCurrency,
	invoicedomain.ErrInvalidDueDate,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidPaymentMethod,
	invoicedomain.ErrInvalidPageToken,
	tenantdomain.ErrInvalidTenant,
	tenantdomain.ErrInvalidName,
	tenantdomain.ErrInvalidEmail,
	tenantdomain.ErrInvalidPage,
	escalation.ErrInvalidLevel,
	auditdomain.ErrInvalidInvoiceID,
	reminderdomain.ErrMissingRecipient,
	reminderdomain.ErrUnknownTemplate,
	reminderdomain.ErrEmptyBatch,
	reminderdomain.ErrBatchTooLarge,
	messaging.ErrMissingRecipient,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, invoicedomain.ErrTenantNotFound),
		errors.Is(err, tenantdomain.ErrTenantNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

var conflictErrors = []error{
	invoicedomain.ErrConcurrentModification,
	invoicedomain.ErrDuplicateInvoiceNumber,
	invoicedomain.ErrInvalidTransition,
	invoicedomain.ErrInvoiceClosed,
	reminderdomain.ErrDuplicateReminder,
	reminderdomain.ErrInvoiceNotPayable,
	repository.ErrDuplicate,
}

func isConflictError(err error) bool {
	return conflictCode(err) != ""
}

func conflictCode(err error) string {
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ""
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, invoicedomain.ErrConcurrentModification):
		return "invoice was modified concurrently, retry the request"
	case errors.Is(err, invoicedomain.ErrDuplicateInvoiceNumber):
		return "invoice number already exists"
	case errors.Is(err, invoicedomain.ErrInvalidTransition):
		return "blocking level can only move up"
	case errors.Is(err, invoicedomain.ErrInvoiceClosed):
		return "invoice is already paid or cancelled"
	case errors.Is(err, reminderdomain.ErrDuplicateReminder):
		return "a reminder was already dispatched for this invoice today"
	case errors.Is(err, reminderdomain.ErrInvoiceNotPayable):
		return "invoice is not payable"
	case errors.Is(err, repository.ErrDuplicate):
		return "record already exists"
	default:
		return "conflict"
	}
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_tenant":
		return "tenant_id"
	case "invalid_invoice_id":
		return "id"
	case "invalid_blocking_level":
		return "level"
	case "missing_recipient":
		return "recipient"
	case "unknown_template":
		return "kind"
	case "empty_batch", "batch_too_large":
		return "invoice_ids"
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
	case "missing_recipient":
		return "no recipient on file for this tenant"
	case "unknown_template":
		return "no reminder template for this kind"
	case "empty_batch":
		return "at least one invoice id is required"
	case "batch_too_large":
		return fmt.Sprintf("at most %d invoice ids per batch", reminderdomain.MaxBatchSize)
	default:
		return "invalid value"
	}
}
