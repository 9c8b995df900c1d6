package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// Rejection reason codes.
const (
	ReasonNotFound             = "not_found"
	ReasonInactive             = "inactive"
	ReasonExpired              = "expired"
	ReasonNotStarted           = "not_started"
	ReasonUsageCapReached      = "usage_cap_reached"
	ReasonUserUsageCapReached  = "user_usage_cap_reached"
	ReasonMinOrderNotMet       = "min_order_not_met"
	ReasonScopeMismatch        = "scope_mismatch"
	ReasonNotOwner             = "not_owner"
	ReasonLoginRequired        = "login_required"
	ReasonInvalidTransition    = "invalid_transition"
	ReasonEmptyCart            = "empty_cart"
	ReasonUnavailable          = "unavailable"
	ReasonInvalidConfiguration = "invalid_configuration"
	ReasonInvalidCredentials   = "invalid_credentials"
	ReasonEmailTaken           = "email_taken"
	ReasonInvalidSignature     = "invalid_signature"
	ReasonAmountMismatch       = "amount_mismatch"
)

// RuleError is a business-rule rejection. It is reported to the caller and
// never retried.
type RuleError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RuleError) Error() string {
	return e.Code + ": " + e.Message
}

func Reject(code, format string, args ...any) *RuleError {
	return &RuleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRule extracts a RuleError from err.
func AsRule(err error) (*RuleError, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors lists malformed input fields.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// Err returns nil when no field failed.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// AsValidation extracts ValidationErrors from err.
func AsValidation(err error) (ValidationErrors, bool) {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

const readAttempts = 3

// retryRead runs an idempotent read up to readAttempts times. Missing rows
// and cancelled contexts are returned immediately.
func retryRead(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == readAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}
