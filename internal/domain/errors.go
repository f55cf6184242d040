package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors. Every one of these is locally
// recovered and logged; none may halt ingestion of subsequent snapshots.

func ErrMalformedSnapshot(msg string, cause error) *AppError {
	return &AppError{Code: "MALFORMED_SNAPSHOT", Message: msg, Status: 400, Cause: cause}
}

func ErrRuleEvaluation(rule string, cause error) *AppError {
	return &AppError{Code: "RULE_EVALUATION", Message: fmt.Sprintf("rule %s failed", rule), Status: 500, Cause: cause}
}

func ErrGenerationFailed(eventID string, cause error) *AppError {
	return &AppError{Code: "GENERATION_FAILED", Message: fmt.Sprintf("both providers failed for event %s", eventID), Status: 502, Cause: cause}
}

func ErrDeliveryFailed(cause error) *AppError {
	return &AppError{Code: "DELIVERY_FAILED", Message: "output collaborator rejected delivery", Status: 502, Cause: cause}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}
