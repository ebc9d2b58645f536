package service

import "fmt"

// Validation error codes reported to clients.
const (
	CodeInvalidPatientID = "invalid_patient_id"
	CodeInvalidLabID     = "invalid_lab_id"
	CodeNoImage          = "no_image"
	CodeInvalidImage     = "invalid_image"
	CodeImageSize        = "image_size"
)

// ValidationError rejects a request before anything is stored.
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func newValidationError(code, detail string) *ValidationError {
	return &ValidationError{Code: code, Detail: detail}
}
