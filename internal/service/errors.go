package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSuspended          = errors.New("account suspended")
	ErrForbidden          = errors.New("forbidden")
	ErrUserNotActive      = errors.New("user is not active")
)

// Decision reason codes. These are expected business outcomes, surfaced to
// the caller with a stable code, never raw biometric data.
const (
	CodeAlreadyCheckedIn    = "already_checked_in"
	CodeAlreadyCheckedOut   = "already_checked_out"
	CodeNoCheckInYet        = "no_check_in_yet"
	CodeNoFaceDetected      = "no_face_detected"
	CodeLivenessFailed      = "liveness_failed"
	CodeLivenessUnavailable = "liveness_unavailable"
	CodeNoEnrolledTemplate  = "no_enrolled_template"
	CodeFaceNotRecognized   = "face_not_recognized"
	CodeDuplicateTemplate   = "duplicate_template"
	CodeLowQualityFace      = "low_quality_face"
	CodeMissingLocation     = "missing_location"
)

type DecisionError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func decision(code, msg string) *DecisionError {
	return &DecisionError{Code: code, Message: msg}
}

func decisionWith(code, msg string, details map[string]any) *DecisionError {
	return &DecisionError{Code: code, Message: msg, Details: details}
}

// AsDecision unwraps a DecisionError if err carries one.
func AsDecision(err error) (*DecisionError, bool) {
	var de *DecisionError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
