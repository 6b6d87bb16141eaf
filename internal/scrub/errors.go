package scrub

// ScrubError is a typed error produced by the pipeline. Fatal errors stop
// the scrub before any detector runs; recoverable errors degrade a single
// stage and surface in ScrubResult.Warnings instead of propagating.
type ScrubError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *ScrubError) Error() string {
	return e.Message
}

// Fatal reports whether the error rejects the input outright.
func (e *ScrubError) Fatal() bool {
	return e.Code < 2100
}

// Common error values. Codes below 2100 are fatal input-validation
// failures; the rest are recoverable.
var (
	ErrInputTooLarge       = &ScrubError{Type: "input_too_large", Message: "input exceeds configured size ceiling", Code: 2001}
	ErrInvalidControlChars = &ScrubError{Type: "invalid_control_characters", Message: "input contains non-printable control characters", Code: 2002}

	ErrModelUnavailable = &ScrubError{Type: "model_unavailable", Message: "statistical model unavailable", Code: 2101}
	ErrModelTimeout     = &ScrubError{Type: "model_timeout", Message: "statistical model timed out", Code: 2102}
	ErrStageFailure     = &ScrubError{Type: "stage_failure", Message: "pipeline stage failed", Code: 2103}
)
