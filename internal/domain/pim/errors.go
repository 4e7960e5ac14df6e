package pim

import "fmt"

// UpstreamError is an HTTP-level failure from a vendor API. Status 5xx and
// 429 are retryable and count against the circuit; other 4xx are client
// errors and do neither.
type UpstreamError struct {
	Platform string
	Status   int
	Code     string
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s upstream error %d (%s): %s", e.Platform, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s upstream error %d: %s", e.Platform, e.Status, e.Message)
}

// Retryable reports whether the failure is worth another attempt.
func (e *UpstreamError) Retryable() bool {
	return e.Status >= 500 || e.Status == 429
}

// NetworkError is a transport failure or timeout before any HTTP status was
// produced. Always retryable, always a circuit failure.
type NetworkError struct {
	Platform string
	Cause    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s network error: %v", e.Platform, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}
