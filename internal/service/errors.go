package service

import "fmt"

// ValidationError reports a missing, malformed, or disallowed-scheme target
// URL. Nothing was sent upstream.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// GuardError reports that the SSRF guard denied the target hostname. Nothing
// was sent upstream.
type GuardError struct {
	Reason string
}

func (e *GuardError) Error() string { return "guard: " + e.Reason }

// UpstreamError reports that the fetch to the authorized target failed.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("upstream: %v", e.Err) }
func (e *UpstreamError) Unwrap() error { return e.Err }

// InternalError reports an unexpected fault after a successful fetch, such as
// an HTML document that could not be processed.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal: %v", e.Err) }
func (e *InternalError) Unwrap() error { return e.Err }
