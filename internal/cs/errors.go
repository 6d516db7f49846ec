package cs

import "fmt"

// Source distinguishes local policy rejections from remote CSMS denials.
type Source string

const (
	SourceCS   Source = "CS"
	SourceCSMS Source = "CSMS"
)

// RejectedRequestError is the single error kind surfaced to the control
// surface for user-actionable rejections.
type RejectedRequestError struct {
	Source  Source
	Message string
}

func (e *RejectedRequestError) Error() string {
	return fmt.Sprintf("rejected by the %s: %s", e.Source, e.Message)
}

func rejected(source Source, format string, args ...interface{}) error {
	return &RejectedRequestError{Source: source, Message: fmt.Sprintf(format, args...)}
}

// BootstrapError wraps a failure to establish the transport or a boot
// denied by the CSMS.
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	if e.Err == nil {
		return "bootstrap failed"
	}
	return fmt.Sprintf("bootstrap failed: %s", e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}
