package probes

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrSourceUnavailable means a kernel information source could not be opened or read.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrCounterReadFailed means a required sysctl counter could not be read.
	ErrCounterReadFailed = errors.New("counter read failed")
	// ErrToolUnavailable means the GPU vendor tool is missing or could not be started.
	ErrToolUnavailable = errors.New("tool unavailable")
	// ErrMalformedOutput means the GPU vendor tool printed something other than four integers.
	ErrMalformedOutput = errors.New("malformed output")
	// ErrBufferTooSmall means a source filled the read buffer completely.
	ErrBufferTooSmall = errors.New("buffer too small")
)

// ProbeError is returned by every probe. Kind is one of the Err* values above,
// Source names the file, sysctl or command that failed and Raw holds the
// captured tool output for ErrMalformedOutput.
type ProbeError struct {
	Kind   error
	Source string
	Raw    string
	Err    error
}

func (e *ProbeError) Error() string {
	msg := e.Source + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += fmt.Sprintf(" (output %q)", e.Raw)
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *ProbeError) Is(target error) bool {
	return e.Kind == target
}

// Unwrap returns the underlying OS or parse error.
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// RawOutput returns the captured tool output carried by err, if any.
func RawOutput(err error) (string, bool) {
	var pe *ProbeError
	if !errors.As(err, &pe) || !errors.Is(pe.Kind, ErrMalformedOutput) {
		return "", false
	}
	return pe.Raw, true
}

func sourceUnavailable(source string, err error) *ProbeError {
	return &ProbeError{Kind: ErrSourceUnavailable, Source: source, Err: err}
}

func counterReadFailed(source string, err error) *ProbeError {
	return &ProbeError{Kind: ErrCounterReadFailed, Source: source, Err: err}
}

func toolUnavailable(source string, err error) *ProbeError {
	return &ProbeError{Kind: ErrToolUnavailable, Source: source, Err: err}
}

func malformedOutput(source string, raw []byte, err error) *ProbeError {
	return &ProbeError{Kind: ErrMalformedOutput, Source: source, Raw: string(raw), Err: err}
}

func bufferTooSmall(source string, size int) *ProbeError {
	return &ProbeError{Kind: ErrBufferTooSmall, Source: source, Err: fmt.Errorf("read filled all %d bytes", size)}
}
