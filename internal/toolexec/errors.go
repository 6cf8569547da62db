package toolexec

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Failure classifies why an external tool run failed.
type Failure int

const (
	FailureUnknown     Failure = iota
	FailureInput               // Corrupt or unrecognized input file.
	FailureUnsupported         // Valid input the tool cannot handle.
	FailureIO                  // Permission, disk space, unreadable path.
	FailureCanceled            // Context canceled or deadline exceeded.
)

func (f Failure) String() string {
	switch f {
	case FailureInput:
		return "bad input"
	case FailureUnsupported:
		return "unsupported"
	case FailureIO:
		return "i/o"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Pre-compiled regexes for classifying cjpeg/optipng stderr. Checked in
// order by [Classify]; the first match wins.
var (
	reIOIssue = regexp.MustCompile(
		`(?i)Permission denied|No space left on device|Read-only file system|` +
			`can'?t open|cannot open|Cannot write|write error`)

	reInputIssue = regexp.MustCompile(
		`(?i)Not a JPEG file|Unrecognized input file format|Premature end of|` +
			`Corrupt JPEG|not a PNG file|Invalid PNG|CRC error|` +
			`Bogus marker|bad input file|Unexpected end of file`)

	reUnsupportedIssue = regexp.MustCompile(
		`(?i)Unsupported|not supported|can'?t handle|cannot handle`)
)

// MatchIOIssue reports whether stderr contains a filesystem error.
func MatchIOIssue(stderr string) bool {
	return reIOIssue.MatchString(stderr)
}

// MatchInputIssue reports whether stderr describes a corrupt or foreign input.
func MatchInputIssue(stderr string) bool {
	return reInputIssue.MatchString(stderr)
}

// MatchUnsupportedIssue reports whether stderr describes an unsupported feature.
func MatchUnsupportedIssue(stderr string) bool {
	return reUnsupportedIssue.MatchString(stderr)
}

// Classify maps a failed run to a Failure class.
func Classify(res ExecResult) Failure {
	switch {
	case errors.Is(res.Err, context.Canceled), errors.Is(res.Err, context.DeadlineExceeded):
		return FailureCanceled
	case MatchIOIssue(res.Stderr):
		return FailureIO
	case MatchInputIssue(res.Stderr):
		return FailureInput
	case MatchUnsupportedIssue(res.Stderr):
		return FailureUnsupported
	default:
		return FailureUnknown
	}
}

// ToolError is a failed external tool run.
type ToolError struct {
	Tool string
	Kind Failure
	Tail string // Last non-empty stderr line.
	Err  error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed (%s)", e.Tool, e.Kind)
	if e.Tail != "" {
		msg += ": " + e.Tail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// AsError returns nil for a successful run, otherwise a *ToolError.
func (r ExecResult) AsError(tool string) error {
	if r.Err == nil {
		return nil
	}
	return &ToolError{
		Tool: tool,
		Kind: Classify(r),
		Tail: lastLine(r.Stderr),
		Err:  r.Err,
	}
}

const maxTail = 200

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n\t "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			if len(l) > maxTail {
				l = l[:maxTail] + "…"
			}
			return l
		}
	}
	return ""
}
