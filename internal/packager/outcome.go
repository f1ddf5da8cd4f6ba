// Package packager turns check returns and control signals into outcome
// envelopes and batches them into size-bounded packages for the collector.
package packager

import (
	"context"
	"errors"

	"github.com/hamed0406/probekit/check"
)

// Kind tags the classified outcome of one check execution.
type Kind uint8

const (
	Success Kind = iota
	Partial
	SoftSkip
	HardSkip
	Failed
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Partial:
		return "partial"
	case SoftSkip:
		return "soft-skip"
	case HardSkip:
		return "hard-skip"
	case Failed:
		return "error"
	}
	return "unknown"
}

// Outcome is the classified result of a check execution.
type Outcome struct {
	Kind     Kind
	Result   check.Result
	Message  string
	Severity check.Severity
	// Timeout marks a deadline expiry, labeled distinctly from user errors.
	Timeout bool
}

// Classify maps a check's return value or error to an Outcome. It is total
// and pure: every (result, error) combination yields exactly one outcome and
// nothing escapes as a plain error.
func Classify(result check.Result, err error) Outcome {
	if err == nil {
		return Outcome{Kind: Success, Result: result}
	}
	if errors.Is(err, check.ErrIgnoreResult) {
		return Outcome{Kind: SoftSkip}
	}
	if errors.Is(err, check.ErrIgnoreCheck) {
		return Outcome{Kind: HardSkip}
	}
	var inc *check.IncompleteError
	if errors.As(err, &inc) {
		return Outcome{
			Kind:     Partial,
			Result:   inc.Partial,
			Message:  inc.Message,
			Severity: inc.Severity,
		}
	}
	var ce *check.CheckError
	if errors.As(err, &ce) {
		return Outcome{Kind: Failed, Message: ce.Message, Severity: ce.Severity}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: Failed, Message: "timed out", Severity: check.Medium, Timeout: true}
	}
	// Anything else a check lets escape, recovered panics included.
	return Outcome{Kind: Failed, Message: err.Error(), Severity: check.Medium}
}
