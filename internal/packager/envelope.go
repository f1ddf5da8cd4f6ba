package packager

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hamed0406/probekit/check"
)

// ErrorBody is the wire form of a failed or partial outcome.
type ErrorBody struct {
	Message  string         `json:"message"`
	Severity check.Severity `json:"severity"`
	Timeout  bool           `json:"timeout,omitempty"`
}

// Envelope is the wire unit for one check execution.
type Envelope struct {
	AssetID   int          `json:"asset_id"`
	Check     string       `json:"check"`
	Timestamp int64        `json:"timestamp"`
	Duration  float64      `json:"duration"`
	Result    check.Result `json:"result,omitempty"`
	Error     *ErrorBody   `json:"error,omitempty"`

	encoded []byte
}

// NewEnvelope wraps a classified outcome. SoftSkip and HardSkip outcomes
// produce no envelope; callers must not pass them here.
func NewEnvelope(asset check.Asset, out Outcome, ts time.Time, dur time.Duration) *Envelope {
	env := &Envelope{
		AssetID:   asset.ID,
		Check:     asset.Check,
		Timestamp: ts.Unix(),
		Duration:  dur.Seconds(),
	}
	switch out.Kind {
	case Success:
		env.Result = out.Result
	case Partial:
		env.Result = out.Result
		env.Error = &ErrorBody{Message: out.Message, Severity: out.Severity}
	case Failed:
		env.Error = &ErrorBody{Message: out.Message, Severity: out.Severity, Timeout: out.Timeout}
	}
	return env
}

// Encode serializes the envelope once and caches the bytes; Size and Pack
// rely on the cached form.
func (e *Envelope) Encode() ([]byte, error) {
	if e.encoded != nil {
		return e.encoded, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %d/%s: %w", e.AssetID, e.Check, err)
	}
	e.encoded = b
	return b, nil
}

// Oversized builds the synthetic error envelope reported in place of a
// result too large for any package.
func Oversized(e *Envelope, size, limit int) *Envelope {
	return &Envelope{
		AssetID:   e.AssetID,
		Check:     e.Check,
		Timestamp: e.Timestamp,
		Duration:  e.Duration,
		Error: &ErrorBody{
			Message:  fmt.Sprintf("data package too large (%d bytes, limit %d)", size, limit),
			Severity: check.Medium,
		},
	}
}
