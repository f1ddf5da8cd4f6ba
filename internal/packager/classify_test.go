package packager

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hamed0406/probekit/check"
)

func TestClassify_Table(t *testing.T) {
	result := check.Result{"cpu": {{"name": "cpu0", "usage": 12.5}}}
	partial := check.Result{"cpu": {{"name": "cpu0"}}}

	cases := []struct {
		name     string
		result   check.Result
		err      error
		kind     Kind
		severity check.Severity
		message  string
	}{
		{"normal return", result, nil, Success, check.Low, ""},
		{"soft skip", nil, check.ErrIgnoreResult, SoftSkip, check.Low, ""},
		{"hard skip", nil, check.ErrIgnoreCheck, HardSkip, check.Low, ""},
		{"check error default", nil, check.Fail("unreachable"), Failed, check.Medium, "unreachable"},
		{"check error override", nil, check.FailSev(check.Critical, "disk gone"), Failed, check.Critical, "disk gone"},
		{"incomplete default", nil, check.Incomplete(partial, "half collected"), Partial, check.Low, "half collected"},
		{"incomplete override", nil, check.IncompleteSev(check.High, partial, "mostly down"), Partial, check.High, "mostly down"},
		{"deadline", nil, context.DeadlineExceeded, Failed, check.Medium, "timed out"},
		{"wrapped deadline", nil, fmt.Errorf("run: %w", context.DeadlineExceeded), Failed, check.Medium, "timed out"},
		{"plain error", nil, errors.New("index out of range"), Failed, check.Medium, "index out of range"},
	}

	for _, tc := range cases {
		out := Classify(tc.result, tc.err)
		if out.Kind != tc.kind {
			t.Fatalf("%s: kind = %v, want %v", tc.name, out.Kind, tc.kind)
		}
		if out.Kind == Failed || out.Kind == Partial {
			if out.Severity != tc.severity {
				t.Fatalf("%s: severity = %v, want %v", tc.name, out.Severity, tc.severity)
			}
			if out.Message != tc.message {
				t.Fatalf("%s: message = %q, want %q", tc.name, out.Message, tc.message)
			}
		}
	}
}

func TestClassify_TimeoutLabeledDistinctly(t *testing.T) {
	out := Classify(nil, context.DeadlineExceeded)
	if !out.Timeout {
		t.Fatalf("deadline expiry must carry the timeout label")
	}
	user := Classify(nil, check.Fail("timed out by my own counting"))
	if user.Timeout {
		t.Fatalf("user-raised error must not carry the timeout label")
	}
}

func TestClassify_PartialKeepsPayload(t *testing.T) {
	partial := check.Result{"iface": {{"name": "eth0"}}}
	out := Classify(nil, check.Incomplete(partial, "snmp walk truncated"))
	if len(out.Result["iface"]) != 1 {
		t.Fatalf("partial payload lost: %+v", out.Result)
	}
}
