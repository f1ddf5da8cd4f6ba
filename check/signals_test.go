package check

import (
	"errors"
	"testing"
)

func TestFail_Defaults(t *testing.T) {
	e := Fail("boom")
	if e.Severity != Medium {
		t.Fatalf("default severity = %v, want medium", e.Severity)
	}
	if e.Error() != "boom" {
		t.Fatalf("message = %q", e.Error())
	}
}

func TestIncomplete_Defaults(t *testing.T) {
	partial := Result{"disk": {{"name": "sda"}}}
	e := Incomplete(partial, "half the disks timed out")
	if e.Severity != Low {
		t.Fatalf("default severity = %v, want low", e.Severity)
	}
	if len(e.Partial["disk"]) != 1 {
		t.Fatalf("partial payload lost: %+v", e.Partial)
	}
}

func TestSignals_AreDistinct(t *testing.T) {
	if errors.Is(ErrIgnoreResult, ErrIgnoreCheck) {
		t.Fatalf("soft and hard skip must be distinct sentinels")
	}
	var ce *CheckError
	if errors.As(Fail("x"), &ce) != true {
		t.Fatalf("errors.As should match *CheckError")
	}
}
