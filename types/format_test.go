package types

import "testing"

func TestParseTargetFormat_Valid(t *testing.T) {
	for _, s := range []string{"webp", "avif"} {
		f, err := ParseTargetFormat(s)
		if err != nil {
			t.Errorf("ParseTargetFormat(%q) returned error: %v", s, err)
		}
		if string(f) != s {
			t.Errorf("ParseTargetFormat(%q) = %q", s, f)
		}
	}
}

func TestParseTargetFormat_Invalid(t *testing.T) {
	for _, s := range []string{"", "WEBP", "jpeg", "png", "image/webp"} {
		if _, err := ParseTargetFormat(s); err == nil {
			t.Errorf("ParseTargetFormat(%q) should fail", s)
		}
	}
}

func TestValidateQuality(t *testing.T) {
	for _, q := range []int{1, 50, 100} {
		if err := ValidateQuality(q); err != nil {
			t.Errorf("ValidateQuality(%d) returned error: %v", q, err)
		}
	}
	for _, q := range []int{0, -1, 101, 1000} {
		if err := ValidateQuality(q); err == nil {
			t.Errorf("ValidateQuality(%d) should fail", q)
		}
	}
}

func TestOutcomeStatus_IsTerminalFailure(t *testing.T) {
	if OutcomeSuccess.IsTerminalFailure() {
		t.Error("success is not a terminal failure")
	}
	if !OutcomeValidationError.IsTerminalFailure() {
		t.Error("validation_error is a terminal failure")
	}
	if !OutcomeContextCrash.IsTerminalFailure() {
		t.Error("context_crash is a terminal failure")
	}
}
