package ratelimit

import (
	"testing"
	"time"
)

func TestFormatKey(t *testing.T) {
	t.Parallel()

	if got := FormatKey(KeyTypeIdentity, "ops-bot"); got != "ratelimit:identity:ops-bot" {
		t.Errorf("FormatKey() = %q", got)
	}
	if got := FormatKey(KeyTypeIP, "10.0.0.1"); got != "ratelimit:ip:10.0.0.1" {
		t.Errorf("FormatKey() = %q", got)
	}
}

func TestConfig_Enabled(t *testing.T) {
	t.Parallel()

	if (Config{}).Enabled() {
		t.Error("zero config must be disabled")
	}
	if !(Config{Rate: 10, Period: time.Minute}).Enabled() {
		t.Error("expected enabled")
	}
}
