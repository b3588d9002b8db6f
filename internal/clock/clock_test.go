package clock

import (
	"testing"
	"time"
)

func TestTradingDayUTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2026, 3, 9, 23, 30, 0, 0, loc)

	if got := TradingDay(local); got != "2026-03-10" {
		t.Errorf("TradingDay = %q, want 2026-03-10", got)
	}
}

func TestFixedClockAdvance(t *testing.T) {
	f := &Fixed{T: time.Unix(1_700_000_000, 0)}
	f.Advance(90 * time.Second)
	if got := f.Now().Unix(); got != 1_700_000_090 {
		t.Errorf("Now = %d, want 1700000090", got)
	}
}

func TestUnixSeconds(t *testing.T) {
	ts := time.Unix(1_700_000_000, 500_000_000)
	got := UnixSeconds(ts)
	if got < 1_700_000_000.49 || got > 1_700_000_000.51 {
		t.Errorf("UnixSeconds = %f", got)
	}
}

func TestCorrelationIDsUnique(t *testing.T) {
	a, b := NewCorrelationID(), NewCorrelationID()
	if a == "" || a == b {
		t.Errorf("correlation IDs not unique: %q %q", a, b)
	}
}
