package policy

import (
	"os"
	"time"
)

// Consumer reads the published policy file under fail-safe semantics. The
// bot embeds the same logic; this implementation backs the supervisor's own
// endpoints and the orchestrator's diagnostics.
type Consumer struct {
	targetFile string
	graceSec   int
	now        func() time.Time
}

// NewConsumer creates a consumer for targetFile with the given freshness
// grace.
func NewConsumer(targetFile string, graceSec int) *Consumer {
	return &Consumer{
		targetFile: targetFile,
		graceSec:   graceSec,
		now:        time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (c *Consumer) SetNowFunc(now func() time.Time) {
	c.now = now
}

// Effective returns the policy a consumer must act on: the file's policy
// when it parses, validates and is fresh; the safe default otherwise.
// The bool reports whether the file's policy was used.
func (c *Consumer) Effective() (Policy, bool) {
	now := float64(c.now().Unix())

	data, err := os.ReadFile(c.targetFile)
	if err != nil {
		return SafeDefault(now, 30, "POLICY_MISSING_OR_EXPIRED"), false
	}

	pol, err := Parse(data)
	if err != nil {
		return SafeDefault(now, 30, "POLICY_MISSING_OR_EXPIRED"), false
	}

	if !pol.IsFresh(now, c.graceSec) {
		return SafeDefault(now, pol.TTLSec, "POLICY_MISSING_OR_EXPIRED"), false
	}

	return pol, true
}

// EntryAllowed reports whether a new position entry is permitted under the
// effective policy. Exits are always permitted and are not gated here.
func (c *Consumer) EntryAllowed() (bool, string) {
	pol, _ := c.Effective()

	if !pol.AllowTrading {
		return false, pol.Reason
	}
	if pol.Mode == ModeRiskOff {
		return false, pol.Reason
	}
	if pol.CooldownSec > 0 {
		now := float64(c.now().Unix())
		if now < pol.Ts+float64(pol.CooldownSec) {
			return false, "cooldown active"
		}
	}
	return true, pol.Reason
}
