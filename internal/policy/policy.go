// Package policy derives, publishes and consumes the TTL-bound trading
// policy that gates bot behavior.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the policy contract version.
const Version = "policy.v1"

// Modes a policy can carry.
const (
	ModeNormal       = "normal"
	ModeScalp        = "scalp"
	ModeRiskOff      = "risk_off"
	ModeConservative = "conservative"
)

var validModes = map[string]bool{
	ModeNormal:       true,
	ModeScalp:        true,
	ModeRiskOff:      true,
	ModeConservative: true,
}

// Policy is the published contract (v1). Unknown keys are rejected on parse.
type Policy struct {
	Version        string   `json:"version"`
	Ts             float64  `json:"ts"`
	TTLSec         int      `json:"ttl_sec"`
	AllowTrading   bool     `json:"allow_trading"`
	Mode           string   `json:"mode"`
	SizeMultiplier float64  `json:"size_multiplier"`
	CooldownSec    int      `json:"cooldown_sec"`
	SpreadMaxBps   *float64 `json:"spread_max_bps,omitempty"`
	MaxDailyLoss   *float64 `json:"max_daily_loss,omitempty"`
	Reason         string   `json:"reason"`
}

// Validate checks the policy against the contract invariants.
func (p Policy) Validate() error {
	if p.Version != Version {
		return fmt.Errorf("version %q, want %q", p.Version, Version)
	}
	if p.TTLSec < 1 {
		return fmt.Errorf("ttl_sec %d < 1", p.TTLSec)
	}
	if !validModes[p.Mode] {
		return fmt.Errorf("invalid mode %q", p.Mode)
	}
	if p.SizeMultiplier < 0 {
		return fmt.Errorf("size_multiplier %f < 0", p.SizeMultiplier)
	}
	if p.CooldownSec < 0 {
		return fmt.Errorf("cooldown_sec %d < 0", p.CooldownSec)
	}
	if p.SpreadMaxBps != nil && *p.SpreadMaxBps < 0 {
		return fmt.Errorf("spread_max_bps %f < 0", *p.SpreadMaxBps)
	}
	if p.MaxDailyLoss != nil && *p.MaxDailyLoss < 0 {
		return fmt.Errorf("max_daily_loss %f < 0", *p.MaxDailyLoss)
	}
	if strings.TrimSpace(p.Reason) == "" {
		return fmt.Errorf("reason is empty")
	}
	return nil
}

// CanonicalJSON returns the compact, key-sorted encoding used for
// fingerprinting. Maps marshal with sorted keys, which gives the canonical
// ordering.
func (p Policy) CanonicalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"version":         p.Version,
		"ts":              p.Ts,
		"ttl_sec":         p.TTLSec,
		"allow_trading":   p.AllowTrading,
		"mode":            p.Mode,
		"size_multiplier": p.SizeMultiplier,
		"cooldown_sec":    p.CooldownSec,
		"reason":          p.Reason,
	}
	if p.SpreadMaxBps != nil {
		m["spread_max_bps"] = *p.SpreadMaxBps
	}
	if p.MaxDailyLoss != nil {
		m["max_daily_loss"] = *p.MaxDailyLoss
	}
	return json.Marshal(m)
}

// Fingerprint is the SHA-256 hex of the canonical encoding; it detects
// policy change without comparing fields.
func (p Policy) Fingerprint() string {
	data, err := p.CanonicalJSON()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Parse decodes a policy rejecting unknown keys, then validates it.
func Parse(data []byte) (Policy, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	var p Policy
	if err := dec.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

// IsFresh reports whether the policy is within its TTL plus grace at now
// (wall seconds).
func (p Policy) IsFresh(now float64, graceSec int) bool {
	return now <= p.Ts+float64(p.TTLSec)+float64(graceSec)
}

// SafeDefault is the fail-safe policy consumers apply when no fresh policy
// is available.
func SafeDefault(now float64, ttlSec int, reason string) Policy {
	if ttlSec < 1 {
		ttlSec = 30
	}
	if reason == "" {
		reason = "POLICY_MISSING_OR_EXPIRED"
	}
	return Policy{
		Version:        Version,
		Ts:             now,
		TTLSec:         ttlSec,
		AllowTrading:   false,
		Mode:           ModeRiskOff,
		SizeMultiplier: 0,
		Reason:         reason,
	}
}
