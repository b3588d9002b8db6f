package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"quantumedge-supervisor/internal/logging"
)

func writePolicyFile(t *testing.T, pol Policy) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	if _, err := NewPublisher(path, log).Publish(pol); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConsumerAcceptsFreshPolicy(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	pol := validPolicy()
	pol.Ts = float64(now.Unix()) - 10

	c := NewConsumer(writePolicyFile(t, pol), 5)
	c.SetNowFunc(func() time.Time { return now })

	got, fromFile := c.Effective()
	if !fromFile {
		t.Fatal("fresh policy should be used")
	}
	if got.Fingerprint() != pol.Fingerprint() {
		t.Error("effective policy differs from published")
	}
}

func TestConsumerExpiredPolicySafeDefault(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	pol := validPolicy()
	pol.Ts = float64(now.Unix()) - 60
	pol.TTLSec = 30

	c := NewConsumer(writePolicyFile(t, pol), 5)
	c.SetNowFunc(func() time.Time { return now })

	got, fromFile := c.Effective()
	if fromFile {
		t.Fatal("expired policy must not be used")
	}
	if got.AllowTrading || got.Mode != ModeRiskOff || got.Reason != "POLICY_MISSING_OR_EXPIRED" {
		t.Errorf("safe default = %+v", got)
	}
}

func TestConsumerMissingFile(t *testing.T) {
	c := NewConsumer(filepath.Join(t.TempDir(), "absent.json"), 5)
	got, fromFile := c.Effective()
	if fromFile || got.AllowTrading {
		t.Errorf("missing file = %+v, fromFile=%v", got, fromFile)
	}
}

func TestConsumerCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	c := NewConsumer(path, 5)
	got, fromFile := c.Effective()
	if fromFile || got.Mode != ModeRiskOff {
		t.Errorf("corrupt file = %+v", got)
	}
}

func TestEntryGating(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	// Cooldown still active.
	pol := validPolicy()
	pol.Ts = float64(now.Unix()) - 10
	pol.CooldownSec = 60
	c := NewConsumer(writePolicyFile(t, pol), 5)
	c.SetNowFunc(func() time.Time { return now })
	if ok, _ := c.EntryAllowed(); ok {
		t.Error("entry during cooldown should be denied")
	}

	// Cooldown elapsed.
	pol2 := validPolicy()
	pol2.Ts = float64(now.Unix()) - 70
	pol2.TTLSec = 120
	pol2.CooldownSec = 60
	c2 := NewConsumer(writePolicyFile(t, pol2), 5)
	c2.SetNowFunc(func() time.Time { return now })
	if ok, reason := c2.EntryAllowed(); !ok {
		t.Errorf("entry after cooldown denied: %s", reason)
	}
}

func TestPublisherFingerprintChangeDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	pub := NewPublisher(path, log)

	pol := validPolicy()
	changed, err := pub.Publish(pol)
	if err != nil || !changed {
		t.Fatalf("first publish changed=%v err=%v", changed, err)
	}

	changed, err = pub.Publish(pol)
	if err != nil || changed {
		t.Errorf("same policy reported as changed")
	}

	pol.Mode = ModeConservative
	changed, err = pub.Publish(pol)
	if err != nil || !changed {
		t.Errorf("changed policy not detected")
	}
}

func TestPublisherRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	log := logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
	pub := NewPublisher(path, log)

	bad := validPolicy()
	bad.TTLSec = 0
	if _, err := pub.Publish(bad); err == nil {
		t.Error("invalid policy should not publish")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should exist after rejected publish")
	}
}
