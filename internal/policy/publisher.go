package policy

import (
	"encoding/json"
	"fmt"
	"sync"

	"quantumedge-supervisor/internal/fsatomic"
	"quantumedge-supervisor/internal/logging"
)

// Publisher writes the policy file atomically and logs only on fingerprint
// change to keep the log quiet under a steady policy.
type Publisher struct {
	mu         sync.Mutex
	targetFile string
	lastHash   string
	log        *logging.Logger
}

// NewPublisher creates a publisher for targetFile.
func NewPublisher(targetFile string, log *logging.Logger) *Publisher {
	return &Publisher{
		targetFile: targetFile,
		log:        log.WithComponent("policy-publisher"),
	}
}

// Publish validates, serializes and atomically writes the policy. Returns
// whether the fingerprint changed since the last publish.
func (p *Publisher) Publish(pol Policy) (changed bool, err error) {
	if err := pol.Validate(); err != nil {
		return false, fmt.Errorf("refusing to publish invalid policy: %w", err)
	}

	// Human-readable on disk; consumers accept either form.
	data, err := json.MarshalIndent(pol, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal policy: %w", err)
	}
	if err := fsatomic.WriteBytes(p.targetFile, append(data, '\n')); err != nil {
		return false, fmt.Errorf("write policy file: %w", err)
	}

	hash := pol.Fingerprint()

	p.mu.Lock()
	changed = hash != p.lastHash
	p.lastHash = hash
	p.mu.Unlock()

	if changed {
		p.log.Info("policy published",
			"mode", pol.Mode,
			"allow_trading", pol.AllowTrading,
			"ttl_sec", pol.TTLSec,
			"reason", pol.Reason,
			"fingerprint", hash[:12])
	}
	return changed, nil
}

// LastFingerprint returns the fingerprint of the last published policy.
func (p *Publisher) LastFingerprint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastHash
}
