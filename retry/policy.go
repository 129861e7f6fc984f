// Package retry implements the per-agent retry policy of the orchestration
// engine: exponential backoff with uniform jitter and an error-kind predicate
// deciding which failures are worth another attempt.
package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/bayonhq/coagent/types"
)

// Policy decides whether a failed agent invocation should be retried and how
// long to wait before the next attempt.
//
// The delay for attempt n (1-based) is
//
//	min(MaxDelay, BaseDelay * Multiplier^(n-1)) + uniform[0, JitterRange)
//
// Jitter is drawn per call from an independently seeded source so parallel
// steps retrying at the same moment do not stampede the same agent.
type Policy struct {
	// MaxAttempts is the total number of invocation attempts (first call
	// included). 1 means no retries.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
	// Multiplier is the exponential backoff factor.
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
	// JitterRange is the width of the uniform jitter added to every delay.
	JitterRange time.Duration `json:"jitter_range" yaml:"jitter_range"`
	// NonRetryable lists kinds that must never be retried in addition to the
	// kinds that are non-retryable by nature (validation, agent-unavailable,
	// cancelled, definition-error, persistence-error).
	NonRetryable []types.ErrorKind `json:"non_retryable,omitempty" yaml:"non_retryable,omitempty"`

	// rng guards jitter generation; lazily seeded on first use.
	rng   *rand.Rand
	rngMu sync.Mutex
}

// DefaultPolicy returns a conservative policy suitable for most agent calls:
// 3 attempts with 1s/2s backoff capped at 30s and up to 500ms jitter.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		JitterRange: 500 * time.Millisecond,
	}
}

// WithSeed fixes the jitter source, making delay sequences reproducible.
// Intended for tests.
func (p *Policy) WithSeed(seed int64) *Policy {
	p.rngMu.Lock()
	p.rng = rand.New(rand.NewSource(seed))
	p.rngMu.Unlock()
	return p
}

// ShouldRetry reports whether a failure of the given kind on the given
// attempt (1-based) warrants another invocation, and the delay to wait
// before it. A false result always carries a zero delay.
func (p *Policy) ShouldRetry(kind types.ErrorKind, attempt int) (bool, time.Duration) {
	if attempt >= p.maxAttempts() {
		return false, 0
	}
	if !p.retryable(kind) {
		return false, 0
	}
	return true, p.delay(attempt)
}

// retryable applies the kind's intrinsic retryability plus the policy's
// NonRetryable override list.
func (p *Policy) retryable(kind types.ErrorKind) bool {
	if !kind.Retryable() {
		return false
	}
	for _, k := range p.NonRetryable {
		if k == kind {
			return false
		}
	}
	return true
}

// delay computes the backoff for the given attempt (1-based).
func (p *Policy) delay(attempt int) time.Duration {
	base := float64(p.baseDelay()) * math.Pow(p.multiplier(), float64(attempt-1))
	if max := float64(p.maxDelay()); base > max {
		base = max
	}
	return time.Duration(base) + p.jitter()
}

// jitter draws a uniform duration in [0, JitterRange).
func (p *Policy) jitter() time.Duration {
	if p.JitterRange <= 0 {
		return 0
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return time.Duration(p.rng.Int63n(int64(p.JitterRange)))
}

func (p *Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p *Policy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return 1 * time.Second
	}
	return p.BaseDelay
}

func (p *Policy) maxDelay() time.Duration {
	if p.MaxDelay <= 0 {
		return 30 * time.Second
	}
	return p.MaxDelay
}

func (p *Policy) multiplier() float64 {
	if p.Multiplier < 1.0 {
		return 2.0
	}
	return p.Multiplier
}

// PolicySet maps agent names to policies with a shared default fallback.
type PolicySet struct {
	byAgent map[string]*Policy
	def     *Policy
	mu      sync.RWMutex
}

// NewPolicySet creates a PolicySet with the given default policy.
// A nil default falls back to DefaultPolicy.
func NewPolicySet(def *Policy) *PolicySet {
	if def == nil {
		def = DefaultPolicy()
	}
	return &PolicySet{
		byAgent: make(map[string]*Policy),
		def:     def,
	}
}

// Set assigns a policy to an agent name.
func (s *PolicySet) Set(agent string, policy *Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAgent[agent] = policy
}

// For returns the policy for the given agent, falling back to the default.
func (s *PolicySet) For(agent string) *Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.byAgent[agent]; ok {
		return p
	}
	return s.def
}
