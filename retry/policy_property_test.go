package retry

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/bayonhq/coagent/types"
)

// Property: for any policy configuration, the delay sequence is
// non-decreasing modulo jitter and the attempt count never exceeds the
// configured maximum.
func TestProperty_BackoffDelaysNonDecreasing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("delays grow monotonically up to the cap", prop.ForAll(
		func(baseMs int, multTenths int, maxAttempts int, seed int64) bool {
			p := (&Policy{
				MaxAttempts: maxAttempts,
				BaseDelay:   time.Duration(baseMs) * time.Millisecond,
				MaxDelay:    time.Duration(baseMs*100) * time.Millisecond,
				Multiplier:  float64(multTenths) / 10.0,
				JitterRange: 0,
			}).WithSeed(seed)

			var prev time.Duration
			for attempt := 1; attempt < maxAttempts; attempt++ {
				ok, delay := p.ShouldRetry(types.ErrKindTimeout, attempt)
				if !ok {
					return false
				}
				if delay < prev {
					return false
				}
				prev = delay
			}

			// The attempt at the limit must be refused.
			ok, _ := p.ShouldRetry(types.ErrKindTimeout, maxAttempts)
			return !ok
		},
		gen.IntRange(1, 1000),
		gen.IntRange(10, 40), // multiplier 1.0 .. 4.0
		gen.IntRange(2, 8),
		gen.Int64(),
	))

	properties.Property("jitter never pushes a delay below the deterministic backoff", prop.ForAll(
		func(baseMs int, jitterMs int, attempt int, seed int64) bool {
			p := (&Policy{
				MaxAttempts: 10,
				BaseDelay:   time.Duration(baseMs) * time.Millisecond,
				MaxDelay:    time.Hour,
				Multiplier:  2.0,
				JitterRange: time.Duration(jitterMs) * time.Millisecond,
			}).WithSeed(seed)

			floor := (&Policy{
				MaxAttempts: 10,
				BaseDelay:   time.Duration(baseMs) * time.Millisecond,
				MaxDelay:    time.Hour,
				Multiplier:  2.0,
			}).delay(attempt)

			_, delay := p.ShouldRetry(types.ErrKindNetwork, attempt)
			return delay >= floor && delay < floor+time.Duration(jitterMs)*time.Millisecond
		},
		gen.IntRange(1, 500),
		gen.IntRange(1, 200),
		gen.IntRange(1, 9),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
