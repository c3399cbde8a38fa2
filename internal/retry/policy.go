package retry

import (
	"math"
	"time"

	"stock-sync-service/internal/domain"
)

const (
	// Cooldown applies after any attempt, whatever the category
	Cooldown = 5 * time.Minute
	// MinDelay is the floor for every computed retry delay
	MinDelay = 30 * time.Second

	maxBackoffExponent = 4
	jitterLow          = 0.8
	jitterHigh         = 1.2
)

// Policy bounds automatic retries for one error category
type Policy struct {
	MaxAttempts int
	MinWait     time.Duration
	BaseDelay   time.Duration
}

var policies = map[domain.ErrorType]Policy{
	domain.ErrorTypeRateLimit:       {MaxAttempts: 5, MinWait: 10 * time.Minute, BaseDelay: 300 * time.Second},
	domain.ErrorTypeNetwork:         {MaxAttempts: 3, MinWait: 2 * time.Minute, BaseDelay: 60 * time.Second},
	domain.ErrorTypeTimeout:         {MaxAttempts: 3, MinWait: 5 * time.Minute, BaseDelay: 120 * time.Second},
	domain.ErrorTypeAPIError:        {MaxAttempts: 2, MinWait: 10 * time.Minute, BaseDelay: 180 * time.Second},
	domain.ErrorTypeUnknown:         {MaxAttempts: 2, MinWait: 10 * time.Minute, BaseDelay: 300 * time.Second},
	domain.ErrorTypeProductNotFound: {MaxAttempts: 1, MinWait: 60 * time.Minute, BaseDelay: 1800 * time.Second},
	domain.ErrorTypeAuth:            {MaxAttempts: 1, MinWait: 30 * time.Minute, BaseDelay: 600 * time.Second},
	domain.ErrorTypeValidation:      {MaxAttempts: 1, MinWait: 60 * time.Minute, BaseDelay: 900 * time.Second},
	// only a manual resync moves these again
	domain.ErrorTypePermanentlyFailed: {MaxAttempts: 0, MinWait: 0, BaseDelay: 300 * time.Second},
}

// PolicyFor returns the policy of a category; unrecognized categories get the unknown policy
func PolicyFor(errorType domain.ErrorType) Policy {
	if policy, ok := policies[errorType]; ok {
		return policy
	}
	return policies[domain.ErrorTypeUnknown]
}

// MaxPolicyAttempts returns the largest attempt cap of any category
func MaxPolicyAttempts() int {
	highest := 0
	for _, policy := range policies {
		highest = max(highest, policy.MaxAttempts)
	}
	return highest
}

// RunnerCeiling returns the host runner's attempt ceiling. A configured value
// at or below a category cap is raised so the category always decides first.
func RunnerCeiling(configured int) int {
	return max(configured, MaxPolicyAttempts()+1)
}

// CanRetry reports whether the category cap still allows another attempt
func CanRetry(errorType domain.ErrorType, attempts int) bool {
	return attempts < PolicyFor(errorType).MaxAttempts
}

// Delay computes max(30s, base * 2^min(attempts,4) * jitter).
// attempts is the record's sync_attempts before the retry is issued and
// jitter is expected in [0.8, 1.2].
func Delay(errorType domain.ErrorType, attempts int, jitter float64) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	exponent := min(attempts, maxBackoffExponent)
	seconds := PolicyFor(errorType).BaseDelay.Seconds() * math.Pow(2, float64(exponent)) * jitter

	delay := time.Duration(seconds * float64(time.Second))
	if delay < MinDelay {
		return MinDelay
	}
	return delay
}
