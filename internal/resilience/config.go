package resilience

import (
	"time"
)

// EndpointPolicy converts collaborator settings into the retry and breaker
// configuration applied to each endpoint. retriesPerEndpoint counts the
// tries after the first one, so 0 disables retries; a negative value keeps
// the default.
func EndpointPolicy(retriesPerEndpoint, failureThreshold, resetTimeoutSecs int) (RetryConfig, CircuitBreakerConfig) {
	retry := DefaultRetryConfig()
	if retriesPerEndpoint >= 0 {
		retry.MaxAttempts = retriesPerEndpoint + 1
	}

	breaker := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		breaker.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		breaker.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return retry, breaker
}
