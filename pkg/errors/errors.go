package apperrors

import "errors"

// Standardized external-call errors. Broker, advisory and calendar adapters
// map venue-specific failures onto these sentinels so the cycle logic can
// classify them with errors.Is.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNetwork              = errors.New("network error")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrOrderRejected        = errors.New("order rejected")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrMalformedAdvisory    = errors.New("malformed advisory response")
	ErrBrokerUnavailable    = errors.New("broker unavailable")
)

// IsTransient reports whether an error is worth re-evaluating next cycle
// rather than treating as a configuration problem.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrBrokerUnavailable)
}
