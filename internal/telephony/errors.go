package telephony

import (
	"errors"
	"fmt"
)

// AuthError means signature/token validation failed. Non-retryable; the
// payload is dropped before parsing and no state is mutated.
type AuthError struct {
	Provider ProviderType
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("telephony: %s webhook auth failed: %s", e.Provider, e.Reason)
}

// ParseError means the payload was authenticated but malformed or could not
// be attributed to a known provider configuration. Non-retryable; logged and
// dropped without a queue mutation.
type ParseError struct {
	Provider ProviderType
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("telephony: %s webhook parse failed: %s", e.Provider, e.Reason)
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
