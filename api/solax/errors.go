package solax

import (
	"errors"
	"strings"
)

// ErrAuthentication marks a token/serial combination the cloud refused.
var ErrAuthentication = errors.New("authentication failed")

type APIError struct {
	Endpoint string
	Message  string
	Code     *int
	Err      error
}

func (e *APIError) Error() string {
	if e.Err == nil || errors.Is(e.Err, ErrAuthentication) {
		return e.Message
	}

	return e.Message + ": " + e.Err.Error()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// Message returns the vendor facing message carried by err, or "" when err
// is not an APIError.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	return ""
}

// Invalid token/serial combinations come back as success=false with one of
// these fragments in the exception text.
var authenticationFragments = []string{"not match", "tokenid", "does not belong"}

func isAuthenticationMessage(message string) bool {
	lowered := strings.ToLower(message)
	for _, fragment := range authenticationFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}

	return false
}
