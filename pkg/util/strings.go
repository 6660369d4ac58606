package util

import "strings"

const EmptyString = ""

func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == EmptyString
}

// Redact masks everything but the last keep characters of a secret.
func Redact(value string, keep int) string {
	if value == EmptyString {
		return EmptyString
	}

	if len(value) <= keep {
		return strings.Repeat("*", len(value))
	}

	return strings.Repeat("*", len(value)-keep) + value[len(value)-keep:]
}
