// Package shared provides common utility functions used across multiple
// packages in the chainsnap codebase.
package shared

import (
	"fmt"
	"strings"
)

// HTTPStatusErrorWithBody creates a formatted error that includes the
// response body for non-2xx HTTP responses.
func HTTPStatusErrorWithBody(status int, url string, body string) error {
	return fmt.Errorf("status=%d url=%s response=%s", status, url, body)
}

// CommandError wraps a command execution error with its trimmed output
// for cleaner error messages.
func CommandError(output []byte, err error) error {
	return fmt.Errorf("%s: %w", strings.TrimSpace(string(output)), err)
}

// NormalizeIdentity uppercases a signer identity and strips whitespace so
// fingerprints copied from gpg output compare equal.
func NormalizeIdentity(value string) string {
	replacer := strings.NewReplacer(" ", "", "\t", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(value)))
}
