package enums

import "fmt"

// TokenStatus tracks whether a payment token may settle transfers.
type TokenStatus string

const (
	TokenStatusActive TokenStatus = "active"
	TokenStatusPaused TokenStatus = "paused"
)

// IsValid reports whether the value is a known token status.
func (s TokenStatus) IsValid() bool {
	return s == TokenStatusActive || s == TokenStatusPaused
}

// ParseTokenStatus converts raw input into TokenStatus.
func ParseTokenStatus(value string) (TokenStatus, error) {
	switch TokenStatus(value) {
	case TokenStatusActive:
		return TokenStatusActive, nil
	case TokenStatusPaused:
		return TokenStatusPaused, nil
	}
	return "", fmt.Errorf("invalid token status %q", value)
}
