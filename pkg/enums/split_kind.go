package enums

import "fmt"

// SplitKind describes how a plan divides a billed amount across receivers.
type SplitKind string

const (
	// SplitKindFixed assigns each receiver its configured absolute amount.
	SplitKindFixed SplitKind = "fixed"
	// SplitKindPercentage splits the billed amount by basis-point shares.
	SplitKindPercentage SplitKind = "percentage"
)

// IsValid reports whether the value is a known split kind.
func (k SplitKind) IsValid() bool {
	return k == SplitKindFixed || k == SplitKindPercentage
}

// ParseSplitKind converts raw input into SplitKind.
func ParseSplitKind(value string) (SplitKind, error) {
	switch SplitKind(value) {
	case SplitKindFixed:
		return SplitKindFixed, nil
	case SplitKindPercentage:
		return SplitKindPercentage, nil
	}
	return "", fmt.Errorf("invalid split kind %q", value)
}
