package enums

import "fmt"

// PermissionTag names a plan-level capability an admin can delegate.
type PermissionTag string

const (
	PermissionTagBill      PermissionTag = "bill"
	PermissionTagTerminate PermissionTag = "terminate"
)

// IsValid reports whether the value is a known permission tag.
func (t PermissionTag) IsValid() bool {
	return t == PermissionTagBill || t == PermissionTagTerminate
}

// ParsePermissionTag converts raw input into PermissionTag.
func ParsePermissionTag(value string) (PermissionTag, error) {
	switch PermissionTag(value) {
	case PermissionTagBill:
		return PermissionTagBill, nil
	case PermissionTagTerminate:
		return PermissionTagTerminate, nil
	}
	return "", fmt.Errorf("invalid permission tag %q", value)
}
