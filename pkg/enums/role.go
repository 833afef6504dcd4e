package enums

import "fmt"

// Role is a platform-wide role gating administrative and privileged calls.
type Role string

const (
	RoleOwner          Role = "owner"
	RoleNetworkService Role = "network_service"
)

// IsValid reports whether the value is a known role.
func (r Role) IsValid() bool {
	return r == RoleOwner || r == RoleNetworkService
}

// ParseRole converts raw input into Role.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleNetworkService:
		return RoleNetworkService, nil
	}
	return "", fmt.Errorf("invalid role %q", value)
}
