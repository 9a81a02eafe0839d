package auth

import (
	"fmt"
	"strings"
)

// UserRole is the user's role
type UserRole string

const (
	// RolePatient is a clinic patient
	RolePatient UserRole = "patient"
	// RoleDoctor is a practitioner with a doctor profile
	RoleDoctor UserRole = "doctor"
	// RoleStaff is front desk and back office staff
	RoleStaff UserRole = "staff"
	// RoleAdmin manages users and clinic settings
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleStaff, RoleAdmin:
		return true
	default:
		return false
	}
}

// HasProfile reports whether registration creates a profile row for the role
func (r UserRole) HasProfile() bool {
	return r == RoleDoctor || r == RolePatient
}

func (r UserRole) String() string {
	return string(r)
}

// NormalizeRole trims and lower-cases a role name
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// ParseRole converts a string into a UserRole
func ParseRole(role string) (UserRole, error) {
	r := UserRole(NormalizeRole(role))
	if !r.IsValid() {
		return "", fmt.Errorf("invalid role: %q", role)
	}
	return r, nil
}

// RoleSet is a normalized set of role names
type RoleSet map[string]struct{}

// NewRoleSet builds a set from the given roles, normalizing every entry
func NewRoleSet(roles ...UserRole) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		name := NormalizeRole(string(role))
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Allows reports whether role belongs to the set
func (s RoleSet) Allows(role string) bool {
	_, ok := s[NormalizeRole(role)]
	return ok
}

// Names returns the set members, in no particular order
func (s RoleSet) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	return out
}
