package domain

import dErrors "registrum/pkg/domain-errors"

// EntityRole is the sector an attesting institution belongs to.
// Invariant: the value must be one of the three recognized roles; quorum is
// counted per distinct role, never per institution, so a single sector cannot
// finalize a death on its own.
//
// Usage: construct via ParseEntityRole at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type EntityRole string

const (
	RoleHospital     EntityRole = "hospital"
	RoleMunicipality EntityRole = "municipality"
	RoleReligious    EntityRole = "religious"
)

// validEntityRoles is the single source of truth for recognized roles.
var validEntityRoles = map[EntityRole]bool{
	RoleHospital:     true,
	RoleMunicipality: true,
	RoleReligious:    true,
}

// AllEntityRoles returns the closed set of roles participating in quorum.
func AllEntityRoles() []EntityRole {
	return []EntityRole{RoleHospital, RoleMunicipality, RoleReligious}
}

// ParseEntityRole constructs an EntityRole from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or outside the
// recognized set; no other errors are expected.
func ParseEntityRole(s string) (EntityRole, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "entity role cannot be empty")
	}
	r := EntityRole(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unrecognized entity role: "+s)
	}
	return r, nil
}

func (r EntityRole) IsValid() bool { return validEntityRoles[r] }

func (r EntityRole) String() string { return string(r) }

// EntityIdentity is the authenticated identity of an attesting institution,
// as returned by the credential store. Core code trusts these fields.
type EntityIdentity struct {
	Role     EntityRole
	EntityID EntityID
	Name     string
}
