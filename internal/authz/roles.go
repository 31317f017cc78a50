// Copyright 2026 The PhxCloud Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

import (
	"errors"
	"fmt"
	"strings"
)

// Family is the two-letter tenant family code carried by every role.
type Family string

const (
	FamilySuper    Family = "SU"
	FamilyPharmacy Family = "PU"
	FamilyHospital Family = "HU"
)

// ContextType identifies which tenant family a context (or an endpoint
// mount) belongs to.
type ContextType string

const (
	ContextSuper    ContextType = "super"
	ContextPharmacy ContextType = "pharmacy"
	ContextHospital ContextType = "hospital"
)

// Family returns the role family owning a context type.
func (t ContextType) Family() (Family, bool) {
	switch t {
	case ContextSuper:
		return FamilySuper, true
	case ContextPharmacy:
		return FamilyPharmacy, true
	case ContextHospital:
		return FamilyHospital, true
	}
	return "", false
}

// Valid reports whether t is one of the known context types.
func (t ContextType) Valid() bool {
	_, ok := t.Family()
	return ok
}

// Role is a tenant-family role such as PU:MANAGER. The zero value means
// "no role assigned".
type Role struct {
	Family Family
	Rank   string
}

// Known roles.
var (
	RoleSuperAdmin   = Role{FamilySuper, "ADMIN"}
	RoleSuperManager = Role{FamilySuper, "MANAGER"}

	RolePharmacyAdmin     = Role{FamilyPharmacy, "ADMIN"}
	RolePharmacyManager   = Role{FamilyPharmacy, "MANAGER"}
	RolePharmacyOperator  = Role{FamilyPharmacy, "OPERATOR"}
	RolePharmacySupport   = Role{FamilyPharmacy, "SUPPORT"}
	RolePharmacyDeveloper = Role{FamilyPharmacy, "DEVELOPER"}

	RoleHospitalAdmin      = Role{FamilyHospital, "ADMIN"}
	RoleHospitalPractician = Role{FamilyHospital, "PRACTICIAN"}
)

// ErrInvalidRole is returned when a role string cannot be parsed.
var ErrInvalidRole = errors.New("invalid role")

// ParseRole parses a FAMILY:RANK role string.
func ParseRole(s string) (Role, error) {
	family, rank, ok := strings.Cut(s, ":")
	if !ok || rank == "" {
		return Role{}, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	switch Family(family) {
	case FamilySuper, FamilyPharmacy, FamilyHospital:
	default:
		return Role{}, fmt.Errorf("%w: unknown family in %q", ErrInvalidRole, s)
	}
	return Role{Family: Family(family), Rank: rank}, nil
}

// IsZero reports whether no role is set.
func (r Role) IsZero() bool {
	return r.Family == "" && r.Rank == ""
}

func (r Role) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Family) + ":" + r.Rank
}

// MarshalText encodes the role in its FAMILY:RANK wire form.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a FAMILY:RANK role string. An empty string decodes
// to the zero role.
func (r *Role) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = Role{}
		return nil
	}
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Context is the tenant family, role and tenant id a user currently acts
// under. ID is set iff the context is tenant-scoped (type != super).
type Context struct {
	Type ContextType `json:"type"`
	Role Role        `json:"role"`
	ID   string      `json:"id,omitempty"`
}

// IsZero reports whether the context is unassigned (as after a tenant
// deletion detached the user).
func (c Context) IsZero() bool {
	return c.Type == "" && c.Role.IsZero() && c.ID == ""
}

// Requirement is one entry of an endpoint's required-roles list: either a
// full role (PU:ADMIN) or a bare family wildcard (SU) matching any rank.
type Requirement struct {
	Family Family
	Rank   string // empty matches any rank within the family
}

// ParseRequirement accepts "SU", "SU:" and "SU:ADMIN" forms.
func ParseRequirement(s string) (Requirement, error) {
	family, rank, _ := strings.Cut(s, ":")
	switch Family(family) {
	case FamilySuper, FamilyPharmacy, FamilyHospital:
	default:
		return Requirement{}, fmt.Errorf("%w: unknown family in %q", ErrInvalidRole, s)
	}
	return Requirement{Family: Family(family), Rank: rank}, nil
}

// MustRequirements parses a required-roles list, panicking on malformed
// entries. Intended for route table literals.
func MustRequirements(entries ...string) []Requirement {
	reqs := make([]Requirement, 0, len(entries))
	for _, e := range entries {
		q, err := ParseRequirement(e)
		if err != nil {
			panic(err)
		}
		reqs = append(reqs, q)
	}
	return reqs
}

// Matches reports whether the role satisfies the requirement.
func (q Requirement) Matches(r Role) bool {
	if q.Family != r.Family {
		return false
	}
	return q.Rank == "" || q.Rank == r.Rank
}
