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

// Package invite implements the invitation engine: role-gated grants that
// let an existing account (or a fresh one) join a tenant under a specific
// role.
package invite

import (
	"context"
	"errors"

	"github.com/pharmatrix/phx-cloud/internal/authz"
)

// Domain errors
var (
	ErrInvitationNotFound = errors.New("no invitation found")
	ErrInvitationExpired  = errors.New("invitation has expired")
	ErrRoleNotInvitable   = errors.New("role cannot be invited")
	ErrNotAllowedToInvite = errors.New("caller cannot invite this role")
	ErrAlreadyMember      = errors.New("user already holds an equivalent role")
	ErrInvalidInvitation  = errors.New("invalid invitation payload")
)

// Invitation is a pending (context, email) grant. At most one invitation
// exists per pair; re-sending replaces the previous one.
type Invitation struct {
	Context authz.Context `json:"context"`
	Name    string        `json:"name"`
	Email   string        `json:"email"`
	Expiry  int64         `json:"expiry"` // unix milliseconds
	Added   Added         `json:"added"`
}

// Added records the inviter and the send time.
type Added struct {
	By string `json:"by"`
	At int64  `json:"at"` // unix milliseconds
}

// Repository persists invitations.
type Repository interface {
	// Upsert stores the invitation, replacing any previous one for the same
	// (context, email) pair.
	Upsert(ctx context.Context, inv *Invitation) error

	// Get retrieves the invitation for an exact (context, email) pair.
	Get(ctx context.Context, c authz.Context, email string) (*Invitation, error)

	// ListByContextType lists pending invitations for a context type,
	// optionally narrowed to one tenant (empty tenantID means all).
	ListByContextType(ctx context.Context, typ authz.ContextType, tenantID string) ([]Invitation, error)

	// Delete removes the invitation for an exact (context, email) pair.
	Delete(ctx context.Context, c authz.Context, email string) error
}

// invitable maps each context type to the roles that may be granted
// through an invitation. SU:ADMIN is deliberately absent everywhere: the
// root role can never be handed out.
var invitable = map[authz.ContextType][]authz.Role{
	authz.ContextSuper: {
		authz.RoleSuperManager,
	},
	authz.ContextPharmacy: {
		authz.RolePharmacyAdmin,
		authz.RolePharmacyManager,
		authz.RolePharmacyOperator,
		authz.RolePharmacySupport,
		authz.RolePharmacyDeveloper,
	},
	authz.ContextHospital: {
		authz.RoleHospitalAdmin,
		authz.RoleHospitalPractician,
	},
}

// inviters maps each context type to the roles allowed to send invitations
// into it. Supers can staff any tenant; tenant admins and (for pharmacies)
// managers can staff their own.
var inviters = map[authz.ContextType][]authz.Role{
	authz.ContextSuper: {
		authz.RoleSuperAdmin,
		authz.RoleSuperManager,
	},
	authz.ContextPharmacy: {
		authz.RoleSuperAdmin,
		authz.RoleSuperManager,
		authz.RolePharmacyAdmin,
		authz.RolePharmacyManager,
	},
	authz.ContextHospital: {
		authz.RoleSuperAdmin,
		authz.RoleSuperManager,
		authz.RoleHospitalAdmin,
	},
}

// Invitable reports whether the role may be granted in the context type.
func Invitable(typ authz.ContextType, role authz.Role) bool {
	for _, r := range invitable[typ] {
		if r == role {
			return true
		}
	}
	return false
}

// CanInvite reports whether the inviter role may send invitations into the
// context type.
func CanInvite(typ authz.ContextType, role authz.Role) bool {
	for _, r := range inviters[typ] {
		if r == role {
			return true
		}
	}
	return false
}
