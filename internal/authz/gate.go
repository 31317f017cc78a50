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

import "errors"

// Gate decision errors.
var (
	// ErrDisconnected means no authenticated caller reached the gate.
	ErrDisconnected = errors.New("caller is disconnected")
	// ErrUnauthorized means the caller is known but not permitted.
	ErrUnauthorized = errors.New("caller is not authorized")
)

// Caller is the resolved identity a request acts as.
type Caller struct {
	Context Context
}

// Gate decides whether a resolved caller may invoke an endpoint. A single
// gate instance serves every route; per-route policy is carried entirely in
// the arguments, which lets one handler implementation back the /super,
// /pharmacy and /hospital mounts without bespoke checks.
type Gate struct{}

// Allow applies the three-tier check:
//
//  1. a caller must be attached and carry a role,
//  2. the caller's role (exact or by family wildcard) must appear in the
//     endpoint's required list,
//  3. the endpoint's context type restricts which families may enter at
//     all: super admits only SU, pharmacy admits SU and PU, hospital
//     admits SU and HU,
//  4. when the route addresses a tenant, non-SU callers may only address
//     "me" or their own context id.
//
// contextType may be empty for tenant-family-agnostic endpoints, and
// tenantParam empty for routes without a tenant identifier.
func (Gate) Allow(caller *Caller, required []Requirement, contextType ContextType, tenantParam string) error {
	if caller == nil {
		return ErrDisconnected
	}
	role := caller.Context.Role
	if role.IsZero() {
		return ErrUnauthorized
	}

	matched := false
	for _, q := range required {
		if q.Matches(role) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrUnauthorized
	}

	// Endpoint-family gating is a second filter on top of the role match:
	// a PU:ADMIN in the required list still cannot enter a /hospital mount.
	switch contextType {
	case ContextSuper:
		if role.Family != FamilySuper {
			return ErrUnauthorized
		}
	case ContextPharmacy:
		if role.Family != FamilySuper && role.Family != FamilyPharmacy {
			return ErrUnauthorized
		}
	case ContextHospital:
		if role.Family != FamilySuper && role.Family != FamilyHospital {
			return ErrUnauthorized
		}
	}

	// Self-scoping: a non-super caller can never act on another tenant's
	// resources, role match or not.
	if tenantParam != "" && role.Family != FamilySuper {
		if tenantParam != "me" && tenantParam != caller.Context.ID {
			return ErrUnauthorized
		}
	}

	return nil
}
