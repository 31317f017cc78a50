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

// Package tenant manages the platform's pharmacy and hospital
// organizations and their branches.
package tenant

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
)

// Domain errors
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrInvalidTenantType   = errors.New("invalid tenant type")
	ErrInvalidPayload      = errors.New("invalid tenant payload")
	ErrBranchNotFound      = errors.New("branch not found")
)

// Type discriminates tenant organizations.
type Type string

const (
	TypePharmacy Type = "pharmacy"
	TypeHospital Type = "hospital"
)

// Valid reports whether t is a known tenant type.
func (t Type) Valid() bool {
	return t == TypePharmacy || t == TypeHospital
}

// Family returns the role family operating tenants of this type.
func (t Type) Family() authz.Family {
	if t == TypeHospital {
		return authz.FamilyHospital
	}
	return authz.FamilyPharmacy
}

// ContextType returns the acting-context type for this tenant type.
func (t Type) ContextType() authz.ContextType {
	if t == TypeHospital {
		return authz.ContextHospital
	}
	return authz.ContextPharmacy
}

// Tenant is a registered organization.
type Tenant struct {
	Type          Type     `json:"type"`
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	LicenseNumber string   `json:"license_number,omitempty"`
	Contacts      Contacts `json:"contacts"`
	Location      identity.Location `json:"location"`
	Registered    Stamp    `json:"registered"`
}

// Contacts lists the organization's reachable endpoints.
type Contacts struct {
	Phones []string `json:"phones,omitempty"`
	Emails []string `json:"emails,omitempty"`
}

// Stamp records who performed an action and when, in unix milliseconds.
type Stamp struct {
	By string `json:"by"`
	At int64  `json:"at"`
}

// Branch is a physical outlet of a tenant.
type Branch struct {
	ID       string            `json:"id"`
	TenantID string            `json:"tenant_id"`
	Name     string            `json:"name"`
	Location identity.Location `json:"location"`
	Contacts Contacts          `json:"contacts"`
	Created  Stamp             `json:"created"`
}

// GenerateID derives a new tenant identifier from the current clock: a
// type prefix plus the reversed millisecond timestamp digits, so IDs stay
// short while consecutive registrations differ in their leading digits.
// Uniqueness is ultimately enforced by the store.
func GenerateID(t Type, now time.Time) string {
	prefix := "PH-"
	if t == TypeHospital {
		prefix = "HP-"
	}
	digits := []byte(strconv.FormatInt(now.UnixMilli(), 10))
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return prefix + string(digits)
}

// Page is a cursor-bounded slice of tenants ordered by registration time,
// newest first. Cursor is the registered.at of the last item, or zero when
// the listing is exhausted.
type Page struct {
	Items  []Tenant `json:"items"`
	Cursor int64    `json:"cursor,omitempty"`
	More   bool     `json:"more"`
}

// Repository persists tenants.
type Repository interface {
	// Create inserts a tenant; the ID must be unique.
	Create(ctx context.Context, t *Tenant) error

	// Get retrieves a tenant by ID.
	Get(ctx context.Context, id string) (*Tenant, error)

	// Update applies a partial update and returns the stored tenant.
	Update(ctx context.Context, id string, upd Update) (*Tenant, error)

	// List returns tenants of the given type registered strictly before
	// cursor (all when cursor is zero), newest first, at most limit.
	List(ctx context.Context, typ Type, cursor int64, limit int) ([]Tenant, error)

	// Search matches name, ID or license number against the query.
	Search(ctx context.Context, typ Type, query string, limit int) ([]Tenant, error)

	// Delete removes the tenant row.
	Delete(ctx context.Context, id string) error
}

// Update is a partial tenant mutation; nil fields are left untouched.
type Update struct {
	Name          *string            `json:"name,omitempty"`
	LicenseNumber *string            `json:"license_number,omitempty"`
	Contacts      *Contacts          `json:"contacts,omitempty"`
	Location      *identity.Location `json:"location,omitempty"`
}

// BranchRepository persists tenant branches.
type BranchRepository interface {
	Create(ctx context.Context, b *Branch) error
	Get(ctx context.Context, tenantID, branchID string) (*Branch, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Branch, error)
	Delete(ctx context.Context, tenantID, branchID string) error

	// DeleteByTenant removes every branch of the tenant. Used by the
	// tenant-delete cascade.
	DeleteByTenant(ctx context.Context, tenantID string) error
}
