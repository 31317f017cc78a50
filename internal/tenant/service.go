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

package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatrix/phx-cloud/internal/audit"
	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
)

// Service manages tenant registration and lifecycle.
type Service struct {
	repo     Repository
	branches BranchRepository
	users    identity.UserRepository
	audit    audit.Logger
	now      func() time.Time
}

// NewService creates a tenant service.
func NewService(repo Repository, branches BranchRepository, users identity.UserRepository, auditLogger audit.Logger) *Service {
	return &Service{
		repo:     repo,
		branches: branches,
		users:    users,
		audit:    auditLogger,
		now:      time.Now,
	}
}

// RegisterInput is the payload accepted by Register.
type RegisterInput struct {
	Type          Type
	Name          string
	LicenseNumber string
	Contacts      Contacts
	Location      identity.Location
}

// Register creates a tenant on behalf of the caller. A tenant-family admin
// registering their own organization gets it attached as their acting
// context; super users register on others' behalf and stay detached.
func (s *Service) Register(ctx context.Context, caller *identity.User, in RegisterInput) (*Tenant, error) {
	if !in.Type.Valid() {
		return nil, ErrInvalidTenantType
	}
	if in.Name == "" {
		return nil, ErrInvalidPayload
	}

	role := caller.Account.Context.Role
	switch role.Family {
	case authz.FamilySuper:
		// Operators can provision either tenant type.
	case in.Type.Family():
		if role.Rank != "ADMIN" {
			return nil, authz.ErrUnauthorized
		}
		if caller.Account.Context.ID != "" {
			// One organization per admin account.
			return nil, ErrTenantAlreadyExists
		}
	default:
		return nil, authz.ErrUnauthorized
	}

	now := s.now()
	t := &Tenant{
		Type:          in.Type,
		ID:            GenerateID(in.Type, now),
		Name:          in.Name,
		LicenseNumber: in.LicenseNumber,
		Contacts:      in.Contacts,
		Location:      in.Location,
		Registered:    Stamp{By: caller.Email, At: now.UnixMilli()},
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	// Bind the registering admin to their new organization.
	if role.Family == in.Type.Family() {
		attached := caller.Account.Context
		attached.ID = t.ID
		if err := s.users.ReassignContext(ctx, caller.Email, attached); err != nil {
			return nil, fmt.Errorf("failed to attach tenant context: %w", err)
		}
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionCreateTenant,
		UID:     caller.Email,
		Context: caller.Account.Context,
		Data:    map[string]any{"tenant_id": t.ID, "type": t.Type, "name": t.Name},
	})

	return t, nil
}

// Resolve maps a route tenant identifier to a concrete tenant, translating
// the "me" sentinel to the caller's own organization.
func (s *Service) Resolve(ctx context.Context, caller *identity.User, id string) (*Tenant, error) {
	if id == "me" || id == "" {
		id = caller.Account.Context.ID
		if id == "" {
			return nil, ErrTenantNotFound
		}
	}
	return s.repo.Get(ctx, id)
}

// Get retrieves a tenant by its concrete ID.
func (s *Service) Get(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of tenants ordered by registration time, newest
// first. cursor is a registered.at bound from a previous page, zero for the
// first page.
func (s *Service) List(ctx context.Context, typ Type, cursor int64, limit int) (*Page, error) {
	if !typ.Valid() {
		return nil, ErrInvalidTenantType
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	items, err := s.repo.List(ctx, typ, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.More = true
	}
	if n := len(page.Items); n > 0 {
		page.Cursor = page.Items[n-1].Registered.At
	}
	return page, nil
}

// Search matches tenants of a type by name, ID or license number.
func (s *Service) Search(ctx context.Context, typ Type, query string, limit int) ([]Tenant, error) {
	if !typ.Valid() {
		return nil, ErrInvalidTenantType
	}
	if query == "" {
		return nil, ErrInvalidPayload
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.Search(ctx, typ, query, limit)
}

// Update applies a partial mutation to the tenant.
func (s *Service) Update(ctx context.Context, caller *identity.User, id string, upd Update) (*Tenant, error) {
	t, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionUpdateTenant,
		UID:     caller.Email,
		Context: caller.Account.Context,
		Data:    map[string]any{"tenant_id": t.ID},
	})
	return t, nil
}

// Delete removes a tenant and cascades: every branch is dropped and member
// accounts have their acting context detached, leaving the accounts
// themselves intact.
func (s *Service) Delete(ctx context.Context, caller *identity.User, id string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.branches.DeleteByTenant(ctx, t.ID); err != nil {
		return fmt.Errorf("failed to delete tenant branches: %w", err)
	}
	if err := s.users.DetachContexts(ctx, t.ID); err != nil {
		return fmt.Errorf("failed to detach member contexts: %w", err)
	}
	if err := s.repo.Delete(ctx, t.ID); err != nil {
		return err
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionDeleteTenant,
		UID:     caller.Email,
		Context: caller.Account.Context,
		Data:    map[string]any{"tenant_id": t.ID, "type": t.Type},
	})
	return nil
}

// AddBranch creates a branch under the tenant.
func (s *Service) AddBranch(ctx context.Context, caller *identity.User, tenantID string, b Branch) (*Branch, error) {
	t, err := s.Resolve(ctx, caller, tenantID)
	if err != nil {
		return nil, err
	}
	if b.Name == "" {
		return nil, ErrInvalidPayload
	}

	b.ID = uuid.NewString()
	b.TenantID = t.ID
	b.Created = Stamp{By: caller.Email, At: s.now().UnixMilli()}

	if err := s.branches.Create(ctx, &b); err != nil {
		return nil, fmt.Errorf("failed to create branch: %w", err)
	}
	return &b, nil
}

// Branches lists the tenant's branches.
func (s *Service) Branches(ctx context.Context, caller *identity.User, tenantID string) ([]Branch, error) {
	t, err := s.Resolve(ctx, caller, tenantID)
	if err != nil {
		return nil, err
	}
	return s.branches.ListByTenant(ctx, t.ID)
}

// RemoveBranch deletes one branch of the tenant.
func (s *Service) RemoveBranch(ctx context.Context, caller *identity.User, tenantID, branchID string) error {
	t, err := s.Resolve(ctx, caller, tenantID)
	if err != nil {
		return err
	}
	return s.branches.Delete(ctx, t.ID, branchID)
}
