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
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrix/phx-cloud/internal/audit"
	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
)

type memTenantRepo struct {
	tenants map[string]*Tenant
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: make(map[string]*Tenant)}
}

func (m *memTenantRepo) Create(_ context.Context, t *Tenant) error {
	if _, ok := m.tenants[t.ID]; ok {
		return ErrTenantAlreadyExists
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *memTenantRepo) Get(_ context.Context, id string) (*Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTenantRepo) Update(_ context.Context, id string, upd Update) (*Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.LicenseNumber != nil {
		t.LicenseNumber = *upd.LicenseNumber
	}
	if upd.Contacts != nil {
		t.Contacts = *upd.Contacts
	}
	if upd.Location != nil {
		t.Location = *upd.Location
	}
	cp := *t
	return &cp, nil
}

func (m *memTenantRepo) List(_ context.Context, typ Type, cursor int64, limit int) ([]Tenant, error) {
	var out []Tenant
	for _, t := range m.tenants {
		if t.Type != typ {
			continue
		}
		if cursor > 0 && t.Registered.At >= cursor {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Registered.At > out[j].Registered.At })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTenantRepo) Search(_ context.Context, typ Type, query string, limit int) ([]Tenant, error) {
	q := strings.ToLower(query)
	var out []Tenant
	for _, t := range m.tenants {
		if t.Type != typ {
			continue
		}
		if strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.ID), q) ||
			strings.Contains(strings.ToLower(t.LicenseNumber), q) {
			out = append(out, *t)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTenantRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.tenants[id]; !ok {
		return ErrTenantNotFound
	}
	delete(m.tenants, id)
	return nil
}

type memBranchRepo struct {
	branches map[string]*Branch
}

func newMemBranchRepo() *memBranchRepo {
	return &memBranchRepo{branches: make(map[string]*Branch)}
}

func (m *memBranchRepo) Create(_ context.Context, b *Branch) error {
	cp := *b
	m.branches[b.ID] = &cp
	return nil
}

func (m *memBranchRepo) Get(_ context.Context, tenantID, branchID string) (*Branch, error) {
	b, ok := m.branches[branchID]
	if !ok || b.TenantID != tenantID {
		return nil, ErrBranchNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBranchRepo) ListByTenant(_ context.Context, tenantID string) ([]Branch, error) {
	var out []Branch
	for _, b := range m.branches {
		if b.TenantID == tenantID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memBranchRepo) Delete(_ context.Context, tenantID, branchID string) error {
	b, ok := m.branches[branchID]
	if !ok || b.TenantID != tenantID {
		return ErrBranchNotFound
	}
	delete(m.branches, branchID)
	return nil
}

func (m *memBranchRepo) DeleteByTenant(_ context.Context, tenantID string) error {
	for id, b := range m.branches {
		if b.TenantID == tenantID {
			delete(m.branches, id)
		}
	}
	return nil
}

// memUserContexts implements just enough of identity.UserRepository for the
// tenant service: ReassignContext and DetachContexts.
type memUserContexts struct {
	contexts map[string]authz.Context
}

func newMemUserContexts() *memUserContexts {
	return &memUserContexts{contexts: make(map[string]authz.Context)}
}

func (m *memUserContexts) ReassignContext(_ context.Context, email string, c authz.Context) error {
	m.contexts[email] = c
	return nil
}

func (m *memUserContexts) DetachContexts(_ context.Context, tenantID string) error {
	for email, c := range m.contexts {
		if c.ID == tenantID {
			m.contexts[email] = authz.Context{}
		}
	}
	return nil
}

func (m *memUserContexts) Create(context.Context, *identity.User) error { return nil }
func (m *memUserContexts) GetByEmail(context.Context, string) (*identity.User, error) {
	return nil, identity.ErrUserNotFound
}
func (m *memUserContexts) GetConnected(context.Context, string, string) (*identity.User, error) {
	return nil, identity.ErrUserNotFound
}
func (m *memUserContexts) SetConnectionToken(context.Context, string, string) error   { return nil }
func (m *memUserContexts) ClearConnectionToken(context.Context, string) error         { return nil }
func (m *memUserContexts) VerifyEmail(context.Context, string, int, string) error     { return nil }
func (m *memUserContexts) SetResendState(context.Context, string, int, int64) error   { return nil }
func (m *memUserContexts) SetResetRequest(context.Context, string, string, int64) error { return nil }
func (m *memUserContexts) ResetPassword(context.Context, string, string, int64, string) error {
	return nil
}
func (m *memUserContexts) Delete(context.Context, string) error { return nil }

func pharmacyAdmin(email, tenantID string) *identity.User {
	return &identity.User{
		Email: email,
		Account: identity.Account{
			Context: authz.Context{Type: authz.ContextPharmacy, Role: authz.RolePharmacyAdmin, ID: tenantID},
		},
	}
}

func superAdmin(email string) *identity.User {
	return &identity.User{
		Email: email,
		Account: identity.Account{
			Context: authz.Context{Type: authz.ContextSuper, Role: authz.RoleSuperAdmin},
		},
	}
}

func newTestService() (*Service, *memTenantRepo, *memBranchRepo, *memUserContexts) {
	repo := newMemTenantRepo()
	branches := newMemBranchRepo()
	users := newMemUserContexts()
	svc := NewService(repo, branches, users, audit.NewSlogLogger())
	return svc, repo, branches, users
}

func TestGenerateID_PrefixesAndDiffers(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	ph := GenerateID(TypePharmacy, now)
	hp := GenerateID(TypeHospital, now)

	assert.True(t, strings.HasPrefix(ph, "PH-"))
	assert.True(t, strings.HasPrefix(hp, "HP-"))
	assert.NotEqual(t, GenerateID(TypePharmacy, now.Add(time.Millisecond)), ph)
}

func TestRegister_AdminGetsTenantAttached(t *testing.T) {
	svc, _, _, users := newTestService()
	admin := pharmacyAdmin("owner@example.com", "")

	created, err := svc.Register(context.Background(), admin, RegisterInput{
		Type: TypePharmacy,
		Name: "Corner Pharmacy",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.ID, "PH-"))
	assert.Equal(t, "owner@example.com", created.Registered.By)
	assert.Equal(t, created.ID, users.contexts["owner@example.com"].ID)
}

func TestRegister_SuperStaysDetached(t *testing.T) {
	svc, _, _, users := newTestService()

	created, err := svc.Register(context.Background(), superAdmin("root@phx.test"), RegisterInput{
		Type: TypeHospital,
		Name: "General Hospital",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.ID, "HP-"))
	_, attached := users.contexts["root@phx.test"]
	assert.False(t, attached)
}

func TestRegister_RejectsWrongFamily(t *testing.T) {
	svc, _, _, _ := newTestService()
	admin := pharmacyAdmin("owner@example.com", "")

	_, err := svc.Register(context.Background(), admin, RegisterInput{
		Type: TypeHospital,
		Name: "General Hospital",
	})
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}

func TestRegister_RejectsSecondTenant(t *testing.T) {
	svc, _, _, _ := newTestService()
	admin := pharmacyAdmin("owner@example.com", "PH-already")

	_, err := svc.Register(context.Background(), admin, RegisterInput{
		Type: TypePharmacy,
		Name: "Second Pharmacy",
	})
	assert.ErrorIs(t, err, ErrTenantAlreadyExists)
}

func TestResolve_MeSentinel(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.tenants["PH-1"] = &Tenant{Type: TypePharmacy, ID: "PH-1", Name: "Mine"}

	got, err := svc.Resolve(context.Background(), pharmacyAdmin("owner@example.com", "PH-1"), "me")
	require.NoError(t, err)
	assert.Equal(t, "PH-1", got.ID)

	// Detached callers have no "me".
	_, err = svc.Resolve(context.Background(), pharmacyAdmin("other@example.com", ""), "me")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestList_CursorPagination(t *testing.T) {
	svc, repo, _, _ := newTestService()
	for i := 1; i <= 5; i++ {
		id := "PH-" + strings.Repeat("0", i)
		repo.tenants[id] = &Tenant{
			Type:       TypePharmacy,
			ID:         id,
			Registered: Stamp{At: int64(i * 1000)},
		}
	}

	page, err := svc.List(context.Background(), TypePharmacy, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.More)
	assert.Equal(t, int64(5000), page.Items[0].Registered.At)
	assert.Equal(t, int64(4000), page.Cursor)

	page, err = svc.List(context.Background(), TypePharmacy, page.Cursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3000), page.Items[0].Registered.At)

	page, err = svc.List(context.Background(), TypePharmacy, page.Cursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.More)
}

func TestDelete_Cascades(t *testing.T) {
	svc, repo, branches, users := newTestService()
	ctx := context.Background()

	repo.tenants["PH-1"] = &Tenant{Type: TypePharmacy, ID: "PH-1", Name: "Mine"}
	branches.branches["b1"] = &Branch{ID: "b1", TenantID: "PH-1", Name: "Main"}
	branches.branches["b2"] = &Branch{ID: "b2", TenantID: "PH-1", Name: "East"}
	branches.branches["b3"] = &Branch{ID: "b3", TenantID: "PH-other", Name: "Unrelated"}
	users.contexts["member@example.com"] = authz.Context{
		Type: authz.ContextPharmacy, Role: authz.RolePharmacyOperator, ID: "PH-1",
	}

	require.NoError(t, svc.Delete(ctx, superAdmin("root@phx.test"), "PH-1"))

	_, err := repo.Get(ctx, "PH-1")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	assert.Len(t, branches.branches, 1, "only the unrelated branch survives")
	assert.True(t, users.contexts["member@example.com"].IsZero(), "member context detached")
}

func TestSearch_MatchesNameAndLicense(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.tenants["PH-1"] = &Tenant{Type: TypePharmacy, ID: "PH-1", Name: "Corner Pharmacy", LicenseNumber: "LIC-42"}
	repo.tenants["HP-1"] = &Tenant{Type: TypeHospital, ID: "HP-1", Name: "Corner Hospital"}

	got, err := svc.Search(context.Background(), TypePharmacy, "corner", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PH-1", got[0].ID)

	got, err = svc.Search(context.Background(), TypePharmacy, "lic-42", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
