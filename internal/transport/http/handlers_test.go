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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrix/phx-cloud/internal/audit"
	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
	"github.com/pharmatrix/phx-cloud/internal/invite"
	"github.com/pharmatrix/phx-cloud/internal/subscription"
	"github.com/pharmatrix/phx-cloud/internal/tenant"
	"github.com/pharmatrix/phx-cloud/internal/token"
)

// ---- in-memory stores ----

type memUsers struct {
	mu    sync.Mutex
	users map[string]*identity.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*identity.User)}
}

func (m *memUsers) Create(_ context.Context, u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return identity.ErrUserAlreadyExists
	}
	cp := *u
	m.users[u.Email] = &cp
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetConnected(_ context.Context, email, connToken string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok || u.Connection.Token == "" || u.Connection.Token != connToken || u.Connection.Verification != nil {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) SetConnectionToken(_ context.Context, email, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.Connection.Token = tok
	return nil
}

func (m *memUsers) ClearConnectionToken(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.Connection.Token = ""
	return nil
}

func (m *memUsers) VerifyEmail(_ context.Context, email string, code int, newToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok || u.Connection.Verification == nil {
		return identity.ErrUserNotFound
	}
	v := u.Connection.Verification
	if v.Code != code || v.Expiry <= time.Now().UnixMilli() {
		return identity.ErrUserNotFound
	}
	u.Connection.Verification = nil
	u.Connection.Token = newToken
	return nil
}

func (m *memUsers) SetResendState(_ context.Context, email string, delaySeconds int, sentAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok || u.Connection.Verification == nil {
		return identity.ErrUserNotFound
	}
	u.Connection.Verification.ResendDelay = delaySeconds
	u.Connection.Verification.ResendSentAt = sentAt
	return nil
}

func (m *memUsers) SetResetRequest(_ context.Context, email, vtoken string, expiry int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.Connection.ResetPwd = &identity.ResetRequest{VToken: vtoken, Expiry: expiry}
	return nil
}

func (m *memUsers) ResetPassword(_ context.Context, email, vtoken string, now int64, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok || u.Connection.ResetPwd == nil {
		return identity.ErrUserNotFound
	}
	r := u.Connection.ResetPwd
	if r.VToken != vtoken || r.Expiry <= now {
		return identity.ErrUserNotFound
	}
	u.PasswordHash = newHash
	u.Connection.ResetPwd = nil
	u.Connection.Token = ""
	return nil
}

func (m *memUsers) ReassignContext(_ context.Context, email string, c authz.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.Account.Context = c
	return nil
}

func (m *memUsers) DetachContexts(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Account.Context.ID == tenantID && u.Account.Context.Role.Rank != "ADMIN" {
			u.Account.Context = authz.Context{}
		}
	}
	return nil
}

func (m *memUsers) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, email)
	return nil
}

type memTenants struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant
}

func newMemTenants() *memTenants {
	return &memTenants{tenants: make(map[string]*tenant.Tenant)}
}

func (m *memTenants) Create(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; ok {
		return tenant.ErrTenantAlreadyExists
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *memTenants) Get(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTenants) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tenants[id]
	return ok, nil
}

func (m *memTenants) Update(_ context.Context, id string, upd tenant.Update) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
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

func (m *memTenants) List(_ context.Context, typ tenant.Type, cursor int64, limit int) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tenant.Tenant
	for _, t := range m.tenants {
		if t.Type != typ {
			continue
		}
		if cursor != 0 && t.Registered.At >= cursor {
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

func (m *memTenants) Search(_ context.Context, typ tenant.Type, query string, limit int) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tenant.Tenant
	for _, t := range m.tenants {
		if t.Type == typ && (t.Name == query || t.ID == query || t.LicenseNumber == query) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTenants) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[id]; !ok {
		return tenant.ErrTenantNotFound
	}
	delete(m.tenants, id)
	return nil
}

type memBranches struct {
	mu       sync.Mutex
	branches map[string]*tenant.Branch
}

func newMemBranches() *memBranches {
	return &memBranches{branches: make(map[string]*tenant.Branch)}
}

func (m *memBranches) Create(_ context.Context, b *tenant.Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.branches[b.ID] = &cp
	return nil
}

func (m *memBranches) Get(_ context.Context, tenantID, branchID string) (*tenant.Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[branchID]
	if !ok || b.TenantID != tenantID {
		return nil, tenant.ErrBranchNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBranches) ListByTenant(_ context.Context, tenantID string) ([]tenant.Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tenant.Branch
	for _, b := range m.branches {
		if b.TenantID == tenantID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memBranches) Delete(_ context.Context, tenantID, branchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[branchID]
	if !ok || b.TenantID != tenantID {
		return tenant.ErrBranchNotFound
	}
	delete(m.branches, branchID)
	return nil
}

func (m *memBranches) DeleteByTenant(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.branches {
		if b.TenantID == tenantID {
			delete(m.branches, id)
		}
	}
	return nil
}

type invKey struct {
	typ   authz.ContextType
	role  string
	id    string
	email string
}

type memInvites struct {
	mu    sync.Mutex
	items map[invKey]*invite.Invitation
}

func newMemInvites() *memInvites {
	return &memInvites{items: make(map[invKey]*invite.Invitation)}
}

func keyOf(c authz.Context, email string) invKey {
	return invKey{typ: c.Type, role: c.Role.String(), id: c.ID, email: email}
}

func (m *memInvites) Upsert(_ context.Context, inv *invite.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.items[keyOf(inv.Context, inv.Email)] = &cp
	return nil
}

func (m *memInvites) Get(_ context.Context, c authz.Context, email string) (*invite.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[keyOf(c, email)]
	if !ok {
		return nil, invite.ErrInvitationNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvites) ListByContextType(_ context.Context, typ authz.ContextType, tenantID string) ([]invite.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []invite.Invitation
	for _, inv := range m.items {
		if inv.Context.Type != typ {
			continue
		}
		if tenantID != "" && inv.Context.ID != tenantID {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (m *memInvites) Delete(_ context.Context, c authz.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, keyOf(c, email))
	return nil
}

type memSubs struct {
	mu   sync.Mutex
	subs []*subscription.Subscription
}

func (m *memSubs) Create(_ context.Context, sub *subscription.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subs = append(m.subs, &cp)
	return nil
}

func (m *memSubs) GetByReference(_ context.Context, tenantID, reference string) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.TenantID == tenantID && s.Reference == reference {
			cp := *s
			return &cp, nil
		}
	}
	return nil, subscription.ErrSubscriptionNotFound
}

func (m *memSubs) GetActive(_ context.Context, tenantID string) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *subscription.Subscription
	for _, s := range m.subs {
		if s.TenantID != tenantID || s.Status != subscription.StatusActive {
			continue
		}
		if best == nil || s.Duration.End > best.Duration.End {
			best = s
		}
	}
	if best == nil {
		return nil, subscription.ErrSubscriptionNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memSubs) List(_ context.Context, q subscription.Query) ([]subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []subscription.Subscription
	for _, s := range m.subs {
		if s.TenantID != q.TenantID {
			continue
		}
		if q.Status != "" && s.Status != q.Status {
			continue
		}
		if q.Cursor != 0 && s.Subscribed.At >= q.Cursor {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subscribed.At > out[j].Subscribed.At })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memSubs) Search(_ context.Context, tenantID, query string, limit int) ([]subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []subscription.Subscription
	for _, s := range m.subs {
		if s.TenantID == tenantID && (s.Reference == query || s.PType == query || string(s.Status) == query) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSubs) Cancel(_ context.Context, tenantID, reference, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.TenantID == tenantID && s.Reference == reference && s.Status == subscription.StatusActive {
			s.Status = subscription.StatusCancelled
			s.Reason = reason
			return nil
		}
	}
	return subscription.ErrSubscriptionNotFound
}

func (m *memSubs) SweepPage(_ context.Context, cursor int64, limit int) ([]subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []subscription.Subscription
	for _, s := range m.subs {
		if s.Status == subscription.StatusActive && s.Subscribed.At > cursor {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subscribed.At < out[j].Subscribed.At })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSubs) Expire(_ context.Context, tenantID, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.TenantID == tenantID && s.Reference == reference && s.Status == subscription.StatusActive {
			s.Status = subscription.StatusExpired
			return nil
		}
	}
	return subscription.ErrSubscriptionNotFound
}

// captureMailer records delivered codes and invitation tokens.
type captureMailer struct {
	mu        sync.Mutex
	lastCode  int
	lastToken string
}

func (m *captureMailer) SendVerificationCode(_ context.Context, _ string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCode = code
}

func (m *captureMailer) SendResetLink(context.Context, string, string) {}

func (m *captureMailer) SendInvitation(_ context.Context, _, _, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastToken = token
}

func (m *captureMailer) code() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCode
}

func (m *captureMailer) token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastToken
}

// ---- harness ----

type testEnv struct {
	router  *chi.Mux
	users   *memUsers
	tenants *memTenants
	encoder *token.Encoder
	mailer  *captureMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newMemUsers()
	tenants := newMemTenants()
	branches := newMemBranches()
	invites := newMemInvites()
	subs := &memSubs{}
	mailer := &captureMailer{}
	encoder := token.NewEncoder("test-secret")
	auditLog := audit.NewSlogLogger()
	hasher := identity.NewPasswordHasher(8*1024, 1, 1, 16, 32)

	identitySvc := identity.NewService(users, hasher, encoder, mailer, auditLog, "root@phx.test")
	tenantSvc := tenant.NewService(tenants, branches, users, auditLog)
	inviteSvc := invite.NewService(invites, users, tenants, encoder, mailer, auditLog)
	subSvc := subscription.NewService(subs, auditLog)

	h := NewHandler(identitySvc, tenantSvc, inviteSvc, subSvc)
	router := NewRouter(h, NewRateLimiter(1000, 1000))

	return &testEnv{
		router:  router,
		users:   users,
		tenants: tenants,
		encoder: encoder,
		mailer:  mailer,
	}
}

// signinAs seeds a verified, connected account and returns its bearer token.
func (e *testEnv) signinAs(t *testing.T, email string, c authz.Context) string {
	t.Helper()

	connToken := "conn-" + email
	_ = e.users.Create(context.Background(), &identity.User{
		Email:      email,
		Account:    identity.Account{Context: c},
		Connection: identity.Connection{Token: connToken},
	})
	bearer, err := e.encoder.EncodeConnection(email, connToken)
	require.NoError(t, err)
	return bearer
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	}
	return rec, parsed
}

// seedTenant registers a pharmacy tenant through the API as its admin and
// returns the admin's bearer and the tenant id.
func (e *testEnv) seedTenant(t *testing.T, adminEmail string) (string, string) {
	t.Helper()

	bearer := e.signinAs(t, adminEmail, authz.Context{
		Type: authz.ContextPharmacy,
		Role: authz.RolePharmacyAdmin,
	})
	rec, body := e.do(t, http.MethodPost, "/pharmacy/v1/tenants", bearer, map[string]any{
		"name":           "Corner Pharmacy",
		"license_number": "LIC-100",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	created := body["tenant"].(map[string]any)
	id := created["id"].(string)

	// Registration reassigned the admin's context; mint a fresh view of it.
	return bearer, id
}

// ---- tests ----

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestAuthenticate_MissingBearer(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/auth/v1/me", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, body["error"])
	assert.Equal(t, "AUTH::UNAUTHENTICATED", body["status"])
}

func TestAuthenticate_DisconnectedAfterSignout(t *testing.T) {
	env := newTestEnv(t)
	bearer := env.signinAs(t, "pa@corner.test", authz.Context{
		Type: authz.ContextPharmacy,
		Role: authz.RolePharmacyAdmin,
	})

	rec, _ := env.do(t, http.MethodPost, "/auth/v1/signout", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodGet, "/auth/v1/me", bearer, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH::DISCONNECTED", body["status"])
}

func TestSignupVerifySigninFlow(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/auth/v1/signup", "", map[string]any{
		"email":       "owner@corner.test",
		"password":    "s3cret-pass",
		"role":        "PU:ADMIN",
		"firstname":   "Awa",
		"lastname":    "Diallo",
		"agree_terms": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["error"])
	assert.Equal(t, "AUTH::SIGNUP", body["status"])

	// Signing in before verification is refused.
	rec, body = env.do(t, http.MethodPost, "/auth/v1/signin", "", map[string]any{
		"email":    "owner@corner.test",
		"password": "s3cret-pass",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH::INVALID_REQUEST", body["status"])

	rec, body = env.do(t, http.MethodPost, "/auth/v1/verify-email", "", map[string]any{
		"email": "owner@corner.test",
		"code":  env.mailer.code(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "AUTH::CONNECTED", body["status"])
	ctoken := body["ctoken"].(string)
	require.NotEmpty(t, ctoken)

	rec, body = env.do(t, http.MethodGet, "/auth/v1/me", ctoken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := body["user"].(map[string]any)
	assert.Equal(t, "owner@corner.test", user["email"])
}

func TestSignup_WrongCode(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/auth/v1/signup", "", map[string]any{
		"email":    "owner@corner.test",
		"password": "s3cret-pass",
		"role":     "PU:ADMIN",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/auth/v1/verify-email", "", map[string]any{
		"email": "owner@corner.test",
		"code":  env.mailer.code() + 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AUTH::INVALID_REQUEST", body["status"])
}

func TestRegisterTenant_AndResolveMe(t *testing.T) {
	env := newTestEnv(t)
	bearer, id := env.seedTenant(t, "pa@corner.test")

	rec, body := env.do(t, http.MethodGet, "/pharmacy/v1/tenants/me/", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["error"])
	assert.Equal(t, "TENANT::RETRIEVED", body["status"])

	resolved := body["tenant"].(map[string]any)
	assert.Equal(t, id, resolved["id"])
	assert.Equal(t, "Corner Pharmacy", resolved["name"])
}

func TestCrossTenantAccessDenied(t *testing.T) {
	env := newTestEnv(t)
	_, otherID := env.seedTenant(t, "pa-other@town.test")
	bearer, _ := env.seedTenant(t, "pa@corner.test")

	rec, body := env.do(t, http.MethodGet, "/pharmacy/v1/tenants/"+otherID+"/", bearer, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCESS::UNAUTHORIZED", body["status"])
}

func TestOperatorCannotRegisterTenant(t *testing.T) {
	env := newTestEnv(t)
	bearer := env.signinAs(t, "op@corner.test", authz.Context{
		Type: authz.ContextPharmacy,
		Role: authz.RolePharmacyOperator,
		ID:   "PH-1",
	})

	rec, body := env.do(t, http.MethodPost, "/pharmacy/v1/tenants", bearer, map[string]any{
		"name": "Rogue Pharmacy",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCESS::UNAUTHORIZED", body["status"])
}

func TestHospitalMountRejectsPharmacyRole(t *testing.T) {
	env := newTestEnv(t)
	bearer, _ := env.seedTenant(t, "pa@corner.test")

	rec, body := env.do(t, http.MethodGet, "/hospital/v1/tenants", bearer, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCESS::UNAUTHORIZED", body["status"])
}

func TestSuperCanReadAnyTenant(t *testing.T) {
	env := newTestEnv(t)
	_, id := env.seedTenant(t, "pa@corner.test")
	su := env.signinAs(t, "root@phx.test", authz.Context{
		Type: authz.ContextSuper,
		Role: authz.RoleSuperAdmin,
	})

	rec, body := env.do(t, http.MethodGet, "/pharmacy/v1/tenants/"+id+"/", su, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, id, body["tenant"].(map[string]any)["id"])
}

func TestSubscriptionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	bearer, _ := env.seedTenant(t, "pa@corner.test")

	rec, body := env.do(t, http.MethodPost, "/pharmacy/v1/tenants/me/subscriptions", bearer, map[string]any{
		"ptype": "premium",
		"per":   "month",
		"payment": map[string]any{
			"method":   "card",
			"amount":   49.0,
			"currency": "USD",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SUBSCRIPTION::ADDED", body["status"])
	sub := body["subscription"].(map[string]any)
	reference := sub["reference"].(string)
	require.NotEmpty(t, reference)

	// A second purchase mid-term is refused.
	rec, body = env.do(t, http.MethodPost, "/pharmacy/v1/tenants/me/subscriptions", bearer, map[string]any{
		"ptype": "premium",
		"per":   "month",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SUBSCRIPTION::INVALID_REQUEST", body["status"])

	rec, body = env.do(t, http.MethodGet, "/pharmacy/v1/tenants/me/subscriptions/active", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reference, body["subscription"].(map[string]any)["reference"])

	rec, body = env.do(t, http.MethodPatch, "/pharmacy/v1/tenants/me/subscriptions/"+reference+"/cancel", bearer, map[string]any{
		"reason": "switching plans",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SUBSCRIPTION::CANCELLED", body["status"])

	rec, body = env.do(t, http.MethodGet, "/pharmacy/v1/tenants/me/subscriptions/active", bearer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SUBSCRIPTION::NOT_FOUND", body["status"])
}

func TestCancelSubscription_RequiresReason(t *testing.T) {
	env := newTestEnv(t)
	bearer, _ := env.seedTenant(t, "pa@corner.test")

	rec, body := env.do(t, http.MethodPatch, "/pharmacy/v1/tenants/me/subscriptions/whatever/cancel", bearer, map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SUBSCRIPTION::INVALID_REQUEST", body["status"])
}

func TestInvitationFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	bearer, id := env.seedTenant(t, "pa@corner.test")

	rec, body := env.do(t, http.MethodPost, "/pharmacy/v1/tenants/me/invitations", bearer, map[string]any{
		"role":  "PU:OPERATOR",
		"name":  "Moussa",
		"email": "moussa@corner.test",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "INVITATION::SENT", body["status"])

	raw := env.mailer.token()
	require.NotEmpty(t, raw)

	// Accepting is a public flow; the invitee has no account yet.
	rec, body = env.do(t, http.MethodPost, "/auth/v1/invitation/accept", "", map[string]any{
		"token": raw,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "INVITATION::ACCEPTED", body["status"])
	assert.Equal(t, invite.NextCompleteSignup, body["next"])
	granted := body["context"].(map[string]any)
	assert.Equal(t, id, granted["id"])
	assert.Equal(t, "PU:OPERATOR", granted["role"])

	// The grant is consumed on first use.
	rec, body = env.do(t, http.MethodPost, "/auth/v1/invitation/accept", "", map[string]any{
		"token": raw,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "INVITATION::NOT_FOUND", body["status"])
}

func TestInvitation_RootRoleRefused(t *testing.T) {
	env := newTestEnv(t)
	su := env.signinAs(t, "root@phx.test", authz.Context{
		Type: authz.ContextSuper,
		Role: authz.RoleSuperAdmin,
	})

	rec, body := env.do(t, http.MethodPost, "/super/v1/tenants/-/invitations", su, map[string]any{
		"role":  "SU:ADMIN",
		"email": "mole@phx.test",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVITATION::INVALID_REQUEST", body["status"])
}

func TestBranchesOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	bearer, _ := env.seedTenant(t, "pa@corner.test")

	rec, body := env.do(t, http.MethodPost, "/pharmacy/v1/tenants/me/branches", bearer, map[string]any{
		"name": "Downtown",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "BRANCH::CREATED", body["status"])
	branchID := body["branch"].(map[string]any)["id"].(string)

	rec, body = env.do(t, http.MethodGet, "/pharmacy/v1/tenants/me/branches", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["items"], 1)

	rec, _ = env.do(t, http.MethodDelete, "/pharmacy/v1/tenants/me/branches/"+branchID, bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/pharmacy/v1/tenants/me/branches", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["items"])
}

func TestEnvelopeShape(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/auth/v1/signin", "", map[string]any{
		"email":    "nobody@phx.test",
		"password": "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, body["error"])
	assert.Equal(t, fmt.Sprintf("%s::%s", "AUTH", "INVALID_REQUEST"), body["status"])
	assert.NotEmpty(t, body["message"])
}
