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

package identity

import (
	"context"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrix/phx-cloud/internal/audit"
	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/token"
)

// memUserRepo is an in-memory UserRepository for tests.
type memUserRepo struct {
	users map[string]*User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*User)}
}

func (m *memUserRepo) Create(_ context.Context, user *User) error {
	if _, ok := m.users[user.Email]; ok {
		return ErrUserAlreadyExists
	}
	cp := *user
	m.users[user.Email] = &cp
	return nil
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) GetConnected(_ context.Context, email, connToken string) (*User, error) {
	u, ok := m.users[email]
	if !ok || u.Connection.Token == "" || u.Connection.Token != connToken || u.Connection.Verification != nil {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) SetConnectionToken(_ context.Context, email, tok string) error {
	u, ok := m.users[email]
	if !ok {
		return ErrUserNotFound
	}
	u.Connection.Token = tok
	return nil
}

func (m *memUserRepo) ClearConnectionToken(_ context.Context, email string) error {
	u, ok := m.users[email]
	if !ok {
		return ErrUserNotFound
	}
	u.Connection.Token = ""
	return nil
}

func (m *memUserRepo) VerifyEmail(_ context.Context, email string, code int, newToken string) error {
	u, ok := m.users[email]
	if !ok || u.Connection.Verification == nil {
		return ErrUserNotFound
	}
	v := u.Connection.Verification
	if v.Code != code || v.Expiry <= time.Now().UnixMilli() {
		return ErrUserNotFound
	}
	u.Connection.Verification = nil
	u.Connection.Token = newToken
	return nil
}

func (m *memUserRepo) SetResendState(_ context.Context, email string, delaySeconds int, sentAt int64) error {
	u, ok := m.users[email]
	if !ok || u.Connection.Verification == nil {
		return ErrUserNotFound
	}
	u.Connection.Verification.ResendDelay = delaySeconds
	u.Connection.Verification.ResendSentAt = sentAt
	return nil
}

func (m *memUserRepo) SetResetRequest(_ context.Context, email, vtoken string, expiry int64) error {
	u, ok := m.users[email]
	if !ok {
		return ErrUserNotFound
	}
	u.Connection.ResetPwd = &ResetRequest{VToken: vtoken, Expiry: expiry}
	return nil
}

func (m *memUserRepo) ResetPassword(_ context.Context, email, vtoken string, now int64, newHash string) error {
	u, ok := m.users[email]
	if !ok || u.Connection.ResetPwd == nil {
		return ErrUserNotFound
	}
	r := u.Connection.ResetPwd
	if r.VToken != vtoken || r.Expiry <= now {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	u.Connection.ResetPwd = nil
	u.Connection.Token = ""
	return nil
}

func (m *memUserRepo) ReassignContext(_ context.Context, email string, c authz.Context) error {
	u, ok := m.users[email]
	if !ok {
		return ErrUserNotFound
	}
	u.Account.Context = c
	return nil
}

func (m *memUserRepo) DetachContexts(_ context.Context, tenantID string) error {
	for _, u := range m.users {
		if u.Account.Context.ID == tenantID {
			u.Account.Context = authz.Context{}
		}
	}
	return nil
}

func (m *memUserRepo) Delete(_ context.Context, email string) error {
	if _, ok := m.users[email]; !ok {
		return ErrUserNotFound
	}
	delete(m.users, email)
	return nil
}

type discardMailer struct {
	codes int
	links int
}

func (m *discardMailer) SendVerificationCode(context.Context, string, int) { m.codes++ }
func (m *discardMailer) SendResetLink(context.Context, string, string)     { m.links++ }
func (m *discardMailer) SendInvitation(context.Context, string, string, string) {}

func newTestService(repo *memUserRepo) (*Service, *discardMailer) {
	hasher := NewPasswordHasher(16*1024, 1, 1, 16, 32)
	enc := token.NewEncoder("test-secret")
	mailer := &discardMailer{}
	svc := NewService(repo, hasher, enc, mailer, audit.NewSlogLogger(), "root@phx.test")
	return svc, mailer
}

func TestSignup_CreatesUnverifiedPharmacyAdmin(t *testing.T) {
	repo := newMemUserRepo()
	svc, mailer := newTestService(repo)

	user, err := svc.Signup(context.Background(), SignupInput{
		Email:     "Owner@Example.com",
		Password:  "s3cret!",
		Role:      authz.RolePharmacyAdmin,
		FirstName: "Ada",
	})
	require.NoError(t, err)

	assert.Equal(t, "owner@example.com", user.Email)
	assert.False(t, user.Verified())
	assert.Equal(t, authz.ContextPharmacy, user.Account.Context.Type)
	assert.Empty(t, user.Account.Context.ID, "no tenant attached yet")
	assert.Equal(t, 1, mailer.codes)
}

func TestSignup_RejectsNonAdminRole(t *testing.T) {
	svc, _ := newTestService(newMemUserRepo())

	_, err := svc.Signup(context.Background(), SignupInput{
		Email:    "op@example.com",
		Password: "pw",
		Role:     authz.RolePharmacyOperator,
	})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestSignup_RejectsDuplicateEmail(t *testing.T) {
	repo := newMemUserRepo()
	svc, _ := newTestService(repo)

	in := SignupInput{Email: "owner@example.com", Password: "pw", Role: authz.RolePharmacyAdmin}
	_, err := svc.Signup(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), in)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestSignin_RequiresVerification(t *testing.T) {
	repo := newMemUserRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Signup(context.Background(), SignupInput{
		Email: "owner@example.com", Password: "pw", Role: authz.RolePharmacyAdmin,
	})
	require.NoError(t, err)

	_, err = svc.Signin(context.Background(), "owner@example.com", "pw")
	assert.ErrorIs(t, err, ErrVerificationRequired)
}

func TestVerifyThenSignin_RotatesToken(t *testing.T) {
	repo := newMemUserRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{
		Email: "owner@example.com", Password: "pw", Role: authz.RolePharmacyAdmin,
	})
	require.NoError(t, err)

	code := repo.users["owner@example.com"].Connection.Verification.Code
	first, err := svc.VerifyEmail(ctx, "owner@example.com", code)
	require.NoError(t, err)

	// First credential resolves.
	u, err := svc.Resolve(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", u.Email)

	// Signing in again rotates the token and invalidates the old bearer.
	second, err := svc.Signin(ctx, "owner@example.com", "pw")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = svc.Resolve(ctx, first)
	assert.ErrorIs(t, err, ErrDisconnected)

	_, err = svc.Resolve(ctx, second)
	assert.NoError(t, err)
}

func TestVerifyEmail_WrongCode(t *testing.T) {
	repo := newMemUserRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{
		Email: "owner@example.com", Password: "pw", Role: authz.RolePharmacyAdmin,
	})
	require.NoError(t, err)

	_, err = svc.VerifyEmail(ctx, "owner@example.com", 1)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestResolve_GarbageBearer(t *testing.T) {
	svc, _ := newTestService(newMemUserRepo())

	_, err := svc.Resolve(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResendVerification_EscalatingDelay(t *testing.T) {
	repo := newMemUserRepo()
	svc, mailer := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{
		Email: "owner@example.com", Password: "pw", Role: authz.RolePharmacyAdmin,
	})
	require.NoError(t, err)

	base := time.Now()
	svc.now = func() time.Time { return base }

	delay, onHold, err := svc.ResendVerification(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.False(t, onHold)
	assert.Equal(t, 60, delay)

	// Within the window the request is put on hold.
	svc.now = func() time.Time { return base.Add(10 * time.Second) }
	_, onHold, err = svc.ResendVerification(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.True(t, onHold)

	// After the window the delay escalates fourfold.
	svc.now = func() time.Time { return base.Add(61 * time.Second) }
	delay, onHold, err = svc.ResendVerification(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.False(t, onHold)
	assert.Equal(t, 240, delay)

	assert.Equal(t, 3, mailer.codes, "signup + two resends")
}

func TestPasswordReset_Flow(t *testing.T) {
	repo := newMemUserRepo()
	svc, mailer := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{
		Email: "owner@example.com", Password: "old-pw", Role: authz.RolePharmacyAdmin,
	})
	require.NoError(t, err)
	code := repo.users["owner@example.com"].Connection.Verification.Code
	_, err = svc.VerifyEmail(ctx, "owner@example.com", code)
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "owner@example.com", "https://app.phx.test"))
	assert.Equal(t, 1, mailer.links)

	vtoken := repo.users["owner@example.com"].Connection.ResetPwd.VToken
	enc := token.NewEncoder("test-secret")
	raw, err := enc.EncodeReset("owner@example.com", vtoken)
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(ctx, raw, "new-pw"))

	_, err = svc.Signin(ctx, "owner@example.com", "old-pw")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	_, err = svc.Signin(ctx, "owner@example.com", "new-pw")
	assert.NoError(t, err)

	// A spent grant cannot be replayed.
	err = svc.ResetPassword(ctx, raw, "another-pw")
	assert.ErrorIs(t, err, ErrResetInvalid)
}

func TestCloseAccount_ProtectsRoot(t *testing.T) {
	repo := newMemUserRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	hasher := NewPasswordHasher(16*1024, 1, 1, 16, 32)
	require.NoError(t, Bootstrap(ctx, repo, hasher, "root@phx.test", "root-pw"))

	root, err := repo.GetByEmail(ctx, "root@phx.test")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.CloseAccount(ctx, root), ErrRootAccount)

	// Bootstrap is idempotent.
	require.NoError(t, Bootstrap(ctx, repo, hasher, "root@phx.test", "other-pw"))
}

func TestAvatarURL_MultibyteInitial(t *testing.T) {
	assert.Contains(t, avatarURL("Éléonore"), "name=É")
	assert.Contains(t, avatarURL("awa"), "name=A")
	assert.Contains(t, avatarURL(""), "name=U")

	for _, name := range []string{"Éléonore", "Ousmane", ""} {
		assert.True(t, utf8.ValidString(avatarURL(name)))
	}
}
