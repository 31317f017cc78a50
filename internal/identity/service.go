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
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/pharmatrix/phx-cloud/internal/audit"
	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/notify"
	"github.com/pharmatrix/phx-cloud/internal/token"
)

const (
	verificationTTL = 2 * time.Hour
	resetTTL        = 2 * time.Hour

	// Verification resend throttling: first resend after 60s, each
	// subsequent resend quadruples the wait.
	resendBaseDelay  = 60
	resendMultiplier = 4

	connTokenBytes = 24
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsValidEmail reports whether the address has a plausible mailbox form.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeEmail canonicalizes an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignupInput is the payload accepted by Signup.
type SignupInput struct {
	Email      string
	Password   string
	Role       authz.Role
	FirstName  string
	LastName   string
	Location   Location
	AgreeTerms bool
	Device     map[string]any
}

// Service provides account business logic: sign-up/sign-in flows, email
// verification, password reset and the credential resolver used by the
// HTTP layer.
type Service struct {
	repo      UserRepository
	hasher    *PasswordHasher
	encoder   *token.Encoder
	mailer    notify.Mailer
	audit     audit.Logger
	rootEmail string
	now       func() time.Time
}

// NewService creates a new identity service. rootEmail identifies the seed
// SU:ADMIN account, which is protected from self-closure.
func NewService(
	repo UserRepository,
	hasher *PasswordHasher,
	encoder *token.Encoder,
	mailer notify.Mailer,
	auditLogger audit.Logger,
	rootEmail string,
) *Service {
	return &Service{
		repo:      repo,
		hasher:    hasher,
		encoder:   encoder,
		mailer:    mailer,
		audit:     auditLogger,
		rootEmail: NormalizeEmail(rootEmail),
		now:       time.Now,
	}
}

// Signup registers a new pharmacy administrator account. Only PU:ADMIN can
// self-register; every other role enters through an invitation. The account
// stays unverified until the emailed code is confirmed.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	email := NormalizeEmail(in.Email)
	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if in.Role != authz.RolePharmacyAdmin {
		return nil, ErrInvalidRole
	}
	if in.Password == "" {
		return nil, ErrInvalidPassword
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UnixMilli()
	user := &User{
		Email: email,
		Profile: Profile{
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Avatar:    avatarURL(in.FirstName),
			Location:  in.Location,
		},
		PasswordHash: hash,
		Account: Account{
			Context:      authz.Context{Type: authz.ContextPharmacy, Role: in.Role},
			PIN:          randomPIN(),
			Notification: Notification{Push: token.Generate(36), Email: true},
		},
		Connection: Connection{
			Verification: &Verification{
				Code:   randomCode(),
				Expiry: now + verificationTTL.Milliseconds(),
			},
		},
		AgreeTerms: in.AgreeTerms,
		CreatedAt:  now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.audit.Log(ctx, audit.Record{
		Action:   audit.ActionSignup,
		UID:      email,
		Context:  user.Account.Context,
		Data:     map[string]any{"location": in.Location, "device": in.Device},
		Datetime: now,
	})

	// Delivery is out-of-band and best effort.
	s.mailer.SendVerificationCode(ctx, email, user.Connection.Verification.Code)

	return user, nil
}

// Signin authenticates the user and rotates their connection token,
// returning the encoded bearer credential.
func (s *Service) Signin(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return "", ErrInvalidEmail
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", ErrUserNotFound
	}
	if !user.Verified() {
		return "", ErrVerificationRequired
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return "", ErrInvalidPassword
	}

	connToken := token.Generate(connTokenBytes)
	if err := s.repo.SetConnectionToken(ctx, email, connToken); err != nil {
		return "", fmt.Errorf("failed to rotate connection token: %w", err)
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionSignin,
		UID:     email,
		Context: user.Account.Context,
	})

	return s.encoder.EncodeConnection(email, connToken)
}

// VerifyEmail confirms the signup verification code and signs the user in.
func (s *Service) VerifyEmail(ctx context.Context, email string, code int) (string, error) {
	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return "", ErrInvalidEmail
	}

	connToken := token.Generate(connTokenBytes)
	if err := s.repo.VerifyEmail(ctx, email, code, connToken); err != nil {
		return "", ErrInvalidCode
	}

	return s.encoder.EncodeConnection(email, connToken)
}

// ResendVerification re-sends the verification code, throttled with an
// escalating delay. It returns the delay in seconds that now applies; when
// onHold is true the previous delay has not elapsed and nothing was sent.
func (s *Service) ResendVerification(ctx context.Context, email string) (delay int, onHold bool, err error) {
	email = NormalizeEmail(email)
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return 0, false, ErrUserNotFound
	}
	v := user.Connection.Verification
	if v == nil {
		return 0, false, ErrNoVerification
	}

	now := s.now().UnixMilli()
	if v.ResendSentAt > 0 && now < v.ResendSentAt+int64(v.ResendDelay)*1000 {
		left := v.ResendDelay - int((now-v.ResendSentAt)/1000)
		return left, true, nil
	}

	delay = resendBaseDelay
	if v.ResendDelay > 0 {
		delay = v.ResendDelay * resendMultiplier
	}
	if err := s.repo.SetResendState(ctx, email, delay, now); err != nil {
		return 0, false, fmt.Errorf("failed to store resend state: %w", err)
	}

	s.mailer.SendVerificationCode(ctx, email, v.Code)
	return delay, false, nil
}

// Signout drops the user's connection token.
func (s *Service) Signout(ctx context.Context, user *User) error {
	if err := s.repo.ClearConnectionToken(ctx, user.Email); err != nil {
		return ErrUserNotFound
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionSignout,
		UID:     user.Email,
		Context: user.Account.Context,
	})
	return nil
}

// Resolve turns an opaque bearer credential into the verified user acting
// behind it. ErrUnauthenticated means the credential itself is absent or
// undecodable; ErrDisconnected means it decoded but matches no live,
// verified connection — callers route the two to sign-in and re-verify
// respectively.
func (s *Service) Resolve(ctx context.Context, bearer string) (*User, error) {
	if bearer == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.encoder.DecodeConnection(bearer)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.repo.GetConnected(ctx, NormalizeEmail(claims.Email), claims.Token)
	if err != nil {
		return nil, ErrDisconnected
	}
	return user, nil
}

// RequestPasswordReset stores a reset grant and mails the reset link.
// origin is the requesting front-end's base URL.
func (s *Service) RequestPasswordReset(ctx context.Context, email, origin string) error {
	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return ErrInvalidEmail
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return ErrUserNotFound
	}

	vtoken := token.Generate(connTokenBytes)
	expiry := s.now().UnixMilli() + resetTTL.Milliseconds()
	if err := s.repo.SetResetRequest(ctx, email, vtoken, expiry); err != nil {
		return fmt.Errorf("failed to store reset request: %w", err)
	}

	encoded, err := s.encoder.EncodeReset(email, vtoken)
	if err != nil {
		return fmt.Errorf("failed to encode reset token: %w", err)
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionResetPasswordRequest,
		UID:     email,
		Context: user.Account.Context,
	})

	s.mailer.SendResetLink(ctx, email, origin+"/reset-pwd?token="+encoded)
	return nil
}

// ResetPassword sets a new password from a reset link token. Setting the
// password and clearing the reset record happen in one conditional update
// so a spent or expired grant can never half-apply.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	claims, err := s.encoder.DecodeReset(rawToken)
	if err != nil || claims.Email == "" || claims.VToken == "" {
		return ErrResetInvalid
	}
	if newPassword == "" {
		return ErrInvalidPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	email := NormalizeEmail(claims.Email)
	if err := s.repo.ResetPassword(ctx, email, claims.VToken, s.now().UnixMilli(), hash); err != nil {
		return ErrResetInvalid
	}

	s.audit.Log(ctx, audit.Record{
		Action: audit.ActionResetPassword,
		UID:    email,
	})
	return nil
}

// CloseAccount destroys the caller's account. The seed SU:ADMIN account is
// protected and cannot self-close.
func (s *Service) CloseAccount(ctx context.Context, user *User) error {
	if user.Email == s.rootEmail {
		return ErrRootAccount
	}
	if err := s.repo.Delete(ctx, user.Email); err != nil {
		return ErrUserNotFound
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionCloseAccount,
		UID:     user.Email,
		Context: user.Account.Context,
	})
	return nil
}

// GetByEmail retrieves a user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

func randomCode() int {
	return 1000 + rand.Intn(9000)
}

func randomPIN() string {
	return fmt.Sprintf("%04d", 1000+rand.Intn(9000))
}

func avatarURL(name string) string {
	initial := "U"
	// First rune, not first byte: names like "Éléonore" must not produce
	// a truncated UTF-8 sequence in the URL.
	if r := []rune(name); len(r) > 0 {
		initial = strings.ToUpper(string(r[0]))
	}
	return "https://ui-avatars.com/api/?name=" + initial +
		"&background=000000&size=150&color=ffffff&bold=true&length=1&font-size=0.6"
}
