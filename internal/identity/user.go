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
	"errors"

	"github.com/pharmatrix/phx-cloud/internal/authz"
)

// Domain errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrInvalidRole          = errors.New("unauthorized user role")
	ErrVerificationRequired = errors.New("email verification required")
	ErrInvalidCode          = errors.New("verification code is invalid or has expired")
	ErrUnauthenticated      = errors.New("invalid request credentials")
	ErrDisconnected         = errors.New("user is disconnected")
	ErrResetInvalid         = errors.New("reset token is invalid or has expired")
	ErrRootAccount          = errors.New("root account cannot be closed")
	ErrNoVerification       = errors.New("no pending verification")
)

// User is a platform account. A user owns exactly one context at a time;
// it is re-assigned on invitation acceptance and cleared when the tenant
// is deleted.
type User struct {
	Email        string        `json:"email"`
	Profile      Profile       `json:"profile"`
	PasswordHash string        `json:"-"`
	Account      Account       `json:"account"`
	Connection   Connection    `json:"-"`
	AgreeTerms   bool          `json:"agree_terms"`
	CreatedAt    int64         `json:"datetime"` // unix milliseconds
}

// Profile holds display information.
type Profile struct {
	FirstName string   `json:"firstname"`
	LastName  string   `json:"lastname"`
	Avatar    string   `json:"avatar,omitempty"`
	Location  Location `json:"location"`
}

// Location is a coarse postal location.
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Address string `json:"address,omitempty"`
}

// Account carries the user's acting context and notification settings.
type Account struct {
	Context      authz.Context `json:"context"`
	PIN          string        `json:"-"`
	Notification Notification  `json:"notification"`
}

// Notification holds delivery preferences.
type Notification struct {
	Push  string `json:"push,omitempty"` // push notification token
	Email bool   `json:"email"`
}

// Connection is the user's session state: a live connection token plus
// optional verification / reset sub-records with expiries.
type Connection struct {
	Token        string        `json:"-"`
	Verification *Verification `json:"-"`
	ResetPwd     *ResetRequest `json:"-"`
	Restricted   *Restriction  `json:"-"`
}

// Verification is a pending email verification.
type Verification struct {
	Code   int   `json:"code"`
	Expiry int64 `json:"expiry"` // unix milliseconds
	// Resend throttling state
	ResendDelay  int   `json:"resend_delay,omitempty"`  // seconds
	ResendSentAt int64 `json:"resend_sent_at,omitempty"` // unix milliseconds
}

// ResetRequest is a pending password reset.
type ResetRequest struct {
	VToken string `json:"vtoken"`
	Expiry int64  `json:"expiry"` // unix milliseconds
}

// Restriction marks an account created through an invitation that has not
// completed sign-up yet.
type Restriction struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// RestrictionCompleteSignup is the restriction placed on invited accounts.
var RestrictionCompleteSignup = Restriction{
	Action:  "COMPLETE-SIGNUP",
	Message: "Must complete sign-up",
}

// Verified reports whether the account's email has been verified.
func (u *User) Verified() bool {
	return u.Connection.Verification == nil
}

// UserRepository defines the interface for user persistence. Conditional
// updates (VerifyEmail, ResetPassword) must be atomic at the single-row
// level and report ErrUserNotFound when the condition matched nothing.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, user *User) error

	// GetByEmail retrieves a user by canonical email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetConnected retrieves a user matching the email, a live connection
	// token and no pending email verification.
	GetConnected(ctx context.Context, email, connToken string) (*User, error)

	// SetConnectionToken rotates the user's connection token.
	SetConnectionToken(ctx context.Context, email, token string) error

	// ClearConnectionToken drops the user's connection token.
	ClearConnectionToken(ctx context.Context, email string) error

	// VerifyEmail atomically checks the pending code and, on match, sets a
	// new connection token and clears the verification record.
	VerifyEmail(ctx context.Context, email string, code int, newToken string) error

	// SetResendState records the verification resend throttle.
	SetResendState(ctx context.Context, email string, delaySeconds int, sentAt int64) error

	// SetResetRequest stores a pending password reset.
	SetResetRequest(ctx context.Context, email, vtoken string, expiry int64) error

	// ResetPassword atomically sets the new password hash and clears the
	// reset record, only if the vtoken matches and has not expired.
	ResetPassword(ctx context.Context, email, vtoken string, now int64, newHash string) error

	// ReassignContext replaces the user's acting context.
	ReassignContext(ctx context.Context, email string, c authz.Context) error

	// DetachContexts clears the context of the tenant's members, keeping
	// tenant-admin roles attached.
	DetachContexts(ctx context.Context, tenantID string) error

	// Delete removes a user account.
	Delete(ctx context.Context, email string) error
}
