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

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
)

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	email, profile, password_hash,
	context_type, context_role, context_tenant_id,
	pin, notification, connection_token,
	verification, reset_pwd, restricted,
	agree_terms, created_at`

func scanUser(row pgx.Row) (*identity.User, error) {
	var user identity.User
	var roleText string

	err := row.Scan(
		&user.Email, &user.Profile, &user.PasswordHash,
		&user.Account.Context.Type, &roleText, &user.Account.Context.ID,
		&user.Account.PIN, &user.Account.Notification, &user.Connection.Token,
		&user.Connection.Verification, &user.Connection.ResetPwd, &user.Connection.Restricted,
		&user.AgreeTerms, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if roleText != "" {
		role, err := authz.ParseRole(roleText)
		if err != nil {
			return nil, fmt.Errorf("corrupt role for %s: %w", user.Email, err)
		}
		user.Account.Context.Role = role
	}

	return &user, nil
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (
			email, profile, password_hash,
			context_type, context_role, context_tenant_id,
			pin, notification, connection_token,
			verification, reset_pwd, restricted,
			agree_terms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		user.Email, user.Profile, user.PasswordHash,
		user.Account.Context.Type, user.Account.Context.Role.String(), user.Account.Context.ID,
		user.Account.PIN, user.Account.Notification, user.Connection.Token,
		user.Connection.Verification, user.Connection.ResetPwd, user.Connection.Restricted,
		user.AgreeTerms, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

// GetConnected retrieves a user holding a live connection token with no
// pending verification.
func (r *UserRepository) GetConnected(ctx context.Context, email, connToken string) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
		  AND connection_token <> ''
		  AND connection_token = $2
		  AND verification IS NULL
	`, email, connToken)
	return scanUser(row)
}

// SetConnectionToken rotates the connection token
func (r *UserRepository) SetConnectionToken(ctx context.Context, email, token string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users SET connection_token = $2 WHERE email = $1
	`, email, token)
	if err != nil {
		return fmt.Errorf("failed to set connection token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// ClearConnectionToken drops the connection token
func (r *UserRepository) ClearConnectionToken(ctx context.Context, email string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users SET connection_token = '' WHERE email = $1
	`, email)
	if err != nil {
		return fmt.Errorf("failed to clear connection token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// VerifyEmail consumes a matching, unexpired verification code in a single
// conditional update.
func (r *UserRepository) VerifyEmail(ctx context.Context, email string, code int, newToken string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET verification = NULL, connection_token = $3
		WHERE email = $1
		  AND verification IS NOT NULL
		  AND (verification->>'code')::int = $2
		  AND (verification->>'expiry')::bigint > $4
	`, email, code, newToken, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// SetResendState records the verification resend throttle
func (r *UserRepository) SetResendState(ctx context.Context, email string, delaySeconds int, sentAt int64) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET verification = verification
			|| jsonb_build_object('resend_delay', $2::int, 'resend_sent_at', $3::bigint)
		WHERE email = $1 AND verification IS NOT NULL
	`, email, delaySeconds, sentAt)
	if err != nil {
		return fmt.Errorf("failed to set resend state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// SetResetRequest stores a pending password reset
func (r *UserRepository) SetResetRequest(ctx context.Context, email, vtoken string, expiry int64) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET reset_pwd = jsonb_build_object('vtoken', $2::text, 'expiry', $3::bigint)
		WHERE email = $1
	`, email, vtoken, expiry)
	if err != nil {
		return fmt.Errorf("failed to set reset request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// ResetPassword applies a reset grant: the new hash lands and the grant is
// cleared only when the vtoken matches and is still fresh. Live sessions
// are revoked in the same statement.
func (r *UserRepository) ResetPassword(ctx context.Context, email, vtoken string, now int64, newHash string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $4, reset_pwd = NULL, connection_token = ''
		WHERE email = $1
		  AND reset_pwd IS NOT NULL
		  AND reset_pwd->>'vtoken' = $2
		  AND (reset_pwd->>'expiry')::bigint > $3
	`, email, vtoken, now, newHash)
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// ReassignContext replaces the user's acting context
func (r *UserRepository) ReassignContext(ctx context.Context, email string, c authz.Context) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET context_type = $2, context_role = $3, context_tenant_id = $4
		WHERE email = $1
	`, email, c.Type, c.Role.String(), c.ID)
	if err != nil {
		return fmt.Errorf("failed to reassign context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// DetachContexts clears the contexts of a deleted tenant's members.
// Tenant-admin roles stay attached so the owner keeps their standing.
func (r *UserRepository) DetachContexts(ctx context.Context, tenantID string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET context_type = '', context_role = '', context_tenant_id = ''
		WHERE context_tenant_id = $1
		  AND context_role NOT LIKE '%:ADMIN'
	`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to detach contexts: %w", err)
	}
	return nil
}

// Delete removes a user account
func (r *UserRepository) Delete(ctx context.Context, email string) error {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM users WHERE email = $1
	`, email)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}
