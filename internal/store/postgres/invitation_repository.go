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

	"github.com/jackc/pgx/v5"

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/invite"
)

// InvitationRepository implements invite.Repository
type InvitationRepository struct {
	db *DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Upsert stores the invitation, replacing any previous one for the same
// (context, email) pair
func (r *InvitationRepository) Upsert(ctx context.Context, inv *invite.Invitation) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO invitations (context_type, context_role, context_tenant_id, email, name, expiry, added_by, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (context_type, context_role, context_tenant_id, email)
		DO UPDATE SET name = EXCLUDED.name,
		              expiry = EXCLUDED.expiry,
		              added_by = EXCLUDED.added_by,
		              added_at = EXCLUDED.added_at
	`,
		inv.Context.Type, inv.Context.Role.String(), inv.Context.ID, inv.Email,
		inv.Name, inv.Expiry, inv.Added.By, inv.Added.At,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert invitation: %w", err)
	}
	return nil
}

func scanInvitation(row pgx.Row) (*invite.Invitation, error) {
	var inv invite.Invitation
	var roleText string

	err := row.Scan(
		&inv.Context.Type, &roleText, &inv.Context.ID, &inv.Email,
		&inv.Name, &inv.Expiry, &inv.Added.By, &inv.Added.At,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, invite.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to scan invitation: %w", err)
	}

	role, err := authz.ParseRole(roleText)
	if err != nil {
		return nil, fmt.Errorf("corrupt invitation role: %w", err)
	}
	inv.Context.Role = role

	return &inv, nil
}

// Get retrieves the invitation for an exact (context, email) pair
func (r *InvitationRepository) Get(ctx context.Context, c authz.Context, email string) (*invite.Invitation, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT context_type, context_role, context_tenant_id, email, name, expiry, added_by, added_at
		FROM invitations
		WHERE context_type = $1 AND context_role = $2 AND context_tenant_id = $3 AND email = $4
	`, c.Type, c.Role.String(), c.ID, email)
	return scanInvitation(row)
}

// ListByContextType lists pending invitations for a context type,
// optionally narrowed to one tenant
func (r *InvitationRepository) ListByContextType(ctx context.Context, typ authz.ContextType, tenantID string) ([]invite.Invitation, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT context_type, context_role, context_tenant_id, email, name, expiry, added_by, added_at
		FROM invitations
		WHERE context_type = $1 AND ($2 = '' OR context_tenant_id = $2)
		ORDER BY added_at DESC
	`, typ, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []invite.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invitations: %w", err)
	}
	return out, nil
}

// Delete removes the invitation for an exact (context, email) pair
func (r *InvitationRepository) Delete(ctx context.Context, c authz.Context, email string) error {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM invitations
		WHERE context_type = $1 AND context_role = $2 AND context_tenant_id = $3 AND email = $4
	`, c.Type, c.Role.String(), c.ID, email)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return invite.ErrInvitationNotFound
	}
	return nil
}
