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
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pharmatrix/phx-cloud/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `
	id, type, name, license_number, contacts, location, registered_by, registered_at`

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(
		&t.ID, &t.Type, &t.Name, &t.LicenseNumber,
		&t.Contacts, &t.Location, &t.Registered.By, &t.Registered.At,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	return &t, nil
}

// Create inserts a tenant
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (id, type, name, license_number, contacts, location, registered_by, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		t.ID, t.Type, t.Name, t.LicenseNumber,
		t.Contacts, t.Location, t.Registered.By, t.Registered.At,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return tenant.ErrTenantAlreadyExists
		}
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// Get retrieves a tenant by ID
func (r *TenantRepository) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE id = $1
	`, id)
	return scanTenant(row)
}

// Exists reports whether a tenant ID is registered. Satisfies the
// invitation engine's directory lookup.
func (r *TenantRepository) Exists(ctx context.Context, id string) (bool, error) {
	var found bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)
	`, id).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check tenant existence: %w", err)
	}
	return found, nil
}

// Update applies a partial update and returns the stored row
func (r *TenantRepository) Update(ctx context.Context, id string, upd tenant.Update) (*tenant.Tenant, error) {
	row := r.db.pool.QueryRow(ctx, `
		UPDATE tenants
		SET name           = COALESCE($2, name),
		    license_number = COALESCE($3, license_number),
		    contacts       = COALESCE($4, contacts),
		    location       = COALESCE($5, location)
		WHERE id = $1
		RETURNING `+tenantColumns+`
	`, id, upd.Name, upd.LicenseNumber, upd.Contacts, upd.Location)
	return scanTenant(row)
}

// List returns tenants of a type registered strictly before cursor,
// newest first
func (r *TenantRepository) List(ctx context.Context, typ tenant.Type, cursor int64, limit int) ([]tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE type = $1 AND ($2 = 0 OR registered_at < $2)
		ORDER BY registered_at DESC
		LIMIT $3
	`, typ, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()
	return collectTenants(rows)
}

// Search matches name, ID or license number
func (r *TenantRepository) Search(ctx context.Context, typ tenant.Type, query string, limit int) ([]tenant.Tenant, error) {
	pattern := "%" + query + "%"
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE type = $1
		  AND (name ILIKE $2 OR id ILIKE $2 OR license_number ILIKE $2)
		ORDER BY registered_at DESC
		LIMIT $3
	`, typ, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tenants: %w", err)
	}
	defer rows.Close()
	return collectTenants(rows)
}

func collectTenants(rows pgx.Rows) ([]tenant.Tenant, error) {
	var out []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tenants: %w", err)
	}
	return out, nil
}

// Delete removes a tenant row
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM tenants WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// BranchRepository implements tenant.BranchRepository
type BranchRepository struct {
	db *DB
}

// NewBranchRepository creates a new branch repository
func NewBranchRepository(db *DB) *BranchRepository {
	return &BranchRepository{db: db}
}

const branchColumns = `
	id, tenant_id, name, location, contacts, created_by, created_at`

func scanBranch(row pgx.Row) (*tenant.Branch, error) {
	var b tenant.Branch
	err := row.Scan(
		&b.ID, &b.TenantID, &b.Name, &b.Location, &b.Contacts,
		&b.Created.By, &b.Created.At,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrBranchNotFound
		}
		return nil, fmt.Errorf("failed to scan branch: %w", err)
	}
	return &b, nil
}

// Create inserts a branch
func (r *BranchRepository) Create(ctx context.Context, b *tenant.Branch) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO branches (id, tenant_id, name, location, contacts, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.TenantID, b.Name, b.Location, b.Contacts, b.Created.By, b.Created.At)
	if err != nil {
		return fmt.Errorf("failed to insert branch: %w", err)
	}
	return nil
}

// Get retrieves one branch of a tenant
func (r *BranchRepository) Get(ctx context.Context, tenantID, branchID string) (*tenant.Branch, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+branchColumns+`
		FROM branches
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, branchID)
	return scanBranch(row)
}

// ListByTenant lists the tenant's branches
func (r *BranchRepository) ListByTenant(ctx context.Context, tenantID string) ([]tenant.Branch, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+branchColumns+`
		FROM branches
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	var out []tenant.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read branches: %w", err)
	}
	return out, nil
}

// Delete removes one branch
func (r *BranchRepository) Delete(ctx context.Context, tenantID, branchID string) error {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM branches WHERE tenant_id = $1 AND id = $2
	`, tenantID, branchID)
	if err != nil {
		return fmt.Errorf("failed to delete branch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrBranchNotFound
	}
	return nil
}

// DeleteByTenant removes every branch of a tenant
func (r *BranchRepository) DeleteByTenant(ctx context.Context, tenantID string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM branches WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant branches: %w", err)
	}
	return nil
}
