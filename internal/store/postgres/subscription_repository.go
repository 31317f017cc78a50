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

	"github.com/pharmatrix/phx-cloud/internal/subscription"
)

// SubscriptionRepository implements subscription.Repository
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	reference, tenant_id, ptype, per, duration_start, duration_end,
	status, payment, subscribed_at, subscribed_by, reason`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var s subscription.Subscription
	err := row.Scan(
		&s.Reference, &s.TenantID, &s.PType, &s.Per,
		&s.Duration.Start, &s.Duration.End,
		&s.Status, &s.Payment, &s.Subscribed.At, &s.Subscribed.By, &s.Reason,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &s, nil
}

func collectSubscriptions(rows pgx.Rows) ([]subscription.Subscription, error) {
	var out []subscription.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}
	return out, nil
}

// Create inserts a subscription row
func (r *SubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO subscriptions (
			reference, tenant_id, ptype, per, duration_start, duration_end,
			status, payment, subscribed_at, subscribed_by, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		s.Reference, s.TenantID, s.PType, s.Per,
		s.Duration.Start, s.Duration.End,
		s.Status, s.Payment, s.Subscribed.At, s.Subscribed.By, s.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// GetByReference retrieves a subscription by its reference
func (r *SubscriptionRepository) GetByReference(ctx context.Context, tenantID, reference string) (*subscription.Subscription, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE tenant_id = $1 AND reference = $2
	`, tenantID, reference)
	return scanSubscription(row)
}

// GetActive returns the tenant's ACTIVE row with the latest end
func (r *SubscriptionRepository) GetActive(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE tenant_id = $1 AND status = 'ACTIVE'
		ORDER BY duration_end DESC
		LIMIT 1
	`, tenantID)
	return scanSubscription(row)
}

// List returns rows matching the query ordered by subscribed_at descending
func (r *SubscriptionRepository) List(ctx context.Context, q subscription.Query) ([]subscription.Subscription, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE tenant_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = 0 OR subscribed_at < $3)
		ORDER BY subscribed_at DESC
		LIMIT $4
	`, q.TenantID, string(q.Status), q.Cursor, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// Search matches reference, plan type or status within one tenant. The
// tenant id itself is the mandatory scope, so it is not a match column.
func (r *SubscriptionRepository) Search(ctx context.Context, tenantID, query string, limit int) ([]subscription.Subscription, error) {
	pattern := "%" + query + "%"
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE tenant_id = $1
		  AND (reference ILIKE $2 OR ptype ILIKE $2 OR status ILIKE $2)
		ORDER BY subscribed_at DESC
		LIMIT $3
	`, tenantID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// Cancel conditionally moves an ACTIVE row to CANCELLED
func (r *SubscriptionRepository) Cancel(ctx context.Context, tenantID, reference, reason string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'CANCELLED', reason = $3
		WHERE tenant_id = $1 AND reference = $2 AND status = 'ACTIVE'
	`, tenantID, reference, reason)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

// SweepPage returns up to limit ACTIVE rows with subscribed_at strictly
// greater than cursor, oldest first
func (r *SubscriptionRepository) SweepPage(ctx context.Context, cursor int64, limit int) ([]subscription.Subscription, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = 'ACTIVE' AND subscribed_at > $1
		ORDER BY subscribed_at ASC
		LIMIT $2
	`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read sweep page: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// Expire conditionally moves an ACTIVE row to EXPIRED
func (r *SubscriptionRepository) Expire(ctx context.Context, tenantID, reference string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'EXPIRED'
		WHERE tenant_id = $1 AND reference = $2 AND status = 'ACTIVE'
	`, tenantID, reference)
	if err != nil {
		return fmt.Errorf("failed to expire subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}
