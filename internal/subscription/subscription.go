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

// Package subscription manages tenant subscription plans: purchase,
// renewal, cancellation and the background sweep that expires them.
package subscription

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrAlreadySubscribed    = errors.New("tenant already has an active subscription")
	ErrInvalidPeriod        = errors.New("invalid subscription period")
	ErrInvalidPayload       = errors.New("invalid subscription payload")
)

// Status is the lifecycle state of a subscription row. Rows are never
// mutated back to ACTIVE; a renewal inserts a fresh row instead.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusExpired || s == StatusCancelled
}

// Period is a billing period.
type Period string

const (
	PeriodMonth     Period = "month"
	PeriodQuarterly Period = "quarterly"
	PeriodYear      Period = "year"
)

// Duration returns the wall-clock span covered by one billing period.
func (p Period) Duration() (time.Duration, error) {
	switch p {
	case PeriodMonth:
		return 30 * 24 * time.Hour, nil
	case PeriodQuarterly:
		return 90 * 24 * time.Hour, nil
	case PeriodYear:
		return 365 * 24 * time.Hour, nil
	}
	return 0, ErrInvalidPeriod
}

// Subscription is one purchased plan term for a tenant.
type Subscription struct {
	TenantID   string   `json:"tenant_id"`
	Reference  string   `json:"reference"`
	PType      string   `json:"ptype"` // plan type, e.g. "premium"
	Per        Period   `json:"per"`
	Duration   Duration `json:"duration"`
	Status     Status   `json:"status"`
	Payment    Payment  `json:"payment"`
	Subscribed Stamp    `json:"subscribed"`
	Reason     string   `json:"reason,omitempty"` // set on cancellation
}

// Duration is the covered interval in unix milliseconds.
type Duration struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Payment records how the term was paid for.
type Payment struct {
	Method   string  `json:"method,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

// Stamp records the purchase actor and time in unix milliseconds.
type Stamp struct {
	At int64  `json:"at"`
	By string `json:"by"`
}

// Query narrows List results.
type Query struct {
	TenantID string
	Status   Status // empty matches all
	Cursor   int64  // subscribed.at upper bound, zero for the first page
	Limit    int
}

// Repository persists subscriptions.
type Repository interface {
	// Create inserts a subscription row; Reference must be unique.
	Create(ctx context.Context, sub *Subscription) error

	// GetByReference retrieves a subscription by its reference.
	GetByReference(ctx context.Context, tenantID, reference string) (*Subscription, error)

	// GetActive returns the tenant's ACTIVE row with the latest end, or
	// ErrSubscriptionNotFound.
	GetActive(ctx context.Context, tenantID string) (*Subscription, error)

	// List returns rows matching the query ordered by subscribed.at
	// descending, strictly below Cursor when it is non-zero.
	List(ctx context.Context, q Query) ([]Subscription, error)

	// Search matches reference, plan type or status against the query
	// string within one tenant.
	Search(ctx context.Context, tenantID, query string, limit int) ([]Subscription, error)

	// Cancel conditionally moves an ACTIVE row to CANCELLED, recording the
	// reason. ErrSubscriptionNotFound when no ACTIVE row matches.
	Cancel(ctx context.Context, tenantID, reference, reason string) error

	// SweepPage returns up to limit ACTIVE rows with subscribed.at strictly
	// greater than cursor, ordered by subscribed.at ascending.
	SweepPage(ctx context.Context, cursor int64, limit int) ([]Subscription, error)

	// Expire conditionally moves an ACTIVE row to EXPIRED. ErrSubscriptionNotFound
	// when the row is no longer ACTIVE.
	Expire(ctx context.Context, tenantID, reference string) error
}
