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

package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatrix/phx-cloud/internal/audit"
	"github.com/pharmatrix/phx-cloud/internal/identity"
)

// renewalWindow is how close to an active term's end a renewal may be
// purchased. Once the end has passed the term no longer gates anything,
// whether or not the sweeper has retired the row yet.
const renewalWindow = 24 * time.Hour

// Service manages subscription purchases and queries.
type Service struct {
	repo  Repository
	audit audit.Logger
	now   func() time.Time
}

// NewService creates a subscription service.
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, audit: auditLogger, now: time.Now}
}

// SubscribeInput is the payload accepted by Subscribe.
type SubscribeInput struct {
	PType   string
	Per     Period
	Payment Payment
}

// Subscribe purchases a plan term for the tenant. While a term is active
// (its end has not passed) a new purchase is only allowed inside the
// renewal window before its end, and the new term starts where the old one
// ends so no coverage is lost. A lapsed row the sweeper has not retired
// yet does not gate the purchase; the new term starts now.
func (s *Service) Subscribe(ctx context.Context, caller *identity.User, tenantID string, in SubscribeInput) (*Subscription, error) {
	span, err := in.Per.Duration()
	if err != nil {
		return nil, err
	}
	if in.PType == "" {
		return nil, ErrInvalidPayload
	}

	now := s.now().UnixMilli()
	start := now

	active, err := s.repo.GetActive(ctx, tenantID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("failed to look up active subscription: %w", err)
	}
	if err == nil && active.Duration.End >= now {
		if active.Duration.End > now+renewalWindow.Milliseconds() {
			return nil, ErrAlreadySubscribed
		}
		start = active.Duration.End
	}

	sub := &Subscription{
		TenantID:  tenantID,
		Reference: uuid.NewString(),
		PType:     in.PType,
		Per:       in.Per,
		Duration:  Duration{Start: start, End: start + span.Milliseconds()},
		Status:    StatusActive,
		Payment:   in.Payment,
		Subscribed: Stamp{
			At: now,
			By: caller.Email,
		},
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionSubscribe,
		UID:     caller.Email,
		Context: caller.Account.Context,
		Data: map[string]any{
			"tenant_id": tenantID,
			"reference": sub.Reference,
			"ptype":     sub.PType,
			"per":       sub.Per,
		},
	})

	return sub, nil
}

// Cancel moves an active term to CANCELLED. The condition lives in the
// store so a concurrent expiry cannot be overwritten.
func (s *Service) Cancel(ctx context.Context, caller *identity.User, tenantID, reference, reason string) error {
	if err := s.repo.Cancel(ctx, tenantID, reference, reason); err != nil {
		return err
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionCancelSubscription,
		UID:     caller.Email,
		Context: caller.Account.Context,
		Data: map[string]any{
			"tenant_id": tenantID,
			"reference": reference,
			"reason":    reason,
		},
	})
	return nil
}

// Get retrieves one subscription by reference.
func (s *Service) Get(ctx context.Context, tenantID, reference string) (*Subscription, error) {
	return s.repo.GetByReference(ctx, tenantID, reference)
}

// Active returns the tenant's current active term.
func (s *Service) Active(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.repo.GetActive(ctx, tenantID)
}

// Page is a cursor-bounded slice of subscription history.
type Page struct {
	Items  []Subscription `json:"items"`
	Cursor int64          `json:"cursor,omitempty"`
	More   bool           `json:"more"`
}

// List pages through the tenant's subscription history, newest purchase
// first, optionally filtered by status.
func (s *Service) List(ctx context.Context, tenantID string, status Status, cursor int64, limit int) (*Page, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidPayload
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	items, err := s.repo.List(ctx, Query{
		TenantID: tenantID,
		Status:   status,
		Cursor:   cursor,
		Limit:    limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.More = true
	}
	if n := len(page.Items); n > 0 {
		page.Cursor = page.Items[n-1].Subscribed.At
	}
	return page, nil
}

// Search matches the tenant's subscriptions by reference, plan type or
// status.
func (s *Service) Search(ctx context.Context, tenantID, query string, limit int) ([]Subscription, error) {
	if query == "" {
		return nil, ErrInvalidPayload
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.Search(ctx, tenantID, query, limit)
}
