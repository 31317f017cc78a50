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

package invite

import (
	"context"
	"fmt"
	"time"

	"github.com/pharmatrix/phx-cloud/internal/audit"
	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
	"github.com/pharmatrix/phx-cloud/internal/notify"
	"github.com/pharmatrix/phx-cloud/internal/token"
)

// invitationTTL bounds how long a sent invitation stays acceptable.
const invitationTTL = 24 * time.Hour

// NextSignin and NextCompleteSignup tell the accepting client where to
// send the user after the grant is applied.
const (
	NextSignin         = "signin"
	NextCompleteSignup = "complete-signup"
)

// TenantDirectory is the tenant lookup the engine needs to validate that an
// invitation targets a real organization.
type TenantDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Service runs the invitation engine.
type Service struct {
	repo    Repository
	users   identity.UserRepository
	tenants TenantDirectory
	encoder *token.Encoder
	mailer  notify.Mailer
	audit   audit.Logger
	now     func() time.Time
}

// NewService creates the invitation service.
func NewService(
	repo Repository,
	users identity.UserRepository,
	tenants TenantDirectory,
	encoder *token.Encoder,
	mailer notify.Mailer,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		tenants: tenants,
		encoder: encoder,
		mailer:  mailer,
		audit:   auditLogger,
		now:     time.Now,
	}
}

// SendInput is the payload accepted by Send.
type SendInput struct {
	Context authz.Context
	Name    string
	Email   string
}

// Send creates (or refreshes) an invitation and mails its token to the
// invitee. The grant is checked against the invitable and inviter
// allow-lists, the caller's own scope, and the target tenant's existence.
func (s *Service) Send(ctx context.Context, caller *identity.User, in SendInput) (*Invitation, error) {
	email := identity.NormalizeEmail(in.Email)
	if !identity.IsValidEmail(email) {
		return nil, identity.ErrInvalidEmail
	}
	if !in.Context.Type.Valid() {
		return nil, ErrInvalidInvitation
	}

	// The root role, and anything else off the allow-list, can never be
	// handed out through an invitation.
	if !Invitable(in.Context.Type, in.Context.Role) {
		return nil, ErrRoleNotInvitable
	}

	callerCtx := caller.Account.Context
	if !CanInvite(in.Context.Type, callerCtx.Role) {
		return nil, ErrNotAllowedToInvite
	}

	switch in.Context.Type {
	case authz.ContextSuper:
		if in.Context.ID != "" {
			return nil, ErrInvalidInvitation
		}
	default:
		if in.Context.ID == "" {
			return nil, ErrInvalidInvitation
		}
		// Tenant staff can only invite into their own organization.
		if callerCtx.Role.Family != authz.FamilySuper && in.Context.ID != callerCtx.ID {
			return nil, ErrNotAllowedToInvite
		}
		ok, err := s.tenants.Exists(ctx, in.Context.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up tenant: %w", err)
		}
		if !ok {
			return nil, ErrInvalidInvitation
		}
	}

	// An account already holding the same type and role needs no grant.
	if existing, err := s.users.GetByEmail(ctx, email); err == nil {
		have := existing.Account.Context
		if have.Type == in.Context.Type && have.Role == in.Context.Role {
			return nil, ErrAlreadyMember
		}
	}

	now := s.now().UnixMilli()
	inv := &Invitation{
		Context: in.Context,
		Name:    in.Name,
		Email:   email,
		Expiry:  now + invitationTTL.Milliseconds(),
		Added:   Added{By: caller.Email, At: now},
	}
	if err := s.repo.Upsert(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to store invitation: %w", err)
	}

	raw, err := s.encoder.EncodeInvitation(in.Context, email)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invitation token: %w", err)
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionInvitation,
		UID:     caller.Email,
		Context: callerCtx,
		Data: map[string]any{
			"invitee": email,
			"role":    in.Context.Role.String(),
			"tenant":  in.Context.ID,
		},
	})

	s.mailer.SendInvitation(ctx, email, in.Name, raw)
	return inv, nil
}

// AcceptResult reports what the accepting client should do next.
type AcceptResult struct {
	Context authz.Context `json:"context"`
	Next    string        `json:"next"`
}

// Accept redeems an invitation token. An existing account is re-assigned to
// the granted context; an unknown email gets a restricted placeholder
// account that must complete sign-up. The invitation is consumed either
// way, so a second accept of the same token finds nothing.
func (s *Service) Accept(ctx context.Context, raw string) (*AcceptResult, error) {
	claims, err := s.encoder.DecodeInvitation(raw)
	if err != nil {
		return nil, ErrInvitationNotFound
	}
	email := identity.NormalizeEmail(claims.Email)

	inv, err := s.repo.Get(ctx, claims.Context, email)
	if err != nil {
		return nil, ErrInvitationNotFound
	}
	if inv.Expiry <= s.now().UnixMilli() {
		// Expired grants are purged on contact.
		_ = s.repo.Delete(ctx, inv.Context, email)
		return nil, ErrInvitationExpired
	}

	next := NextSignin
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		if err := s.users.ReassignContext(ctx, email, inv.Context); err != nil {
			return nil, fmt.Errorf("failed to reassign context: %w", err)
		}
	} else {
		next = NextCompleteSignup
		placeholder := &identity.User{
			Email:   email,
			Profile: identity.Profile{FirstName: inv.Name},
			Account: identity.Account{Context: inv.Context},
			Connection: identity.Connection{
				Restricted: &identity.RestrictionCompleteSignup,
			},
			CreatedAt: s.now().UnixMilli(),
		}
		if err := s.users.Create(ctx, placeholder); err != nil {
			return nil, fmt.Errorf("failed to create invited account: %w", err)
		}
	}

	if err := s.repo.Delete(ctx, inv.Context, email); err != nil {
		return nil, fmt.Errorf("failed to consume invitation: %w", err)
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionAcceptInvitation,
		UID:     email,
		Context: inv.Context,
	})

	return &AcceptResult{Context: inv.Context, Next: next}, nil
}

// List returns pending invitations visible to the caller: all of a context
// type for supers, only their own tenant's for tenant staff.
func (s *Service) List(ctx context.Context, caller *identity.User, typ authz.ContextType) ([]Invitation, error) {
	if !typ.Valid() {
		return nil, ErrInvalidInvitation
	}
	tenantID := ""
	if caller.Account.Context.Role.Family != authz.FamilySuper {
		tenantID = caller.Account.Context.ID
	}
	return s.repo.ListByContextType(ctx, typ, tenantID)
}

// Delete withdraws a pending invitation.
func (s *Service) Delete(ctx context.Context, caller *identity.User, c authz.Context, email string) error {
	email = identity.NormalizeEmail(email)

	callerCtx := caller.Account.Context
	if !CanInvite(c.Type, callerCtx.Role) {
		return ErrNotAllowedToInvite
	}
	if callerCtx.Role.Family != authz.FamilySuper && c.ID != callerCtx.ID {
		return ErrNotAllowedToInvite
	}

	if _, err := s.repo.Get(ctx, c, email); err != nil {
		return ErrInvitationNotFound
	}
	if err := s.repo.Delete(ctx, c, email); err != nil {
		return ErrInvitationNotFound
	}

	s.audit.Log(ctx, audit.Record{
		Action:  audit.ActionDeleteInvitation,
		UID:     caller.Email,
		Context: callerCtx,
		Data:    map[string]any{"invitee": email},
	})
	return nil
}
