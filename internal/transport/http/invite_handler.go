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

package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
	"github.com/pharmatrix/phx-cloud/internal/invite"
	"github.com/pharmatrix/phx-cloud/internal/observability/logger"
)

// inviteTenantID resolves the route tenant identifier for invitation
// operations: "me" collapses to the caller's own context id.
func inviteTenantID(r *http.Request, caller *identity.User) string {
	id := chi.URLParam(r, "id")
	if id == "me" {
		return caller.Account.Context.ID
	}
	return id
}

// SendInvitationRequest is the invitation payload.
type SendInvitationRequest struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SendInvitation creates or refreshes an invitation
func (h *Handler) SendInvitation(w http.ResponseWriter, r *http.Request) {
	var req SendInvitationRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "INVITATION", codeInvalidRequest, "Invalid request body")
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		respondFail(w, http.StatusBadRequest, "INVITATION", codeInvalidRequest, "Unauthorized invitation role")
		return
	}

	caller := GetCaller(r.Context())
	mount := GetMount(r.Context())

	target := authz.Context{Type: mount, Role: role}
	if mount != authz.ContextSuper {
		target.ID = inviteTenantID(r, caller)
	}

	inv, err := h.inviteService.Send(r.Context(), caller, invite.SendInput{
		Context: target,
		Name:    req.Name,
		Email:   req.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, invite.ErrRoleNotInvitable), errors.Is(err, invite.ErrNotAllowedToInvite):
			respondFail(w, http.StatusBadRequest, "INVITATION", codeInvalidRequest, "Unauthorized invitation role")
		case errors.Is(err, invite.ErrAlreadyMember):
			respondFail(w, http.StatusConflict, "INVITATION", codeInvalidRequest, "User already holds this role")
		case errors.Is(err, invite.ErrInvalidInvitation), errors.Is(err, identity.ErrInvalidEmail):
			respondFail(w, http.StatusBadRequest, "INVITATION", codeInvalidRequest, "Invalid invitation payload")
		default:
			slog.ErrorContext(r.Context(), "invitation send failed", logger.Error(err), logger.Email(req.Email))
			respondFail(w, http.StatusInternalServerError, "INVITATION", codeInternalError, "Failed to send invitation")
		}
		return
	}

	respondOK(w, "INVITATION", "SENT", "Invitation sent", map[string]any{"invitation": inv})
}

// ListInvitations lists pending invitations visible to the caller
func (h *Handler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	items, err := h.inviteService.List(r.Context(), GetCaller(r.Context()), GetMount(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "invitation listing failed", logger.Error(err))
		respondFail(w, http.StatusInternalServerError, "INVITATION", codeInternalError, "Failed to list invitations")
		return
	}

	respondOK(w, "INVITATION", "FETCHED", "", map[string]any{"items": items})
}

// AcceptInvitationRequest carries the invitation token.
type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

// AcceptInvitation redeems an invitation token
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "INVITATION", codeInvalidRequest, "Invalid request body")
		return
	}

	res, err := h.inviteService.Accept(r.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, invite.ErrInvitationNotFound):
			respondFail(w, http.StatusNotFound, "INVITATION", codeNotFound, "No invitation found")
		case errors.Is(err, invite.ErrInvitationExpired):
			respondFail(w, http.StatusGone, "INVITATION", codeInvalidRequest, "Invitation has expired")
		default:
			slog.ErrorContext(r.Context(), "invitation accept failed", logger.Error(err))
			respondFail(w, http.StatusInternalServerError, "INVITATION", codeInternalError, "Failed to accept invitation")
		}
		return
	}

	respondOK(w, "INVITATION", "ACCEPTED", "Invitation accepted", map[string]any{
		"context": res.Context,
		"next":    res.Next,
	})
}

// DeleteInvitationRequest names the invitation to withdraw.
type DeleteInvitationRequest struct {
	Role  string `json:"role"`
	Email string `json:"email"`
}

// DeleteInvitation withdraws a pending invitation
func (h *Handler) DeleteInvitation(w http.ResponseWriter, r *http.Request) {
	var req DeleteInvitationRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "INVITATION", codeInvalidRequest, "Invalid request body")
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		respondFail(w, http.StatusBadRequest, "INVITATION", codeInvalidRequest, "Unauthorized invitation role")
		return
	}

	caller := GetCaller(r.Context())
	mount := GetMount(r.Context())

	target := authz.Context{Type: mount, Role: role}
	if mount != authz.ContextSuper {
		target.ID = inviteTenantID(r, caller)
	}

	if err := h.inviteService.Delete(r.Context(), caller, target, req.Email); err != nil {
		switch {
		case errors.Is(err, invite.ErrInvitationNotFound):
			respondFail(w, http.StatusNotFound, "INVITATION", codeNotFound, "No invitation found")
		case errors.Is(err, invite.ErrNotAllowedToInvite):
			respondFail(w, http.StatusForbidden, "INVITATION", codeUnauthorized, "Access denied")
		default:
			slog.ErrorContext(r.Context(), "invitation delete failed", logger.Error(err), logger.Email(req.Email))
			respondFail(w, http.StatusInternalServerError, "INVITATION", codeInternalError, "Failed to delete invitation")
		}
		return
	}

	respondOK(w, "INVITATION", "DELETED", "Invitation deleted", nil)
}
