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
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
	"github.com/pharmatrix/phx-cloud/internal/observability/logger"
	"github.com/pharmatrix/phx-cloud/internal/tenant"
)

// mountTenantType maps a route mount to the tenant type it manages. On the
// /super mount the request body names the type instead.
func mountTenantType(typ authz.ContextType, bodyType string) (tenant.Type, bool) {
	switch typ {
	case authz.ContextPharmacy:
		return tenant.TypePharmacy, true
	case authz.ContextHospital:
		return tenant.TypeHospital, true
	default:
		t := tenant.Type(bodyType)
		return t, t.Valid()
	}
}

// RegisterTenantRequest is the organization registration payload.
type RegisterTenantRequest struct {
	Type          string            `json:"type,omitempty"` // super mount only
	Name          string            `json:"name"`
	LicenseNumber string            `json:"license_number"`
	Contacts      tenant.Contacts   `json:"contacts"`
	Location      identity.Location `json:"location"`
}

// RegisterTenant registers an organization
func (h *Handler) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	var req RegisterTenantRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "TENANT", codeInvalidRequest, "Invalid request body")
		return
	}

	typ, ok := mountTenantType(GetMount(r.Context()), req.Type)
	if !ok {
		respondFail(w, http.StatusBadRequest, "TENANT", codeInvalidRequest, "Invalid tenant type")
		return
	}

	created, err := h.tenantService.Register(r.Context(), GetCaller(r.Context()), tenant.RegisterInput{
		Type:          typ,
		Name:          req.Name,
		LicenseNumber: req.LicenseNumber,
		Contacts:      req.Contacts,
		Location:      req.Location,
	})
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrInvalidTenantType), errors.Is(err, tenant.ErrInvalidPayload):
			respondFail(w, http.StatusBadRequest, "TENANT", codeInvalidRequest, "Invalid tenant payload")
		case errors.Is(err, tenant.ErrTenantAlreadyExists):
			respondFail(w, http.StatusConflict, "TENANT", codeInvalidRequest, "Tenant already registered")
		case errors.Is(err, authz.ErrUnauthorized):
			respondFail(w, http.StatusForbidden, "TENANT", codeUnauthorized, "Access denied")
		default:
			slog.ErrorContext(r.Context(), "tenant registration failed", logger.Error(err))
			respondFail(w, http.StatusInternalServerError, "TENANT", codeInternalError, "Failed to register tenant")
		}
		return
	}

	respondOK(w, "TENANT", "REGISTERED", "Tenant registered", map[string]any{"tenant": created})
}

// GetTenant returns the resolved tenant
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	respondOK(w, "TENANT", "RETRIEVED", "", map[string]any{"tenant": GetTenant(r.Context())})
}

// ListTenants pages tenants of the mount's type
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	typ, ok := mountTenantType(GetMount(r.Context()), r.URL.Query().Get("type"))
	if !ok {
		respondFail(w, http.StatusBadRequest, "TENANT", codeInvalidRequest, "Invalid tenant type")
		return
	}

	cursor, _ := strconv.ParseInt(r.URL.Query().Get("cursor"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := h.tenantService.List(r.Context(), typ, cursor, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "tenant listing failed", logger.Error(err))
		respondFail(w, http.StatusInternalServerError, "TENANT", codeInternalError, "Failed to list tenants")
		return
	}

	respondOK(w, "TENANT", "FETCHED", "", map[string]any{
		"items":  page.Items,
		"cursor": page.Cursor,
		"more":   page.More,
	})
}

// SearchTenants matches tenants by name, ID or license number
func (h *Handler) SearchTenants(w http.ResponseWriter, r *http.Request) {
	typ, ok := mountTenantType(GetMount(r.Context()), r.URL.Query().Get("type"))
	if !ok {
		respondFail(w, http.StatusBadRequest, "TENANT", codeInvalidRequest, "Invalid tenant type")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.tenantService.Search(r.Context(), typ, r.URL.Query().Get("q"), limit)
	if err != nil {
		if errors.Is(err, tenant.ErrInvalidPayload) {
			respondFail(w, http.StatusBadRequest, "TENANT", codeInvalidRequest, "Missing search query")
			return
		}
		slog.ErrorContext(r.Context(), "tenant search failed", logger.Error(err))
		respondFail(w, http.StatusInternalServerError, "TENANT", codeInternalError, "Failed to search tenants")
		return
	}

	respondOK(w, "TENANT", "SEARCH", "", map[string]any{"items": items})
}

// UpdateTenant applies a partial update
func (h *Handler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	var upd tenant.Update
	if err := decodeBody(r, &upd); err != nil {
		respondFail(w, http.StatusBadRequest, "TENANT", codeInvalidRequest, "Invalid request body")
		return
	}

	t := GetTenant(r.Context())
	updated, err := h.tenantService.Update(r.Context(), GetCaller(r.Context()), t.ID, upd)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondFail(w, http.StatusNotFound, "TENANT", codeNotFound, "Tenant not found")
			return
		}
		slog.ErrorContext(r.Context(), "tenant update failed", logger.Error(err), logger.TenantID(t.ID))
		respondFail(w, http.StatusInternalServerError, "TENANT", codeInternalError, "Failed to update tenant")
		return
	}

	respondOK(w, "TENANT", "UPDATED", "Tenant updated", map[string]any{"tenant": updated})
}

// DeleteTenant removes a tenant with its cascade
func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())
	if err := h.tenantService.Delete(r.Context(), GetCaller(r.Context()), t.ID); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondFail(w, http.StatusNotFound, "TENANT", codeNotFound, "Tenant not found")
			return
		}
		slog.ErrorContext(r.Context(), "tenant deletion failed", logger.Error(err), logger.TenantID(t.ID))
		respondFail(w, http.StatusInternalServerError, "TENANT", codeInternalError, "Failed to delete tenant")
		return
	}

	respondOK(w, "TENANT", "DELETED", "Tenant deleted", nil)
}

// BranchRequest is the branch creation payload.
type BranchRequest struct {
	Name     string            `json:"name"`
	Location identity.Location `json:"location"`
	Contacts tenant.Contacts   `json:"contacts"`
}

// AddBranch creates a branch under the resolved tenant
func (h *Handler) AddBranch(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "TENANT", codeInvalidRequest, "Invalid request body")
		return
	}

	t := GetTenant(r.Context())
	branch, err := h.tenantService.AddBranch(r.Context(), GetCaller(r.Context()), t.ID, tenant.Branch{
		Name:     req.Name,
		Location: req.Location,
		Contacts: req.Contacts,
	})
	if err != nil {
		if errors.Is(err, tenant.ErrInvalidPayload) {
			respondFail(w, http.StatusBadRequest, "BRANCH", codeInvalidRequest, "Invalid branch payload")
			return
		}
		slog.ErrorContext(r.Context(), "branch creation failed", logger.Error(err), logger.TenantID(t.ID))
		respondFail(w, http.StatusInternalServerError, "BRANCH", codeInternalError, "Failed to create branch")
		return
	}

	respondOK(w, "BRANCH", "CREATED", "Branch created", map[string]any{"branch": branch})
}

// ListBranches lists the resolved tenant's branches
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())
	branches, err := h.tenantService.Branches(r.Context(), GetCaller(r.Context()), t.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "branch listing failed", logger.Error(err), logger.TenantID(t.ID))
		respondFail(w, http.StatusInternalServerError, "BRANCH", codeInternalError, "Failed to list branches")
		return
	}

	respondOK(w, "BRANCH", "FETCHED", "", map[string]any{"items": branches})
}

// RemoveBranch deletes one branch
func (h *Handler) RemoveBranch(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())
	branchID := chi.URLParam(r, "branchID")

	err := h.tenantService.RemoveBranch(r.Context(), GetCaller(r.Context()), t.ID, branchID)
	if err != nil {
		if errors.Is(err, tenant.ErrBranchNotFound) {
			respondFail(w, http.StatusNotFound, "BRANCH", codeNotFound, "Branch not found")
			return
		}
		slog.ErrorContext(r.Context(), "branch deletion failed", logger.Error(err), logger.TenantID(t.ID))
		respondFail(w, http.StatusInternalServerError, "BRANCH", codeInternalError, "Failed to delete branch")
		return
	}

	respondOK(w, "BRANCH", "DELETED", "Branch deleted", nil)
}
