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

	"github.com/pharmatrix/phx-cloud/internal/observability/logger"
	"github.com/pharmatrix/phx-cloud/internal/subscription"
)

// SubscribeRequest is the plan purchase payload.
type SubscribeRequest struct {
	PType   string               `json:"ptype"`
	Per     string               `json:"per"`
	Payment subscription.Payment `json:"payment"`
}

// Subscribe purchases a plan term for the resolved tenant
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "SUBSCRIPTION", codeInvalidRequest, "Invalid request body")
		return
	}

	t := GetTenant(r.Context())
	sub, err := h.subscriptionService.Subscribe(r.Context(), GetCaller(r.Context()), t.ID, subscription.SubscribeInput{
		PType:   req.PType,
		Per:     subscription.Period(req.Per),
		Payment: req.Payment,
	})
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrAlreadySubscribed):
			respondFail(w, http.StatusConflict, "SUBSCRIPTION", codeInvalidRequest, "Tenant already has an active subscription")
		case errors.Is(err, subscription.ErrInvalidPeriod), errors.Is(err, subscription.ErrInvalidPayload):
			respondFail(w, http.StatusBadRequest, "SUBSCRIPTION", codeInvalidRequest, "Invalid subscription payload")
		default:
			slog.ErrorContext(r.Context(), "subscribe failed", logger.Error(err), logger.TenantID(t.ID))
			respondFail(w, http.StatusInternalServerError, "SUBSCRIPTION", codeInternalError, "Failed to subscribe")
		}
		return
	}

	respondOK(w, "SUBSCRIPTION", "ADDED", "Subscribed", map[string]any{"subscription": sub})
}

// ListSubscriptions pages the resolved tenant's subscription history
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())
	cursor, _ := strconv.ParseInt(r.URL.Query().Get("cursor"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := subscription.Status(r.URL.Query().Get("status"))

	page, err := h.subscriptionService.List(r.Context(), t.ID, status, cursor, limit)
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidPayload) {
			respondFail(w, http.StatusBadRequest, "SUBSCRIPTION", codeInvalidRequest, "Invalid status filter")
			return
		}
		slog.ErrorContext(r.Context(), "subscription listing failed", logger.Error(err), logger.TenantID(t.ID))
		respondFail(w, http.StatusInternalServerError, "SUBSCRIPTION", codeInternalError, "Failed to list subscriptions")
		return
	}

	respondOK(w, "SUBSCRIPTION", "FETCHED", "", map[string]any{
		"items":  page.Items,
		"cursor": page.Cursor,
		"more":   page.More,
	})
}

// SearchSubscriptions matches the tenant's subscriptions by reference,
// plan type or status
func (h *Handler) SearchSubscriptions(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.subscriptionService.Search(r.Context(), t.ID, r.URL.Query().Get("q"), limit)
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidPayload) {
			respondFail(w, http.StatusBadRequest, "SUBSCRIPTION", codeInvalidRequest, "Missing search query")
			return
		}
		slog.ErrorContext(r.Context(), "subscription search failed", logger.Error(err), logger.TenantID(t.ID))
		respondFail(w, http.StatusInternalServerError, "SUBSCRIPTION", codeInternalError, "Failed to search subscriptions")
		return
	}

	respondOK(w, "SUBSCRIPTION", "SEARCH", "", map[string]any{"items": items})
}

// ActiveSubscription returns the tenant's current active term
func (h *Handler) ActiveSubscription(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	sub, err := h.subscriptionService.Active(r.Context(), t.ID)
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			respondFail(w, http.StatusNotFound, "SUBSCRIPTION", codeNotFound, "No active subscription")
			return
		}
		slog.ErrorContext(r.Context(), "active subscription lookup failed", logger.Error(err), logger.TenantID(t.ID))
		respondFail(w, http.StatusInternalServerError, "SUBSCRIPTION", codeInternalError, "Failed to fetch subscription")
		return
	}

	respondOK(w, "SUBSCRIPTION", "FETCHED", "", map[string]any{"subscription": sub})
}

// CancelSubscriptionRequest carries the mandatory cancellation reason.
type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

// CancelSubscription cancels an active term by reference
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req CancelSubscriptionRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "SUBSCRIPTION", codeInvalidRequest, "Invalid request body")
		return
	}
	if req.Reason == "" {
		respondFail(w, http.StatusBadRequest, "SUBSCRIPTION", codeInvalidRequest, "Cancellation reason is required")
		return
	}

	t := GetTenant(r.Context())
	reference := chi.URLParam(r, "reference")

	err := h.subscriptionService.Cancel(r.Context(), GetCaller(r.Context()), t.ID, reference, req.Reason)
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			respondFail(w, http.StatusNotFound, "SUBSCRIPTION", codeNotFound, "Subscription not found")
			return
		}
		slog.ErrorContext(r.Context(), "subscription cancel failed",
			logger.Error(err), logger.TenantID(t.ID), logger.Reference(reference))
		respondFail(w, http.StatusInternalServerError, "SUBSCRIPTION", codeInternalError, "Failed to cancel subscription")
		return
	}

	respondOK(w, "SUBSCRIPTION", "CANCELLED", "Subscription cancelled", nil)
}
