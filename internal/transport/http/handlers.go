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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
	"github.com/pharmatrix/phx-cloud/internal/invite"
	"github.com/pharmatrix/phx-cloud/internal/subscription"
	"github.com/pharmatrix/phx-cloud/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService     *identity.Service
	tenantService       *tenant.Service
	inviteService       *invite.Service
	subscriptionService *subscription.Service
	gate                authz.Gate
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	tenantService *tenant.Service,
	inviteService *invite.Service,
	subscriptionService *subscription.Service,
) *Handler {
	return &Handler{
		identityService:     identityService,
		tenantService:       tenantService,
		inviteService:       inviteService,
		subscriptionService: subscriptionService,
	}
}

// mountPolicy is the per-mount role policy: which roles administer,
// staff-manage and read tenants under a route group.
type mountPolicy struct {
	typ    authz.ContextType
	admin  []string // register/update/delete tenants, manage subscriptions
	invite []string // send/withdraw invitations
	read   []string // list/search/fetch
}

func policyFor(typ authz.ContextType) mountPolicy {
	switch typ {
	case authz.ContextPharmacy:
		return mountPolicy{
			typ:    typ,
			admin:  []string{"SU:ADMIN", "SU:MANAGER", "PU:ADMIN"},
			invite: []string{"SU:ADMIN", "SU:MANAGER", "PU:ADMIN", "PU:MANAGER"},
			read:   []string{"SU", "PU"},
		}
	case authz.ContextHospital:
		return mountPolicy{
			typ:    typ,
			admin:  []string{"SU:ADMIN", "SU:MANAGER", "HU:ADMIN"},
			invite: []string{"SU:ADMIN", "SU:MANAGER", "HU:ADMIN"},
			read:   []string{"SU", "HU"},
		}
	default:
		return mountPolicy{
			typ:    authz.ContextSuper,
			admin:  []string{"SU:ADMIN", "SU:MANAGER"},
			invite: []string{"SU:ADMIN", "SU:MANAGER"},
			read:   []string{"SU"},
		}
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Account surface: public flows plus self-service for signed-in users.
	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/signin", h.Signin)
		r.Post("/verify-email", h.VerifyEmail)
		r.Post("/resend-code", h.ResendVerification)
		r.Post("/reset-password/request", h.RequestPasswordReset)
		r.Post("/reset-password", h.ResetPassword)
		r.Post("/invitation/accept", h.AcceptInvitation)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)
			r.Get("/me", h.Me)
			r.Post("/signout", h.Signout)
			r.Delete("/account", h.CloseAccount)
		})
	})

	// The three tenant-family surfaces share one handler set; the mount
	// tag and per-mount policy are the only thing that differs.
	h.mountTenantSurface(r, "/super/v1", policyFor(authz.ContextSuper))
	h.mountTenantSurface(r, "/pharmacy/v1", policyFor(authz.ContextPharmacy))
	h.mountTenantSurface(r, "/hospital/v1", policyFor(authz.ContextHospital))

	return r
}

func (h *Handler) mountTenantSurface(r chi.Router, prefix string, p mountPolicy) {
	r.Route(prefix, func(r chi.Router) {
		r.Use(Mount(p.typ))
		r.Use(h.Authenticate)

		r.With(h.RequireRoles(p.admin...)).Post("/tenants", h.RegisterTenant)
		r.With(h.RequireRoles(p.read...)).Get("/tenants", h.ListTenants)
		r.With(h.RequireRoles(p.read...)).Get("/tenants/search", h.SearchTenants)

		r.Route("/tenants/{id}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.ResolveTenant)

				r.With(h.RequireRoles(p.read...)).Get("/", h.GetTenant)
				r.With(h.RequireRoles(p.admin...)).Patch("/", h.UpdateTenant)
				r.With(h.RequireRoles(p.admin...)).Delete("/", h.DeleteTenant)

				r.With(h.RequireRoles(p.admin...)).Post("/branches", h.AddBranch)
				r.With(h.RequireRoles(p.read...)).Get("/branches", h.ListBranches)
				r.With(h.RequireRoles(p.admin...)).Delete("/branches/{branchID}", h.RemoveBranch)

				r.With(h.RequireRoles(p.admin...)).Post("/subscriptions", h.Subscribe)
				r.With(h.RequireRoles(p.read...)).Get("/subscriptions", h.ListSubscriptions)
				r.With(h.RequireRoles(p.read...)).Get("/subscriptions/search", h.SearchSubscriptions)
				r.With(h.RequireRoles(p.read...)).Get("/subscriptions/active", h.ActiveSubscription)
				r.With(h.RequireRoles(p.admin...)).Patch("/subscriptions/{reference}/cancel", h.CancelSubscription)
			})

			// Invitation listing/sending is scoped by the caller's own
			// context rather than a resolved tenant row.
			r.With(h.RequireRoles(p.invite...)).Post("/invitations", h.SendInvitation)
			r.With(h.RequireRoles(p.read...)).Get("/invitations", h.ListInvitations)
			r.With(h.RequireRoles(p.invite...)).Delete("/invitations", h.DeleteInvitation)
		})
	})
}

// HealthCheck reports service liveness
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "phx-cloud",
	})
}
