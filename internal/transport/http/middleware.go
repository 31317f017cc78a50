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
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
	"github.com/pharmatrix/phx-cloud/internal/observability/logger"
	"github.com/pharmatrix/phx-cloud/internal/tenant"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Mount tags every request under a route group with its context type, so
// one handler set can serve the /super, /pharmacy and /hospital surfaces.
func Mount(typ authz.ContextType) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withMount(r.Context(), typ)))
		})
	}
}

// Authenticate resolves the bearer credential to a live user and attaches
// it to the request context. The two failure modes are distinguished so
// clients know whether to sign in again (unauthenticated) or re-verify
// their session (disconnected).
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		user, err := h.identityService.Resolve(r.Context(), bearer)
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrDisconnected):
				respondFail(w, http.StatusUnauthorized, "AUTH", codeDisconnected, "User is disconnected")
			default:
				respondFail(w, http.StatusUnauthorized, "AUTH", codeUnauthenticated, "Invalid request credentials")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), user)))
	})
}

// RequireRoles gates the route on the endpoint's required-roles list plus
// the mount's context family and tenant self-scoping, all decided by the
// authorization gate.
func (h *Handler) RequireRoles(entries ...string) func(next http.Handler) http.Handler {
	required := authz.MustRequirements(entries...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetCaller(r.Context())

			var caller *authz.Caller
			if user != nil {
				caller = &authz.Caller{Context: user.Account.Context}
			}

			err := h.gate.Allow(caller, required, GetMount(r.Context()), chi.URLParam(r, "id"))
			if err != nil {
				if errors.Is(err, authz.ErrDisconnected) {
					respondFail(w, http.StatusUnauthorized, "AUTH", codeDisconnected, "User is disconnected")
					return
				}
				respondFail(w, http.StatusForbidden, "ACCESS", codeUnauthorized, "Access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ResolveTenant maps the route's tenant identifier (including the "me"
// sentinel) to a concrete tenant and attaches it to the request context.
func (h *Handler) ResolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetCaller(r.Context())

		t, err := h.tenantService.Resolve(r.Context(), user, chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, tenant.ErrTenantNotFound) {
				respondFail(w, http.StatusNotFound, "TENANT", codeNotFound, "Tenant not found")
				return
			}
			slog.ErrorContext(r.Context(), "failed to resolve tenant", logger.Error(err))
			respondFail(w, http.StatusInternalServerError, "TENANT", codeInternalError, "Failed to resolve tenant")
			return
		}

		next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), t)))
	})
}
