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
	"context"

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
	"github.com/pharmatrix/phx-cloud/internal/tenant"
)

type contextKey string

const (
	callerKey contextKey = "caller"
	tenantKey contextKey = "tenant"
	mountKey  contextKey = "mount"
)

// withCaller stores the resolved user. The value is set once by the
// authentication middleware and only read afterwards; handlers never
// mutate it.
func withCaller(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, callerKey, user)
}

// GetCaller retrieves the authenticated user from context.
func GetCaller(ctx context.Context) *identity.User {
	if u, ok := ctx.Value(callerKey).(*identity.User); ok {
		return u
	}
	return nil
}

func withTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// GetTenant retrieves the resolved tenant from context.
func GetTenant(ctx context.Context) *tenant.Tenant {
	if t, ok := ctx.Value(tenantKey).(*tenant.Tenant); ok {
		return t
	}
	return nil
}

func withMount(ctx context.Context, typ authz.ContextType) context.Context {
	return context.WithValue(ctx, mountKey, typ)
}

// GetMount retrieves the context type of the route mount handling the
// request (super, pharmacy or hospital).
func GetMount(ctx context.Context) authz.ContextType {
	if t, ok := ctx.Value(mountKey).(authz.ContextType); ok {
		return t
	}
	return ""
}
