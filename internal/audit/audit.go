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

// Package audit is the write-only activity-log sink. Records are
// fire-and-forget: a failing sink is logged and ignored, it never fails
// the business operation that produced the record.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/pharmatrix/phx-cloud/internal/authz"
)

// Activity actions.
const (
	ActionSignup               = "SIGNUP"
	ActionSignin               = "SIGNIN"
	ActionSignout              = "SIGNOUT"
	ActionResetPassword        = "RESET-PASSWORD"
	ActionResetPasswordRequest = "RESET-PASSWORD-REQUEST"
	ActionCloseAccount         = "CLOSE-ACCOUNT"
	ActionInvitation           = "INVITATION"
	ActionAcceptInvitation     = "ACCEPT-INVITATION"
	ActionDeleteInvitation     = "DELETE-INVITATION"
	ActionCreateTenant         = "CREATE-TENANT"
	ActionUpdateTenant         = "UPDATE-TENANT"
	ActionDeleteTenant         = "DELETE-TENANT"
	ActionSubscribe            = "SUBSCRIBE"
	ActionCancelSubscription   = "CANCEL-SUBSCRIPTION"
	ActionExpireSubscription   = "EXPIRE-SUBSCRIPTION"
)

// Record is one activity-log entry.
type Record struct {
	Action   string         `json:"action"`
	UID      string         `json:"uid"` // acting user's email
	Context  authz.Context  `json:"context"`
	Data     map[string]any `json:"data,omitempty"`
	Datetime int64          `json:"datetime"` // unix milliseconds
}

// Logger accepts activity records.
type Logger interface {
	Log(ctx context.Context, rec Record)
}

// Store persists activity records.
type Store interface {
	Insert(ctx context.Context, rec Record) error
}

// SlogLogger emits activity records to the structured log.
type SlogLogger struct{}

// NewSlogLogger creates a log-only activity sink.
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an activity event.
func (l *SlogLogger) Log(ctx context.Context, rec Record) {
	if rec.Datetime == 0 {
		rec.Datetime = time.Now().UnixMilli()
	}
	slog.InfoContext(ctx, "activity",
		slog.String("action", rec.Action),
		slog.String("uid", rec.UID),
		slog.String("role", rec.Context.Role.String()),
		slog.String("tenant_id", rec.Context.ID),
		slog.Int64("datetime", rec.Datetime),
		slog.Any("data", rec.Data),
		slog.String("component", "audit"),
	)
}

// StoreLogger persists records through a Store, falling back to the log on
// failure.
type StoreLogger struct {
	store Store
}

// NewStoreLogger creates a persisting activity sink.
func NewStoreLogger(store Store) *StoreLogger {
	return &StoreLogger{store: store}
}

// Log records an activity event, best effort.
func (l *StoreLogger) Log(ctx context.Context, rec Record) {
	if rec.Datetime == 0 {
		rec.Datetime = time.Now().UnixMilli()
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "failed to persist activity record",
			slog.String("action", rec.Action),
			slog.String("error", err.Error()),
		)
	}
}
