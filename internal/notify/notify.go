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

// Package notify declares the outbound delivery collaborators. Actual
// email/SMS transport lives outside this service; all deliveries are best
// effort and must never fail the calling operation.
package notify

import (
	"context"
	"log/slog"
)

// Mailer delivers account and invitation email.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email string, code int)
	SendResetLink(ctx context.Context, email, link string)
	SendInvitation(ctx context.Context, email, name, token string)
}

// SubscriptionNotifier delivers subscription lifecycle notices raised by
// the sweeper.
type SubscriptionNotifier interface {
	SubscriptionExpired(ctx context.Context, tenantID, reference string)
	SubscriptionExpiring(ctx context.Context, tenantID, reference string, daysLeft int)
}

// LogMailer writes deliveries to the structured log instead of sending
// them. Used in development and as the default wiring.
type LogMailer struct{}

func (LogMailer) SendVerificationCode(ctx context.Context, email string, code int) {
	slog.InfoContext(ctx, "verification code email",
		slog.String("email", email), slog.Int("code", code))
}

func (LogMailer) SendResetLink(ctx context.Context, email, link string) {
	slog.InfoContext(ctx, "password reset email",
		slog.String("email", email), slog.String("link", link))
}

func (LogMailer) SendInvitation(ctx context.Context, email, name, token string) {
	slog.InfoContext(ctx, "invitation email",
		slog.String("email", email), slog.String("name", name))
}

// LogNotifier logs subscription notices.
type LogNotifier struct{}

func (LogNotifier) SubscriptionExpired(ctx context.Context, tenantID, reference string) {
	slog.InfoContext(ctx, "subscription expired notice",
		slog.String("tenant_id", tenantID), slog.String("reference", reference))
}

func (LogNotifier) SubscriptionExpiring(ctx context.Context, tenantID, reference string, daysLeft int) {
	slog.InfoContext(ctx, "subscription expiring notice",
		slog.String("tenant_id", tenantID),
		slog.String("reference", reference),
		slog.Int("days_left", daysLeft))
}
