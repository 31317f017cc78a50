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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/pharmatrix/phx-cloud/internal/audit"
	"github.com/pharmatrix/phx-cloud/internal/notify"
	"github.com/pharmatrix/phx-cloud/internal/observability/metrics"
)

const (
	// sweepRoundLimit bounds one sweep round so a large backlog never
	// blocks the store for long.
	sweepRoundLimit = 25

	// catchUpDelay re-runs a sweep quickly after a full page: there is
	// probably more backlog behind the cursor.
	catchUpDelay = 15 * time.Second

	// sweepInterval is the idle cadence once the backlog is drained.
	sweepInterval = 24 * time.Hour

	// expiryNoticeWindow is how far ahead of a term's end the near-expiry
	// notice goes out.
	expiryNoticeWindow = 10 * 24 * time.Hour
)

// Sweeper walks ACTIVE subscriptions in the background, expiring ended
// terms and emitting near-expiry notices. It pages by a subscribed.at
// cursor: a full page means backlog, so the next round runs after a short
// catch-up delay; a short page drains the walk and resets the cursor for
// the next daily pass.
type Sweeper struct {
	repo     Repository
	notifier notify.SubscriptionNotifier
	audit    audit.Logger
	now      func() time.Time

	cursor int64

	expired metric.Int64Counter
	notices metric.Int64Counter
	rounds  metric.Int64Counter
}

// NewSweeper creates a sweeper. The meter may be backed by a noop provider;
// counter creation failures degrade to nil counters, never to a dead sweeper.
func NewSweeper(repo Repository, notifier notify.SubscriptionNotifier, auditLogger audit.Logger, meter *metrics.Meter) *Sweeper {
	s := &Sweeper{
		repo:     repo,
		notifier: notifier,
		audit:    auditLogger,
		now:      time.Now,
	}
	if meter != nil {
		s.expired, _ = meter.CreateCounter("subscriptions_expired_total", "Subscriptions moved to EXPIRED by the sweeper")
		s.notices, _ = meter.CreateCounter("subscription_expiry_notices_total", "Near-expiry notices emitted by the sweeper")
		s.rounds, _ = meter.CreateCounter("subscription_sweep_rounds_total", "Sweep rounds executed")
	}
	return s
}

// RunOnce executes a single sweep round and returns the delay before the
// next one should run.
func (s *Sweeper) RunOnce(ctx context.Context) (time.Duration, error) {
	if s.rounds != nil {
		s.rounds.Add(ctx, 1)
	}

	page, err := s.repo.SweepPage(ctx, s.cursor, sweepRoundLimit)
	if err != nil {
		// Transient store trouble: retry on the catch-up cadence rather
		// than going dark for a day.
		return catchUpDelay, err
	}

	now := s.now().UnixMilli()
	noticeBound := now + expiryNoticeWindow.Milliseconds()

	for i := range page {
		sub := &page[i]
		s.cursor = sub.Subscribed.At

		switch {
		case sub.Duration.End <= now:
			if err := s.repo.Expire(ctx, sub.TenantID, sub.Reference); err != nil {
				// Lost the race to a cancel; nothing to report.
				continue
			}
			if s.expired != nil {
				s.expired.Add(ctx, 1)
			}
			s.audit.Log(ctx, audit.Record{
				Action: audit.ActionExpireSubscription,
				UID:    "system",
				Data: map[string]any{
					"tenant_id": sub.TenantID,
					"reference": sub.Reference,
				},
			})
			s.notifier.SubscriptionExpired(ctx, sub.TenantID, sub.Reference)

		case sub.Duration.End <= noticeBound:
			daysLeft := int((sub.Duration.End - now) / (24 * time.Hour).Milliseconds())
			if s.notices != nil {
				s.notices.Add(ctx, 1)
			}
			s.notifier.SubscriptionExpiring(ctx, sub.TenantID, sub.Reference, daysLeft)
		}
	}

	if len(page) == sweepRoundLimit {
		return catchUpDelay, nil
	}

	// Walk drained: restart from the top on the next daily pass.
	s.cursor = 0
	return sweepInterval, nil
}

// Run loops RunOnce until the context is cancelled. Intended to be started
// as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay, err := s.RunOnce(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "subscription sweep failed",
				slog.String("error", err.Error()),
				slog.String("component", "sweeper"),
			)
		}
		timer.Reset(delay)
	}
}
