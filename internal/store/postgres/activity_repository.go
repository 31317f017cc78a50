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

package postgres

import (
	"context"
	"fmt"

	"github.com/pharmatrix/phx-cloud/internal/audit"
)

// ActivityRepository implements audit.Store
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new activity-log repository
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Insert appends an activity record
func (r *ActivityRepository) Insert(ctx context.Context, rec audit.Record) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO activity_logs (action, uid, context, data, datetime)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.Action, rec.UID, rec.Context, rec.Data, rec.Datetime)
	if err != nil {
		return fmt.Errorf("failed to insert activity record: %w", err)
	}
	return nil
}
