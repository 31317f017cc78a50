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

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/token"
)

// Bootstrap ensures the seed SU:ADMIN account exists. It is idempotent:
// when the account already exists nothing changes, including its password.
func Bootstrap(ctx context.Context, repo UserRepository, hasher *PasswordHasher, email, password string) error {
	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return fmt.Errorf("invalid root account email %q", email)
	}

	if _, err := repo.GetByEmail(ctx, email); err == nil {
		slog.InfoContext(ctx, "root account already provisioned", slog.String("email", email))
		return nil
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash root password: %w", err)
	}

	user := &User{
		Email: email,
		Profile: Profile{
			FirstName: "Root",
			LastName:  "Admin",
			Avatar:    avatarURL("Root"),
		},
		PasswordHash: hash,
		Account: Account{
			Context:      authz.Context{Type: authz.ContextSuper, Role: authz.RoleSuperAdmin},
			PIN:          randomPIN(),
			Notification: Notification{Push: token.Generate(36), Email: true},
		},
		AgreeTerms: true,
		CreatedAt:  time.Now().UnixMilli(),
	}

	if err := repo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create root account: %w", err)
	}

	slog.InfoContext(ctx, "root account provisioned", slog.String("email", email))
	return nil
}
