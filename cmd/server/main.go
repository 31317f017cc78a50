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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pharmatrix/phx-cloud/internal/audit"
	"github.com/pharmatrix/phx-cloud/internal/config"
	"github.com/pharmatrix/phx-cloud/internal/identity"
	"github.com/pharmatrix/phx-cloud/internal/invite"
	"github.com/pharmatrix/phx-cloud/internal/notify"
	"github.com/pharmatrix/phx-cloud/internal/observability/logger"
	"github.com/pharmatrix/phx-cloud/internal/observability/metrics"
	"github.com/pharmatrix/phx-cloud/internal/observability/tracing"
	"github.com/pharmatrix/phx-cloud/internal/store/postgres"
	"github.com/pharmatrix/phx-cloud/internal/subscription"
	"github.com/pharmatrix/phx-cloud/internal/tenant"
	"github.com/pharmatrix/phx-cloud/internal/token"
	transportHTTP "github.com/pharmatrix/phx-cloud/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting phx-cloud platform")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	branchRepo := postgres.NewBranchRepository(db)
	invitationRepo := postgres.NewInvitationRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	activityRepo := postgres.NewActivityRepository(db)

	// Initialize helpers
	auditLogger := audit.NewStoreLogger(activityRepo)
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	encoder := token.NewEncoder(cfg.Token.Secret)
	mailer := notify.LogMailer{}
	notifier := notify.LogNotifier{}

	// Initialize services
	identityService := identity.NewService(
		userRepo,
		passwordHasher,
		encoder,
		mailer,
		auditLogger,
		cfg.Bootstrap.RootEmail,
	)
	tenantService := tenant.NewService(tenantRepo, branchRepo, userRepo, auditLogger)
	inviteService := invite.NewService(
		invitationRepo,
		userRepo,
		tenantRepo,
		encoder,
		mailer,
		auditLogger,
	)
	subscriptionService := subscription.NewService(subscriptionRepo, auditLogger)

	// Seed the root SU:ADMIN account (ENV driven, idempotent)
	if cfg.Bootstrap.RootEmail != "" && cfg.Bootstrap.RootPassword != "" {
		if err := identity.Bootstrap(ctx, userRepo, passwordHasher, cfg.Bootstrap.RootEmail, cfg.Bootstrap.RootPassword); err != nil {
			slog.Error("bootstrap failed", logger.Error(err))
			os.Exit(1)
		}
	}

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		identityService,
		tenantService,
		inviteService,
		subscriptionService,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the subscription sweeper
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := subscription.NewSweeper(subscriptionRepo, notifier, auditLogger, meter)
	go sweeper.Run(sweepCtx)

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopSweeper()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
