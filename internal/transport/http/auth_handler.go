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

	"github.com/pharmatrix/phx-cloud/internal/authz"
	"github.com/pharmatrix/phx-cloud/internal/identity"
	"github.com/pharmatrix/phx-cloud/internal/observability/logger"
)

// SignupRequest is the self-registration payload.
type SignupRequest struct {
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	Role       string            `json:"role"`
	FirstName  string            `json:"firstname"`
	LastName   string            `json:"lastname"`
	Location   identity.Location `json:"location"`
	AgreeTerms bool              `json:"agree_terms"`
	Device     map[string]any    `json:"device,omitempty"`
}

// Signup handles account self-registration
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid request body")
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Unauthorized user role")
		return
	}

	user, err := h.identityService.Signup(r.Context(), identity.SignupInput{
		Email:      req.Email,
		Password:   req.Password,
		Role:       role,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Location:   req.Location,
		AgreeTerms: req.AgreeTerms,
		Device:     req.Device,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondFail(w, http.StatusConflict, "AUTH", codeInvalidRequest, "Account already exists")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid email address")
		case errors.Is(err, identity.ErrInvalidRole):
			respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Unauthorized user role")
		case errors.Is(err, identity.ErrInvalidPassword):
			respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid password")
		default:
			slog.ErrorContext(r.Context(), "signup failed", logger.Error(err), logger.Email(req.Email))
			respondFail(w, http.StatusInternalServerError, "AUTH", codeInternalError, "Failed to create account")
		}
		return
	}

	respondOK(w, "AUTH", "SIGNUP", "Verification code sent", map[string]any{
		"email": user.Email,
	})
}

// CredentialsRequest carries email/password sign-in credentials.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signin authenticates and hands out a fresh bearer credential
func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid request body")
		return
	}

	ctoken, err := h.identityService.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrVerificationRequired):
			respondFail(w, http.StatusForbidden, "AUTH", codeInvalidRequest, "Email verification required")
		case errors.Is(err, identity.ErrUserNotFound), errors.Is(err, identity.ErrInvalidPassword):
			respondFail(w, http.StatusUnauthorized, "AUTH", codeInvalidRequest, "Invalid credentials")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid email address")
		default:
			slog.ErrorContext(r.Context(), "signin failed", logger.Error(err), logger.Email(req.Email))
			respondFail(w, http.StatusInternalServerError, "AUTH", codeInternalError, "Failed to sign in")
		}
		return
	}

	respondOK(w, "AUTH", "CONNECTED", "", map[string]any{"ctoken": ctoken})
}

// VerifyEmailRequest carries the emailed verification code.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  int    `json:"code"`
}

// VerifyEmail confirms the signup code and signs the user in
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid request body")
		return
	}

	ctoken, err := h.identityService.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCode):
			respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Verification code is invalid or has expired")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid email address")
		default:
			slog.ErrorContext(r.Context(), "email verification failed", logger.Error(err), logger.Email(req.Email))
			respondFail(w, http.StatusInternalServerError, "AUTH", codeInternalError, "Failed to verify email")
		}
		return
	}

	respondOK(w, "AUTH", "CONNECTED", "Email verified", map[string]any{"ctoken": ctoken})
}

// ResendRequest names the account awaiting verification.
type ResendRequest struct {
	Email string `json:"email"`
}

// ResendVerification re-sends the verification code with throttling
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid request body")
		return
	}

	delay, onHold, err := h.identityService.ResendVerification(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserNotFound), errors.Is(err, identity.ErrNoVerification):
			respondFail(w, http.StatusNotFound, "AUTH", codeNotFound, "No pending verification")
		default:
			slog.ErrorContext(r.Context(), "resend verification failed", logger.Error(err), logger.Email(req.Email))
			respondFail(w, http.StatusInternalServerError, "AUTH", codeInternalError, "Failed to resend code")
		}
		return
	}

	code, message := "PVC_EMAIL", "Verification code sent"
	if onHold {
		code, message = "RESENT_EMAIL_ONHOLD", "Resend on hold"
	}
	respondOK(w, "AUTH", code, message, map[string]any{
		"on_hold": onHold,
		"delay":   delay,
	})
}

// Me returns the caller's own account
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := GetCaller(r.Context())
	respondOK(w, "ACCOUNT", "RETRIEVED", "", map[string]any{"user": user})
}

// Signout drops the caller's connection
func (h *Handler) Signout(w http.ResponseWriter, r *http.Request) {
	user := GetCaller(r.Context())
	if err := h.identityService.Signout(r.Context(), user); err != nil {
		slog.ErrorContext(r.Context(), "signout failed", logger.Error(err), logger.Email(user.Email))
		respondFail(w, http.StatusInternalServerError, "AUTH", codeInternalError, "Failed to sign out")
		return
	}
	respondOK(w, "AUTH", "DISCONNECTED", "Signed out", nil)
}

// ResetLinkRequest asks for a password-reset email.
type ResetLinkRequest struct {
	Email  string `json:"email"`
	Origin string `json:"origin"`
}

// RequestPasswordReset mails a reset link
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetLinkRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid request body")
		return
	}

	err := h.identityService.RequestPasswordReset(r.Context(), req.Email, req.Origin)
	if err != nil && !errors.Is(err, identity.ErrUserNotFound) {
		if errors.Is(err, identity.ErrInvalidEmail) {
			respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid email address")
			return
		}
		slog.ErrorContext(r.Context(), "reset request failed", logger.Error(err), logger.Email(req.Email))
		respondFail(w, http.StatusInternalServerError, "AUTH", codeInternalError, "Failed to request reset")
		return
	}

	// Unknown accounts get the same answer as known ones.
	respondOK(w, "AUTH", "RESET_URL_SENT", "If the account exists, a reset link has been sent", nil)
}

// ResetPasswordRequest carries the reset link token and the new password.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword applies a reset grant
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid request body")
		return
	}

	if err := h.identityService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		switch {
		case errors.Is(err, identity.ErrResetInvalid):
			respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Reset token is invalid or has expired")
		case errors.Is(err, identity.ErrInvalidPassword):
			respondFail(w, http.StatusBadRequest, "AUTH", codeInvalidRequest, "Invalid password")
		default:
			slog.ErrorContext(r.Context(), "password reset failed", logger.Error(err))
			respondFail(w, http.StatusInternalServerError, "AUTH", codeInternalError, "Failed to reset password")
		}
		return
	}

	respondOK(w, "AUTH", "PASSWORD_RESET", "Password updated", nil)
}

// CloseAccount deletes the caller's own account
func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	user := GetCaller(r.Context())
	if err := h.identityService.CloseAccount(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, identity.ErrRootAccount):
			respondFail(w, http.StatusForbidden, "AUTH", codeInvalidRequest, "Root account cannot be closed")
		default:
			slog.ErrorContext(r.Context(), "close account failed", logger.Error(err), logger.Email(user.Email))
			respondFail(w, http.StatusInternalServerError, "AUTH", codeInternalError, "Failed to close account")
		}
		return
	}
	respondOK(w, "ACCOUNT", "CLOSED", "Account closed", nil)
}
