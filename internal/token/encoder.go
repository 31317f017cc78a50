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

// Package token provides the opaque token primitive shared by session,
// invitation and password-reset flows: a small JSON payload signed into an
// HS256 compact token. Decoding fails closed on any tampering; expiry is a
// domain concern and is checked against stored records, not inside the
// token itself.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pharmatrix/phx-cloud/internal/authz"
)

// ErrInvalidToken is returned for malformed, tampered or foreign tokens.
var ErrInvalidToken = errors.New("invalid token")

// ConnectionClaims bind a signed-in user's email to their live connection
// token. This is the bearer credential resolved on every request.
type ConnectionClaims struct {
	Email string `json:"email"`
	Token string `json:"token"`
	jwt.RegisteredClaims
}

// InvitationClaims prove a pending (context, email) grant.
type InvitationClaims struct {
	Context authz.Context `json:"context"`
	Email   string        `json:"email"`
	jwt.RegisteredClaims
}

// ResetClaims carry a password-reset grant.
type ResetClaims struct {
	Email  string `json:"email"`
	VToken string `json:"vtoken"`
	jwt.RegisteredClaims
}

// Encoder signs and verifies opaque tokens with a shared secret.
type Encoder struct {
	secret []byte
}

// NewEncoder creates an encoder from the configured signing secret.
func NewEncoder(secret string) *Encoder {
	return &Encoder{secret: []byte(secret)}
}

func (e *Encoder) encode(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (e *Encoder) decode(raw string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return e.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

// EncodeConnection produces the bearer credential handed out at sign-in.
func (e *Encoder) EncodeConnection(email, connectionToken string) (string, error) {
	return e.encode(ConnectionClaims{Email: email, Token: connectionToken})
}

// DecodeConnection verifies and unpacks a bearer credential.
func (e *Encoder) DecodeConnection(raw string) (ConnectionClaims, error) {
	var claims ConnectionClaims
	if err := e.decode(raw, &claims); err != nil {
		return ConnectionClaims{}, err
	}
	return claims, nil
}

// EncodeInvitation produces the token sent to an invitee out-of-band.
func (e *Encoder) EncodeInvitation(ctx authz.Context, email string) (string, error) {
	return e.encode(InvitationClaims{Context: ctx, Email: email})
}

// DecodeInvitation verifies and unpacks an invitation token.
func (e *Encoder) DecodeInvitation(raw string) (InvitationClaims, error) {
	var claims InvitationClaims
	if err := e.decode(raw, &claims); err != nil {
		return InvitationClaims{}, err
	}
	return claims, nil
}

// EncodeReset produces the token embedded in a password-reset link.
func (e *Encoder) EncodeReset(email, vtoken string) (string, error) {
	return e.encode(ResetClaims{Email: email, VToken: vtoken})
}

// DecodeReset verifies and unpacks a password-reset token.
func (e *Encoder) DecodeReset(raw string) (ResetClaims, error) {
	var claims ResetClaims
	if err := e.decode(raw, &claims); err != nil {
		return ResetClaims{}, err
	}
	return claims, nil
}

// Generate returns n bytes of cryptographic randomness as a URL-safe
// string. Used for connection tokens and reset vtokens.
func Generate(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("token: rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
