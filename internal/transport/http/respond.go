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
	"encoding/json"
	"net/http"
)

// Error codes carried in the envelope status, namespaced per surface as
// SCOPE::CODE (e.g. INVITATION::INVALID_REQUEST).
const (
	codeUnauthenticated = "UNAUTHENTICATED"
	codeDisconnected    = "DISCONNECTED"
	codeUnauthorized    = "UNAUTHORIZED"
	codeNotFound        = "NOT_FOUND"
	codeInvalidRequest  = "INVALID_REQUEST"
	codeInternalError   = "INTERNAL_ERROR"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondOK writes a success envelope with an inline payload. code names
// the operation outcome (CONNECTED, REGISTERED, SENT, ...).
func respondOK(w http.ResponseWriter, scope, code, message string, payload map[string]any) {
	body := map[string]any{
		"error":  false,
		"status": scope + "::" + code,
	}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}
	respondJSON(w, http.StatusOK, body)
}

// respondFail writes an error envelope.
func respondFail(w http.ResponseWriter, httpStatus int, scope, code, message string) {
	respondJSON(w, httpStatus, map[string]any{
		"error":   true,
		"status":  scope + "::" + code,
		"message": message,
	})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
