/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "time"

// Token is the pair of credentials issued by the server's auth endpoints.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past (or within margin of) its
// expiry at the given instant.
func (t *Token) Expired(now time.Time, margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}

	if t.ExpiresAt.IsZero() {
		return false
	}

	return !now.Add(margin).Before(t.ExpiresAt)
}
