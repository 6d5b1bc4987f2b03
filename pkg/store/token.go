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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/poolguard/pkg/models"
)

// SaveToken upserts the single persisted token pair.
func (s *Store) SaveToken(ctx context.Context, token *models.Token) error {
	const q = `INSERT INTO session_tokens (id, access_token, refresh_token, expires_at)
        VALUES (1, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            access_token = excluded.access_token,
            refresh_token = excluded.refresh_token,
            expires_at = excluded.expires_at`

	expires := ""
	if !token.ExpiresAt.IsZero() {
		expires = token.ExpiresAt.UTC().Format(timeFormat)
	}

	if err := s.execContext(ctx, q, token.AccessToken, token.RefreshToken, expires); err != nil {
		return fmt.Errorf("failed to persist token pair: %w", err)
	}

	return nil
}

// LoadToken returns the persisted token pair, or (nil, nil) when none is
// stored.
func (s *Store) LoadToken(ctx context.Context) (*models.Token, error) {
	const q = `SELECT access_token, refresh_token, expires_at FROM session_tokens WHERE id = 1`

	var (
		token   models.Token
		expires string
	)

	err := s.db.QueryRowContext(ctx, q).Scan(&token.AccessToken, &token.RefreshToken, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load token pair: %w", err)
	}

	if expires != "" {
		token.ExpiresAt, err = time.Parse(timeFormat, expires)
		if err != nil {
			return nil, fmt.Errorf("failed to parse token expiry: %w", err)
		}
	}

	return &token, nil
}
