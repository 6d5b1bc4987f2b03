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

// Package session owns the device's authentication credential lifecycle:
// login, refresh-on-expiry, and the bounded 401 retry contract. The state
// machine is Unauthenticated -> Authenticated -> Expired -> Authenticated
// (refreshed); Failed is terminal and reached only when login itself fails.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
)

// ErrUnrecoverable means refresh and re-login both failed. Callers must stop
// issuing authenticated calls; the local control loop may continue in
// rule-only mode.
var ErrUnrecoverable = errors.New("authentication unrecoverable")

// State is the manager's lifecycle state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateFailed          State = "failed"
)

const defaultExpiryMargin = 30 * time.Second

// Authenticator performs the unauthenticated credential exchanges against
// the server. Implementations absorb transient network failures with their
// own bounded retries; an error here means the step failed for good.
type Authenticator interface {
	Login(ctx context.Context) (*models.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Token, error)
}

// TokenStore persists the token pair across process restarts. LoadToken
// returns (nil, nil) when nothing is stored.
type TokenStore interface {
	SaveToken(ctx context.Context, token *models.Token) error
	LoadToken(ctx context.Context) (*models.Token, error)
}

// Config carries the device identity placed on every request.
type Config struct {
	DeviceSerial string        `json:"device_serial"`
	ExpiryMargin time.Duration `json:"expiry_margin,omitempty"`
}

// Manager owns the Session. Tokens are refreshed in place and never read by
// other components directly.
type Manager struct {
	mu     sync.Mutex
	auth   Authenticator
	store  TokenStore
	logger logger.Logger

	serial string
	margin time.Duration
	token  *models.Token
	state  State
	now    func() time.Time
}

// NewManager creates a session manager, restoring a persisted token pair if
// the store holds one.
func NewManager(ctx context.Context, cfg Config, auth Authenticator, store TokenStore, log logger.Logger) (*Manager, error) {
	margin := cfg.ExpiryMargin
	if margin <= 0 {
		margin = defaultExpiryMargin
	}

	m := &Manager{
		auth:   auth,
		store:  store,
		logger: log,
		serial: cfg.DeviceSerial,
		margin: margin,
		state:  StateUnauthenticated,
		now:    time.Now,
	}

	if store != nil {
		token, err := store.LoadToken(ctx)
		if err != nil {
			return nil, err
		}

		if token != nil {
			m.token = token
			m.state = StateAuthenticated
			log.Info().Time("expires_at", token.ExpiresAt).Msg("Session restored from store")
		}
	}

	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Headers returns the identity and bearer headers for an authenticated
// request. An expired token is transparently refreshed once; a failed
// refresh falls back to one full re-login; if that also fails the manager
// enters its terminal Failed state and returns ErrUnrecoverable.
func (m *Manager) Headers(ctx context.Context) (http.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateFailed {
		return nil, ErrUnrecoverable
	}

	if err := m.ensureTokenLocked(ctx); err != nil {
		return nil, err
	}

	h := make(http.Header)
	h.Set("Authorization", "Bearer "+m.token.AccessToken)
	h.Set("x-serial-number", m.serial)

	return h, nil
}

// Invalidate discards the current access token. The caller contract for a
// 401 response is: Invalidate, retry the original request exactly once via
// Headers, and treat a second 401 as unrecoverable.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil {
		m.token.AccessToken = ""
	}

	if m.state == StateAuthenticated {
		m.state = StateExpired
	}

	m.logger.Debug().Msg("Session invalidated")
}

func (m *Manager) ensureTokenLocked(ctx context.Context) error {
	if m.token != nil && !m.token.Expired(m.now(), m.margin) {
		return nil
	}

	if m.token != nil {
		m.state = StateExpired
	}

	// Refresh once, when there is something to refresh with.
	if m.token != nil && m.token.RefreshToken != "" {
		token, err := m.auth.Refresh(ctx, m.token.RefreshToken)
		if err == nil {
			m.adoptTokenLocked(ctx, token)
			m.logger.Debug().Msg("Session refreshed")

			return nil
		}

		m.logger.Warn().Err(err).Msg("Token refresh failed, attempting re-login")
	}

	// Full re-login once.
	token, err := m.auth.Login(ctx)
	if err != nil {
		m.state = StateFailed
		m.logger.Error().Err(err).Msg("Login failed; session unrecoverable")

		return errors.Join(ErrUnrecoverable, err)
	}

	m.adoptTokenLocked(ctx, token)
	m.logger.Info().Time("expires_at", m.token.ExpiresAt).Msg("Session established")

	return nil
}

func (m *Manager) adoptTokenLocked(ctx context.Context, token *models.Token) {
	if token.ExpiresAt.IsZero() {
		token.ExpiresAt = expiryFromJWT(token.AccessToken)
	}

	m.token = token
	m.state = StateAuthenticated

	if m.store != nil {
		if err := m.store.SaveToken(ctx, token); err != nil {
			m.logger.Error().Err(err).Msg("Failed to persist token pair")
		}
	}
}

// expiryFromJWT pulls the exp claim out of the access token without
// verifying the signature; the device only needs the timestamp, the server
// remains the authority on validity.
func expiryFromJWT(accessToken string) time.Time {
	claims := jwt.RegisteredClaims{}

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}

	if claims.ExpiresAt == nil {
		return time.Time{}
	}

	return claims.ExpiresAt.Time
}
