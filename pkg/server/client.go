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

// Package server provides the REST client for the remote authority. The
// client never holds state the server is authoritative for; every call is
// idempotent and carries the device identity headers.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
)

const (
	loginBackoffInitial = 1 * time.Second
	loginMaxElapsed     = 15 * time.Second
)

// Client talks to the pool-monitoring server's device API.
type Client struct {
	config     Config
	httpClient HTTPClient
	auth       AuthProvider
	logger     logger.Logger
}

// NewClient creates a client. The auth provider is attached afterwards with
// SetAuthProvider because the session manager needs the client for its
// login and refresh calls.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
	}, nil
}

// SetAuthProvider attaches the header source for authenticated calls.
func (c *Client) SetAuthProvider(auth AuthProvider) {
	c.auth = auth
}

// SetHTTPClient overrides the underlying HTTP client.
func (c *Client) SetHTTPClient(httpClient HTTPClient) {
	c.httpClient = httpClient
}

type loginRequest struct {
	SerialNumber string `json:"serial_number"`
	SecretKey    string `json:"secret_key"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges the device credentials for a token pair. Transient
// failures are retried with backoff inside a bounded window; an error means
// the server rejected the credentials or stayed unreachable for the whole
// window.
func (c *Client) Login(ctx context.Context) (*models.Token, error) {
	body := loginRequest{
		SerialNumber: c.config.DeviceSerial,
		SecretKey:    c.config.SecretKey,
	}

	operation := func() (*models.Token, error) {
		token := &models.Token{}

		if err := c.post(ctx, "/auth/login", nil, body, token); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return nil, backoff.Permanent(err)
			}

			return nil, err
		}

		return token, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = loginBackoffInitial

	token, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(loginMaxElapsed))
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	return token, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.Token, error) {
	token := &models.Token{}

	if err := c.post(ctx, "/auth/refresh", nil, refreshRequest{RefreshToken: refreshToken}, token); err != nil {
		return nil, fmt.Errorf("refresh failed: %w", err)
	}

	return token, nil
}

type actuatorStatesResponse struct {
	ActuatorStates models.DesiredState `json:"actuator_states"`
}

// FetchDesiredState retrieves the server's desired actuator states for this
// device. Desired state overrides rule intents for the same actuator.
func (c *Client) FetchDesiredState(ctx context.Context) (models.DesiredState, error) {
	var resp actuatorStatesResponse

	path := fmt.Sprintf("/api/devices/%s/actuator-states", c.config.DeviceSerial)
	if err := c.doAuthenticated(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch desired state: %w", err)
	}

	return resp.ActuatorStates, nil
}

// PushSensorData uploads one sensor snapshot.
func (c *Client) PushSensorData(ctx context.Context, snapshot *models.SensorSnapshot) error {
	if err := c.doAuthenticated(ctx, http.MethodPost, "/api/devices/sensor-data", snapshot, nil); err != nil {
		return fmt.Errorf("failed to push sensor data: %w", err)
	}

	return nil
}

type syncResponse struct {
	HighestSequence uint64 `json:"highest_sequence"`
}

// SyncAudit transmits one audit batch and returns the highest sequence the
// server confirmed persisting. Implements the audit publisher contract.
func (c *Client) SyncAudit(ctx context.Context, batch *models.SyncBatch) (uint64, error) {
	var resp syncResponse

	if batch.DeviceID == "" {
		batch.DeviceID = c.config.DeviceSerial
	}

	if err := c.doAuthenticated(ctx, http.MethodPost, "/api/devices/audit/sync", batch, &resp); err != nil {
		return 0, fmt.Errorf("audit sync failed: %w", err)
	}

	return resp.HighestSequence, nil
}

// FetchSettings retrieves the operator's threshold configuration, forecast,
// and loop interval override.
func (c *Client) FetchSettings(ctx context.Context) (*models.DeviceSettings, error) {
	settings := &models.DeviceSettings{}

	if err := c.doAuthenticated(ctx, http.MethodGet, "/api/devices/user-and-settings", nil, settings); err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	settings.Normalize()

	return settings, nil
}

type notificationRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Notify raises an operator notification.
func (c *Client) Notify(ctx context.Context, title, message string) error {
	body := notificationRequest{Title: title, Message: message}

	if err := c.doAuthenticated(ctx, http.MethodPost, "/api/notifications/create", body, nil); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// doAuthenticated runs one request with the session headers. On a 401 the
// session is invalidated and the request retried exactly once with fresh
// headers; a second 401 is surfaced to the caller.
func (c *Client) doAuthenticated(ctx context.Context, method, path string, body, out any) error {
	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return err
	}

	err = c.doRequest(ctx, method, path, headers, body, out)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	c.logger.Warn().Str("path", path).Msg("Request rejected with 401, re-authenticating")
	c.auth.Invalidate()

	headers, err = c.auth.Headers(ctx)
	if err != nil {
		return err
	}

	return c.doRequest(ctx, method, path, headers, body, out)
}

func (c *Client) post(ctx context.Context, path string, headers http.Header, body, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, headers, body, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, headers http.Header, body, out any) error {
	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}

		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return err
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	req.Header.Set("x-serial-number", c.config.DeviceSerial)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		bodyBytes, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("%w: %d, response: %s", ErrUnexpectedStatusCode,
			resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
