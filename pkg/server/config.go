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

package server

import (
	"strings"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// Config holds the connection settings for the remote authority.
type Config struct {
	BaseURL      string        `json:"base_url"`
	DeviceSerial string        `json:"device_serial"`
	SecretKey    string        `json:"secret_key"`
	Timeout      time.Duration `json:"timeout,omitempty"`
}

// Validate checks the required connection settings.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errMissingBaseURL
	}

	if c.DeviceSerial == "" {
		return errMissingSerial
	}

	if c.SecretKey == "" {
		return errMissingSecret
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultRequestTimeout
	}

	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	return nil
}
