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

// DeviceSettings is the operator configuration the server returns from the
// user-and-settings endpoint. Refreshed periodically; the last good copy is
// kept when the server is unreachable.
type DeviceSettings struct {
	Thresholds *ThresholdConfig `json:"settings"`

	// WeatherForecast is the server-side forecast for the pool's location,
	// folded into snapshots for the cover rule. Empty means unknown.
	WeatherForecast string `json:"weather_forecast,omitempty"`

	// CycleIntervalSeconds overrides the control loop interval when > 0.
	CycleIntervalSeconds int `json:"cycle_interval_seconds,omitempty"`
}

// Normalize fills defaults on the nested threshold config.
func (s *DeviceSettings) Normalize() {
	if s.Thresholds == nil {
		s.Thresholds = &ThresholdConfig{}
	}

	s.Thresholds.Normalize()
}
