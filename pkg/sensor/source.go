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

// Package sensor provides the sensor capability adapters and the snapshot
// builder that feeds the control loop. A missing or stale channel results in
// a nil snapshot field, never a zero value.
package sensor

import (
	"context"
	"sync"

	"github.com/carverauto/poolguard/pkg/models"
)

// Source reads the latest observation for a named channel. ok is false when
// the channel has no usable reading (never observed, or stale).
type Source interface {
	Read(ctx context.Context, channel string) (models.Reading, bool)
}

// StaticSource is an in-memory source for tests and bench rigs.
type StaticSource struct {
	mu       sync.RWMutex
	readings map[string]models.Reading
}

// NewStaticSource creates a source seeded with the given readings.
func NewStaticSource(readings map[string]models.Reading) *StaticSource {
	if readings == nil {
		readings = make(map[string]models.Reading)
	}

	return &StaticSource{readings: readings}
}

// Set stores or replaces a channel's reading.
func (s *StaticSource) Set(channel string, reading models.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readings[channel] = reading
}

// Clear removes a channel's reading.
func (s *StaticSource) Clear(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.readings, channel)
}

// Read implements Source.
func (s *StaticSource) Read(_ context.Context, channel string) (models.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reading, ok := s.readings[channel]

	return reading, ok
}
