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

package sensor

import (
	"context"
	"time"

	"github.com/carverauto/poolguard/pkg/models"
)

// Channels maps snapshot fields to source channel names. Zero values fall
// back to the default channel names.
type Channels struct {
	PH               string `json:"ph,omitempty"`
	Temperature      string `json:"temperature,omitempty"`
	ORP              string `json:"orp,omitempty"`
	UV               string `json:"uv,omitempty"`
	Chlorine         string `json:"chlorine,omitempty"`
	Turbidity        string `json:"turbidity,omitempty"`
	WaterLevel       string `json:"water_level,omitempty"`
	PoolTankLevel    string `json:"pool_tank_level,omitempty"`
	Motion           string `json:"motion,omitempty"`
	PoolBeingCleaned string `json:"pool_being_cleaned,omitempty"`
}

func (c *Channels) applyDefaults() {
	defaults := map[*string]string{
		&c.PH:               "ph",
		&c.Temperature:      "temperature",
		&c.ORP:              "orp",
		&c.UV:               "uv",
		&c.Chlorine:         "chlorine",
		&c.Turbidity:        "turbidity",
		&c.WaterLevel:       "water_level",
		&c.PoolTankLevel:    "pool_tank_level",
		&c.Motion:           "motion",
		&c.PoolBeingCleaned: "pool_being_cleaned",
	}

	for field, name := range defaults {
		if *field == "" {
			*field = name
		}
	}
}

// Builder assembles one immutable snapshot per control cycle from a source.
type Builder struct {
	source   Source
	channels Channels
}

// NewBuilder creates a snapshot builder over the given source.
func NewBuilder(source Source, channels Channels) *Builder {
	channels.applyDefaults()

	return &Builder{source: source, channels: channels}
}

// Build reads every configured channel once. Channels the source cannot
// answer leave their snapshot field nil. The forecast comes from the last
// known server settings, not from a local sensor.
func (b *Builder) Build(ctx context.Context, at time.Time, forecast string) *models.SensorSnapshot {
	snap := &models.SensorSnapshot{
		CollectedAt:     at,
		WeatherForecast: forecast,
	}

	snap.PH = b.numeric(ctx, b.channels.PH)
	snap.Temperature = b.numeric(ctx, b.channels.Temperature)
	snap.ORP = b.numeric(ctx, b.channels.ORP)
	snap.UV = b.numeric(ctx, b.channels.UV)
	snap.Chlorine = b.numeric(ctx, b.channels.Chlorine)
	snap.Turbidity = b.numeric(ctx, b.channels.Turbidity)
	snap.WaterLevel = b.numeric(ctx, b.channels.WaterLevel)
	snap.PoolTankLevel = b.numeric(ctx, b.channels.PoolTankLevel)
	snap.Motion = b.digital(ctx, b.channels.Motion)
	snap.PoolBeingCleaned = b.digital(ctx, b.channels.PoolBeingCleaned)

	return snap
}

func (b *Builder) numeric(ctx context.Context, channel string) *float64 {
	reading, ok := b.source.Read(ctx, channel)
	if !ok || reading.Value == nil {
		return nil
	}

	return reading.Value
}

func (b *Builder) digital(ctx context.Context, channel string) *bool {
	reading, ok := b.source.Read(ctx, channel)
	if !ok || reading.State == nil {
		return nil
	}

	return reading.State
}
