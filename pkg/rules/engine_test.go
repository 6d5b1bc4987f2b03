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

package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/poolguard/pkg/models"
)

// noon keeps the night-dependent rules out of the way unless a test wants them.
var noon = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func normalized(cfg models.ThresholdConfig) models.ThresholdConfig {
	cfg.Normalize()
	return cfg
}

func intentFor(t *testing.T, intents []models.ActuatorIntent, actuatorID string) models.ActuatorIntent {
	t.Helper()

	for _, in := range intents {
		if in.ActuatorID == actuatorID {
			return in
		}
	}

	t.Fatalf("no intent for actuator %q in %v", actuatorID, intents)

	return models.ActuatorIntent{}
}

func TestEvaluateInRangeProducesNoCorrectiveIntents(t *testing.T) {
	engine := NewEngine()

	cfg := normalized(models.ThresholdConfig{
		PH:       &models.Range{Min: 7.2, Max: 7.8},
		Chlorine: &models.Range{Min: 1, Max: 3},
		ORP:      &models.Range{Min: 650, Max: 750},
	})

	snapshot := models.SensorSnapshot{
		CollectedAt: noon,
		PH:          models.Float(7.4),
		Chlorine:    models.Float(2),
		ORP:         models.Float(700),
	}

	assert.Empty(t, engine.Evaluate(snapshot, cfg))
}

func TestEvaluateExampleScenario(t *testing.T) {
	engine := NewEngine()

	cfg := normalized(models.ThresholdConfig{
		PH:                 &models.Range{Min: 7.2, Max: 7.8},
		DesiredTemperature: models.Float(28),
	})

	snapshot := models.SensorSnapshot{
		CollectedAt: noon,
		PH:          models.Float(6.9),
		Temperature: models.Float(30),
	}

	intents := engine.Evaluate(snapshot, cfg)
	require.Len(t, intents, 2)

	assert.Equal(t, models.ActuatorChlorinePump, intents[0].ActuatorID)
	assert.Equal(t, models.RelayOn, intents[0].Desired)
	assert.Equal(t, models.ActuatorPoolHeater, intents[1].ActuatorID)
	assert.Equal(t, models.RelayOff, intents[1].Desired)
}

func TestEvaluateHeaterDeadbandBoundary(t *testing.T) {
	engine := NewEngine()

	cfg := normalized(models.ThresholdConfig{
		DesiredTemperature: models.Float(28),
	})

	// Inside the deadband the heater holds.
	intents := engine.Evaluate(models.SensorSnapshot{
		CollectedAt: noon,
		Temperature: models.Float(29.9),
	}, cfg)
	assert.Empty(t, intents)

	// At exactly desired + deadband it disengages.
	intents = engine.Evaluate(models.SensorSnapshot{
		CollectedAt: noon,
		Temperature: models.Float(30),
	}, cfg)
	require.Len(t, intents, 1)
	assert.Equal(t, models.ActuatorPoolHeater, intents[0].ActuatorID)
	assert.Equal(t, models.RelayOff, intents[0].Desired)
}

func TestEvaluateAbsentReadingSuppressesOnlyDependentRules(t *testing.T) {
	engine := NewEngine()

	cfg := normalized(models.ThresholdConfig{
		PH:                 &models.Range{Min: 7.2, Max: 7.8},
		DesiredTemperature: models.Float(28),
	})

	// No pH reading this cycle; temperature still evaluates.
	snapshot := models.SensorSnapshot{
		CollectedAt: noon,
		Temperature: models.Float(20),
	}

	intents := engine.Evaluate(snapshot, cfg)
	require.Len(t, intents, 1)
	assert.Equal(t, models.ActuatorPoolHeater, intents[0].ActuatorID)
	assert.Equal(t, models.RelayOn, intents[0].Desired)
}

func TestEvaluateLastMatchingRuleWinsPerActuator(t *testing.T) {
	engine := NewEngine()

	cfg := normalized(models.ThresholdConfig{
		PH:       &models.Range{Min: 7.2, Max: 7.8},
		Chlorine: &models.Range{Min: 1, Max: 3},
	})

	// Low pH says pump on, high chlorine says pump off. The chlorine rule is
	// declared later, so it wins and only one intent is emitted.
	snapshot := models.SensorSnapshot{
		CollectedAt: noon,
		PH:          models.Float(6.9),
		Chlorine:    models.Float(4),
	}

	intents := engine.Evaluate(snapshot, cfg)
	require.Len(t, intents, 1)
	assert.Equal(t, models.ActuatorChlorinePump, intents[0].ActuatorID)
	assert.Equal(t, models.RelayOff, intents[0].Desired)
}

func TestEvaluateLevelPairNeverBothOn(t *testing.T) {
	engine := NewEngine()

	cfg := normalized(models.ThresholdConfig{
		WaterLevel: &models.Range{Min: 40, Max: 80},
	})

	tests := []struct {
		name      string
		level     float64
		wantIn    models.RelayState
		wantOut   models.RelayState
		wantCount int
	}{
		{name: "low fills", level: 30, wantIn: models.RelayOn, wantOut: models.RelayOff, wantCount: 2},
		{name: "high drains", level: 90, wantIn: models.RelayOff, wantOut: models.RelayOn, wantCount: 2},
		{name: "stable parks both", level: 60, wantIn: models.RelayOff, wantOut: models.RelayOff, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := models.SensorSnapshot{CollectedAt: noon, WaterLevel: models.Float(tt.level)}

			intents := engine.Evaluate(snapshot, cfg)
			require.Len(t, intents, tt.wantCount)

			in := intentFor(t, intents, models.ActuatorWaterIn)
			out := intentFor(t, intents, models.ActuatorWaterOut)
			assert.Equal(t, tt.wantIn, in.Desired)
			assert.Equal(t, tt.wantOut, out.Desired)
			assert.False(t, in.Desired.Engaged() && out.Desired.Engaged())
		})
	}
}

func TestEvaluateTurbidityRunsFilterAndVacuum(t *testing.T) {
	engine := NewEngine()

	cfg := normalized(models.ThresholdConfig{TurbidityMax: models.Float(50)})
	snapshot := models.SensorSnapshot{CollectedAt: noon, Turbidity: models.Float(60)}

	intents := engine.Evaluate(snapshot, cfg)
	require.Len(t, intents, 2)
	assert.Equal(t, models.RelayOn, intentFor(t, intents, models.ActuatorPoolFilter).Desired)
	assert.Equal(t, models.RelayOn, intentFor(t, intents, models.ActuatorPoolVacuum).Desired)
}

func TestEvaluatePoolCoverComposite(t *testing.T) {
	engine := NewEngine()
	cfg := normalized(models.ThresholdConfig{CoverEnabled: true})

	tests := []struct {
		name     string
		snapshot models.SensorSnapshot
		want     models.RelayState
	}{
		{
			name:     "night closes",
			snapshot: models.SensorSnapshot{CollectedAt: time.Date(2025, 6, 15, 22, 0, 0, 0, time.UTC)},
			want:     models.RelayClose,
		},
		{
			name:     "rainy forecast closes",
			snapshot: models.SensorSnapshot{CollectedAt: noon, WeatherForecast: "rainy"},
			want:     models.RelayClose,
		},
		{
			name:     "cold water closes",
			snapshot: models.SensorSnapshot{CollectedAt: noon, Temperature: models.Float(10)},
			want:     models.RelayClose,
		},
		{
			name:     "favorable conditions open",
			snapshot: models.SensorSnapshot{CollectedAt: noon, Temperature: models.Float(25)},
			want:     models.RelayOpen,
		},
		{
			name:     "absent temperature suppresses only the cold clause",
			snapshot: models.SensorSnapshot{CollectedAt: noon},
			want:     models.RelayOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := engine.Evaluate(tt.snapshot, cfg)
			require.Len(t, intents, 1, "composite rule must emit exactly one intent")
			assert.Equal(t, models.ActuatorPoolCover, intents[0].ActuatorID)
			assert.Equal(t, tt.want, intents[0].Desired)
		})
	}
}

func TestEvaluateLights(t *testing.T) {
	engine := NewEngine()
	cfg := normalized(models.ThresholdConfig{LightsEnabled: true})

	night := models.SensorSnapshot{CollectedAt: time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)}
	intents := engine.Evaluate(night, cfg)
	require.Len(t, intents, 1)
	assert.Equal(t, models.RelayOn, intents[0].Desired)

	cleaning := models.SensorSnapshot{CollectedAt: noon, PoolBeingCleaned: models.Bool(true)}
	intents = engine.Evaluate(cleaning, cfg)
	require.Len(t, intents, 1)
	assert.Equal(t, models.RelayOn, intents[0].Desired)

	day := models.SensorSnapshot{CollectedAt: noon}
	intents = engine.Evaluate(day, cfg)
	require.Len(t, intents, 1)
	assert.Equal(t, models.RelayOff, intents[0].Desired)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := NewEngine()

	cfg := normalized(models.ThresholdConfig{
		PH:                 &models.Range{Min: 7.2, Max: 7.8},
		Chlorine:           &models.Range{Min: 1, Max: 3},
		WaterLevel:         &models.Range{Min: 40, Max: 80},
		DesiredTemperature: models.Float(28),
	})

	snapshot := models.SensorSnapshot{
		CollectedAt: noon,
		PH:          models.Float(6.9),
		Chlorine:    models.Float(0.5),
		WaterLevel:  models.Float(30),
		Temperature: models.Float(20),
	}

	first := engine.Evaluate(snapshot, cfg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.Evaluate(snapshot, cfg))
	}
}
