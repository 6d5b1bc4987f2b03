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

// Package rules maps a sensor snapshot plus configured thresholds to desired
// actuator actions. Evaluation is pure: no I/O, no clock reads, no side
// effects, and it never fails. Absent readings suppress only the rules that
// depend on them.
package rules

import (
	"fmt"

	"github.com/carverauto/poolguard/pkg/models"
)

// Engine evaluates the built-in rule set. Rules run in declaration order;
// when two rules target the same actuator in one cycle, the last matching
// rule wins, so the output never contains both ON and OFF for one actuator.
type Engine struct{}

// NewEngine creates a rule engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate produces at most one intent per actuator for the given snapshot.
func (*Engine) Evaluate(snapshot models.SensorSnapshot, cfg models.ThresholdConfig) []models.ActuatorIntent {
	out := newIntentSet()

	evalRange(out, snapshot.PH, cfg.PH, models.ActuatorChlorinePump, "pH")
	evalRange(out, snapshot.ORP, cfg.ORP, models.ActuatorAlgicidePump, "ORP")
	evalRange(out, snapshot.Chlorine, cfg.Chlorine, models.ActuatorChlorinePump, "chlorine")
	evalTurbidity(out, snapshot, cfg)
	evalLevelPair(out, snapshot.WaterLevel, cfg.WaterLevel,
		models.ActuatorWaterIn, models.ActuatorWaterOut, "water level")
	evalLevelPair(out, snapshot.PoolTankLevel, cfg.PoolTankLevel,
		models.ActuatorPoolTankFill, models.ActuatorPoolTankDrain, "pool tank level")
	evalHeater(out, snapshot, cfg)
	evalPoolCover(out, snapshot, cfg)
	evalLights(out, snapshot, cfg)

	return out.intents()
}

// evalRange applies a two-sided threshold test: below min the corrective
// actuator engages, above max it disengages, in range produces no intent.
func evalRange(out *intentSet, value *float64, r *models.Range, actuatorID, dimension string) {
	if value == nil || r == nil {
		return
	}

	switch {
	case *value < r.Min:
		out.add(actuatorID, models.RelayOn,
			fmt.Sprintf("%s low (%.2f < %.2f)", dimension, *value, r.Min))
	case *value > r.Max:
		out.add(actuatorID, models.RelayOff,
			fmt.Sprintf("%s high (%.2f > %.2f)", dimension, *value, r.Max))
	}
}

func evalTurbidity(out *intentSet, snapshot models.SensorSnapshot, cfg models.ThresholdConfig) {
	if snapshot.Turbidity == nil || cfg.TurbidityMax == nil {
		return
	}

	if *snapshot.Turbidity > *cfg.TurbidityMax {
		reason := fmt.Sprintf("turbidity high (%.2f > %.2f)", *snapshot.Turbidity, *cfg.TurbidityMax)
		out.add(models.ActuatorPoolFilter, models.RelayOn, reason)
		out.add(models.ActuatorPoolVacuum, models.RelayOn, reason)
	}
}

// evalLevelPair drives an opposing fill/drain relay pair. The pair is never
// both on: below min fills, above max drains, in range parks both off.
func evalLevelPair(out *intentSet, value *float64, r *models.Range, fillID, drainID, dimension string) {
	if value == nil || r == nil {
		return
	}

	switch {
	case *value < r.Min:
		out.add(fillID, models.RelayOn,
			fmt.Sprintf("%s low (%.2f < %.2f)", dimension, *value, r.Min))
		out.add(drainID, models.RelayOff, dimension+" low")
	case *value > r.Max:
		out.add(drainID, models.RelayOn,
			fmt.Sprintf("%s high (%.2f > %.2f)", dimension, *value, r.Max))
		out.add(fillID, models.RelayOff, dimension+" high")
	default:
		out.add(fillID, models.RelayOff, dimension+" stable")
		out.add(drainID, models.RelayOff, dimension+" stable")
	}
}

func evalHeater(out *intentSet, snapshot models.SensorSnapshot, cfg models.ThresholdConfig) {
	if snapshot.Temperature == nil || cfg.DesiredTemperature == nil {
		return
	}

	temp, want := *snapshot.Temperature, *cfg.DesiredTemperature

	switch {
	case temp < want:
		out.add(models.ActuatorPoolHeater, models.RelayOn,
			fmt.Sprintf("temperature low (%.1f < %.1f)", temp, want))
	case temp >= want+cfg.TemperatureDeadband:
		out.add(models.ActuatorPoolHeater, models.RelayOff,
			fmt.Sprintf("temperature high (%.1f >= %.1f)", temp, want+cfg.TemperatureDeadband))
	}
}

// evalPoolCover is the composite rule: the cover closes at night, on a rainy
// forecast, or when the water is colder than the configured floor. It emits
// exactly one intent per cycle when enabled. An absent temperature reading
// suppresses only the temperature clause.
func evalPoolCover(out *intentSet, snapshot models.SensorSnapshot, cfg models.ThresholdConfig) {
	if !cfg.CoverEnabled {
		return
	}

	night := isNight(snapshot.CollectedAt.Hour(), cfg.NightStartHour, cfg.NightEndHour)
	rainy := snapshot.WeatherForecast == "rainy"
	cold := snapshot.Temperature != nil && *snapshot.Temperature < cfg.CoverTempFloor

	switch {
	case night:
		out.add(models.ActuatorPoolCover, models.RelayClose, "night time")
	case rainy:
		out.add(models.ActuatorPoolCover, models.RelayClose, "rainy forecast")
	case cold:
		out.add(models.ActuatorPoolCover, models.RelayClose,
			fmt.Sprintf("temperature below cover floor (%.1f < %.1f)", *snapshot.Temperature, cfg.CoverTempFloor))
	default:
		out.add(models.ActuatorPoolCover, models.RelayOpen, "conditions favorable")
	}
}

func evalLights(out *intentSet, snapshot models.SensorSnapshot, cfg models.ThresholdConfig) {
	if !cfg.LightsEnabled {
		return
	}

	night := isNight(snapshot.CollectedAt.Hour(), cfg.NightStartHour, cfg.NightEndHour)
	cleaning := snapshot.PoolBeingCleaned != nil && *snapshot.PoolBeingCleaned

	if night || cleaning {
		out.add(models.ActuatorLEDLights, models.RelayOn, "night time or pool being cleaned")
	} else {
		out.add(models.ActuatorLEDLights, models.RelayOff, "daylight")
	}
}

// isNight uses the snapshot's collection hour, keeping the engine free of
// clock reads. The window may wrap midnight (e.g. 18..6).
func isNight(hour, startHour, endHour int) bool {
	if startHour <= endHour {
		return hour >= startHour && hour <= endHour
	}

	return hour >= startHour || hour <= endHour
}
