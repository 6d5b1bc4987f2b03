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

// Package actuator owns the authoritative state of every relay on the
// appliance and mediates all physical drive calls.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
)

// ErrUnregistered indicates an intent targeted an actuator the registry does
// not know. Reads of unknown actuators do not fail; writes do.
var ErrUnregistered = errors.New("actuator not registered")

// Registry is the exclusive owner of per-actuator state. It is not
// goroutine-safe: the control loop is the single writer, which keeps relay
// state and the audit sequence on one serialized timeline.
type Registry struct {
	driver Driver
	logger logger.Logger
	states map[string]models.ActuatorState
	now    func() time.Time
}

// NewRegistry creates a registry for the configured actuator set. Every
// actuator starts logically off; the drive layer is expected to have parked
// relays in their off position at GPIO init.
func NewRegistry(driver Driver, actuatorIDs []string, log logger.Logger) *Registry {
	states := make(map[string]models.ActuatorState, len(actuatorIDs))

	for _, id := range actuatorIDs {
		states[id] = models.ActuatorState{
			ActuatorID: id,
			State:      models.RelayOff,
			Registered: true,
		}
	}

	return &Registry{
		driver: driver,
		logger: log,
		states: states,
		now:    time.Now,
	}
}

// Current returns the known state of an actuator. Unknown ids return a
// zero-value unregistered state; that is a warning, never a failure.
func (r *Registry) Current(actuatorID string) models.ActuatorState {
	state, ok := r.states[actuatorID]
	if !ok {
		r.logger.Warn().Str("actuator", actuatorID).Msg("State requested for unregistered actuator")

		return models.ActuatorState{ActuatorID: actuatorID, Registered: false}
	}

	return state
}

// IDs returns the registered actuator ids in ascending order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Apply drives the actuator to the intent's desired state and then updates
// in-memory state. The physical write and the state update are one atomic
// step from the registry's perspective: on driver failure the state is left
// untouched and the error is surfaced. Applying an intent the actuator
// already satisfies makes no drive call and returns a no-op confirmation.
func (r *Registry) Apply(ctx context.Context, intent models.ActuatorIntent) (models.StateChange, error) {
	if !intent.Desired.Valid() {
		return models.StateChange{}, fmt.Errorf("%w: %q", ErrInvalidState, intent.Desired)
	}

	state, ok := r.states[intent.ActuatorID]
	if !ok {
		r.logger.Warn().Str("actuator", intent.ActuatorID).Msg("Intent for unregistered actuator dropped")

		return models.StateChange{}, fmt.Errorf("%w: %s", ErrUnregistered, intent.ActuatorID)
	}

	change := models.StateChange{
		ActuatorID: intent.ActuatorID,
		From:       state.State,
		To:         intent.Desired,
		Reason:     intent.Reason,
		At:         r.now(),
	}

	// Same energized position means no physical transition; only the logical
	// label may differ (ON vs OPEN vocabulary).
	if state.State.Engaged() == intent.Desired.Engaged() {
		if state.State != intent.Desired {
			state.State = intent.Desired
			r.states[intent.ActuatorID] = state
		}

		r.logger.Debug().
			Str("actuator", intent.ActuatorID).
			Str("state", string(intent.Desired)).
			Msg("Actuator already in desired state")

		return change, nil
	}

	if err := r.driver.Set(ctx, intent.ActuatorID, intent.Desired.Engaged()); err != nil {
		return models.StateChange{}, &DriveError{ActuatorID: intent.ActuatorID, Err: err}
	}

	state.State = intent.Desired
	state.ServerConfirmed = false
	state.LastChangedAt = change.At
	r.states[intent.ActuatorID] = state

	change.Applied = true

	r.logger.Info().
		Str("actuator", intent.ActuatorID).
		Str("from", string(change.From)).
		Str("to", string(change.To)).
		Str("reason", intent.Reason).
		Msg("Actuator state changed")

	return change, nil
}

// Reconcile aligns local state with a server-declared desired map. Actuators
// already consistent are skipped entirely (reconciliation re-derives truth
// from comparison each cycle; nothing carries forward). Application order is
// ascending actuator id so a given diff always replays identically. Failed
// drives are skipped and reported; the rest of the diff still applies.
func (r *Registry) Reconcile(ctx context.Context, desired models.DesiredState) ([]models.StateChange, error) {
	ids := make([]string, 0, len(desired))
	for id := range desired {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	var (
		changes []models.StateChange
		errs    error
	)

	for _, id := range ids {
		want := desired[id]

		state, ok := r.states[id]
		if !ok {
			r.logger.Warn().Str("actuator", id).Msg("Server desires state for unregistered actuator")
			continue
		}

		if state.State == want {
			// Consistent; mark the server's confirmation.
			state.ServerConfirmed = true
			r.states[id] = state

			continue
		}

		change, err := r.Apply(ctx, models.ActuatorIntent{
			ActuatorID: id,
			Desired:    want,
			Reason:     "server desired state",
		})
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		state = r.states[id]
		state.ServerConfirmed = true
		r.states[id] = state

		changes = append(changes, change)
	}

	return changes, errs
}

// MarkConfirmed records that the server acknowledged the actuator's state.
func (r *Registry) MarkConfirmed(actuatorID string) {
	state, ok := r.states[actuatorID]
	if !ok {
		return
	}

	state.ServerConfirmed = true
	r.states[actuatorID] = state
}
