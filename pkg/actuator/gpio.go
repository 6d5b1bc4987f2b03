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

package actuator

import (
	"context"
	"errors"
	"fmt"

	"github.com/carverauto/poolguard/pkg/logger"
)

// ErrUnknownRelay indicates a relay id with no configured pin.
var ErrUnknownRelay = errors.New("no pin configured for relay")

// PinWriter is the raw GPIO capability. Bus-level details live behind it.
type PinWriter interface {
	WritePin(pin int, high bool) error
}

// GPIODriver translates logical relay states to physical pin levels. The
// relay-id-to-pin mapping is configuration loaded at startup, and drive
// polarity is decided here and nowhere else: with ActiveLow boards a logical
// ON drives the pin low.
type GPIODriver struct {
	pins      map[string]int
	activeLow bool
	writer    PinWriter
	logger    logger.Logger
}

// NewGPIODriver creates a driver for the configured pin map.
func NewGPIODriver(writer PinWriter, pins map[string]int, activeLow bool, log logger.Logger) *GPIODriver {
	return &GPIODriver{
		pins:      pins,
		activeLow: activeLow,
		writer:    writer,
		logger:    log,
	}
}

// Set implements Driver.
func (d *GPIODriver) Set(_ context.Context, relayID string, on bool) error {
	pin, ok := d.pins[relayID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRelay, relayID)
	}

	high := on
	if d.activeLow {
		high = !on
	}

	if err := d.writer.WritePin(pin, high); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}

	d.logger.Debug().Str("relay", relayID).Int("pin", pin).Bool("on", on).Msg("Relay driven")

	return nil
}

// ParkAll drives every configured relay to its off position. Called once at
// startup so the registry's all-off initial state matches the hardware.
func (d *GPIODriver) ParkAll(ctx context.Context) error {
	var errs error

	for relayID := range d.pins {
		if err := d.Set(ctx, relayID, false); err != nil {
			errs = errors.Join(errs, err)
		}
	}

	return errs
}
