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
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates an intent carried an unrecognized relay state.
	ErrInvalidState = errors.New("invalid relay state")
)

// DriveError wraps a failure from the physical driver. The registry surfaces
// it unmodified so the loop can retry next cycle; local state is never
// advanced past a failed drive.
type DriveError struct {
	ActuatorID string
	Err        error
}

func (e *DriveError) Error() string {
	return fmt.Sprintf("drive %s: %v", e.ActuatorID, e.Err)
}

func (e *DriveError) Unwrap() error {
	return e.Err
}
