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

import "time"

// Command is an out-of-band actuator command pushed by the server. Commands
// are never applied directly; they are queued and drained at the start of the
// next cycle's diff/apply step so that a single goroutine owns all actuator
// mutation.
type Command struct {
	ID         string     `json:"id"`
	ActuatorID string     `json:"actuator_id"`
	State      RelayState `json:"state"`
	Source     string     `json:"source,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
}
