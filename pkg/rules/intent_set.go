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

import "github.com/carverauto/poolguard/pkg/models"

// intentSet accumulates intents keyed by actuator. Later writes to the same
// actuator replace earlier ones in place, so the output order is the order in
// which actuators were first touched and each actuator appears once.
type intentSet struct {
	order []string
	byID  map[string]models.ActuatorIntent
}

func newIntentSet() *intentSet {
	return &intentSet{byID: make(map[string]models.ActuatorIntent)}
}

func (s *intentSet) add(actuatorID string, desired models.RelayState, reason string) {
	if _, seen := s.byID[actuatorID]; !seen {
		s.order = append(s.order, actuatorID)
	}

	s.byID[actuatorID] = models.ActuatorIntent{
		ActuatorID: actuatorID,
		Desired:    desired,
		Reason:     reason,
	}
}

func (s *intentSet) intents() []models.ActuatorIntent {
	if len(s.order) == 0 {
		return nil
	}

	out := make([]models.ActuatorIntent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}

	return out
}
