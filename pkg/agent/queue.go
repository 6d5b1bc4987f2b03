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

package agent

import (
	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
)

const defaultQueueCap = 64

// CommandQueue buffers pushed actuator commands between the listener
// goroutine and the control loop. The loop is the only consumer; commands
// are drained at the diff/apply step, never applied from the listener.
type CommandQueue struct {
	ch     chan models.Command
	logger logger.Logger
}

// NewCommandQueue creates a bounded queue.
func NewCommandQueue(capacity int, log logger.Logger) *CommandQueue {
	if capacity <= 0 {
		capacity = defaultQueueCap
	}

	return &CommandQueue{
		ch:     make(chan models.Command, capacity),
		logger: log,
	}
}

// Enqueue adds a command. A full queue drops the command with a warning;
// the server re-issues unconfirmed commands through desired state.
func (q *CommandQueue) Enqueue(cmd models.Command) bool {
	select {
	case q.ch <- cmd:
		return true
	default:
		q.logger.Warn().Str("command_id", cmd.ID).Str("actuator_id", cmd.ActuatorID).
			Msg("Command queue full, dropping command")

		return false
	}
}

// Drain returns all queued commands without blocking.
func (q *CommandQueue) Drain() []models.Command {
	var commands []models.Command

	for {
		select {
		case cmd := <-q.ch:
			commands = append(commands, cmd)
		default:
			return commands
		}
	}
}
