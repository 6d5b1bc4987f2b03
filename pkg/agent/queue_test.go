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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
)

func TestCommandQueueDrainPreservesOrder(t *testing.T) {
	q := NewCommandQueue(4, logger.NewTestLogger())

	for i := 1; i <= 3; i++ {
		require.True(t, q.Enqueue(models.Command{
			ID:         fmt.Sprintf("cmd-%d", i),
			ActuatorID: models.ActuatorPoolHeater,
			State:      models.RelayOn,
		}))
	}

	commands := q.Drain()
	require.Len(t, commands, 3)
	assert.Equal(t, "cmd-1", commands[0].ID)
	assert.Equal(t, "cmd-3", commands[2].ID)

	assert.Empty(t, q.Drain(), "second drain should find nothing")
}

func TestCommandQueueDropsWhenFull(t *testing.T) {
	q := NewCommandQueue(2, logger.NewTestLogger())

	assert.True(t, q.Enqueue(models.Command{ID: "a"}))
	assert.True(t, q.Enqueue(models.Command{ID: "b"}))
	assert.False(t, q.Enqueue(models.Command{ID: "c"}))

	commands := q.Drain()
	require.Len(t, commands, 2)
	assert.Equal(t, "a", commands[0].ID)
	assert.Equal(t, "b", commands[1].ID)
}
