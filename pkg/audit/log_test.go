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

package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
)

func newTestLog(t *testing.T, bufferCap int) *Log {
	t.Helper()

	l, err := New(context.Background(), Config{BufferCap: bufferCap}, nil, logger.NewTestLogger())
	require.NoError(t, err)

	return l
}

func TestAppendChainsHashes(t *testing.T) {
	l := newTestLog(t, 0)

	first, err := l.Append(models.EventSensorSnapshot, map[string]float64{"ph": 7.4})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, models.GenesisHash, first.PrevHash)
	assert.Equal(t, first.ComputeHash(), first.Hash)

	second, err := l.Append(models.EventSensorSnapshot, map[string]float64{"ph": 7.5})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, first.Hash, second.PrevHash)
}

func TestVerifyChainDetectsOutOfBandMutation(t *testing.T) {
	l := newTestLog(t, 0)

	for i := 0; i < 5; i++ {
		_, err := l.Append(models.EventRuleDecision, map[string]int{"cycle": i})
		require.NoError(t, err)
	}

	require.True(t, l.VerifyChain())

	// Tamper with a payload behind the log's back.
	l.events[2].Payload = []byte(`{"cycle":99}`)

	assert.False(t, l.VerifyChain())
}

func TestVerifyChainDetectsReorder(t *testing.T) {
	l := newTestLog(t, 0)

	for i := 0; i < 4; i++ {
		_, err := l.Append(models.EventRuleDecision, map[string]int{"cycle": i})
		require.NoError(t, err)
	}

	l.events[1], l.events[2] = l.events[2], l.events[1]

	assert.False(t, l.VerifyChain())
}

func TestBufferCapShedsOnlyNonCritical(t *testing.T) {
	l := newTestLog(t, 3)

	// Critical events bypass the cap entirely.
	for i := 0; i < 4; i++ {
		_, err := l.Append(models.EventActuatorChange, map[string]int{"change": i})
		require.NoError(t, err)
	}

	assert.Equal(t, 4, l.Len())

	// A non-critical append at (or past) the cap is refused.
	_, err := l.Append(models.EventSensorSnapshot, nil)
	require.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, 4, l.Len(), "nothing is silently dropped")

	// The chain stays intact across the refusal.
	assert.True(t, l.VerifyChain())
}

func TestNextBatchReturnsOldestInOrder(t *testing.T) {
	l := newTestLog(t, 0)

	for i := 0; i < 10; i++ {
		_, err := l.Append(models.EventRuleDecision, map[string]int{"cycle": i})
		require.NoError(t, err)
	}

	batch := l.NextBatch(4)
	require.NotNil(t, batch)
	require.Len(t, batch.Events, 4)

	for i, e := range batch.Events {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}

	assert.Equal(t, uint64(4), batch.HighestSequence())
}

func TestNextBatchEmptyBufferReturnsNil(t *testing.T) {
	l := newTestLog(t, 0)
	assert.Nil(t, l.NextBatch(10))
}

func TestAcknowledgeRemovesOnlyConfirmedRange(t *testing.T) {
	l := newTestLog(t, 0)

	for i := 0; i < 6; i++ {
		_, err := l.Append(models.EventRuleDecision, map[string]int{"cycle": i})
		require.NoError(t, err)
	}

	l.Acknowledge(4)

	batch := l.NextBatch(10)
	require.NotNil(t, batch)

	for _, e := range batch.Events {
		assert.Greater(t, e.Sequence, uint64(4))
	}

	assert.Equal(t, 2, l.Len())
	assert.True(t, l.VerifyChain(), "chain within remaining buffer still verifies")
}

func TestAcknowledgeBeyondBufferClearsIt(t *testing.T) {
	l := newTestLog(t, 0)

	_, err := l.Append(models.EventRuleDecision, nil)
	require.NoError(t, err)

	l.Acknowledge(100)
	assert.Equal(t, 0, l.Len())

	// Sequence numbering keeps climbing after a full drain.
	e, err := l.Append(models.EventRuleDecision, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e.Sequence)
}

func TestChainContinuesAfterFullAcknowledge(t *testing.T) {
	l := newTestLog(t, 0)

	first, err := l.Append(models.EventRuleDecision, nil)
	require.NoError(t, err)

	l.Acknowledge(first.Sequence)
	require.Equal(t, 0, l.Len())

	second, err := l.Append(models.EventRuleDecision, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.PrevHash, "chain links across a drained buffer")
}

type memStore struct {
	events   []models.AuditEvent
	headSeq  uint64
	headHash string
}

func (m *memStore) AppendEvent(_ context.Context, event models.AuditEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) DeleteEventsUpTo(_ context.Context, sequence uint64) error {
	kept := m.events[:0]

	for _, e := range m.events {
		if e.Sequence > sequence {
			kept = append(kept, e)
		}
	}

	m.events = kept

	return nil
}

func (m *memStore) LoadEvents(_ context.Context) ([]models.AuditEvent, error) {
	return append([]models.AuditEvent(nil), m.events...), nil
}

func (m *memStore) SaveChainHead(_ context.Context, sequence uint64, hash string) error {
	m.headSeq, m.headHash = sequence, hash
	return nil
}

func (m *memStore) LoadChainHead(_ context.Context) (uint64, string, error) {
	return m.headSeq, m.headHash, nil
}

func TestChainContinuesAcrossRestart(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}

	l, err := New(ctx, Config{}, store, logger.NewTestLogger())
	require.NoError(t, err)

	first, err := l.Append(models.EventActuatorChange, map[string]string{"actuator_id": "heater"})
	require.NoError(t, err)

	l.Acknowledge(first.Sequence)

	restarted, err := New(ctx, Config{}, store, logger.NewTestLogger())
	require.NoError(t, err)

	second, err := restarted.Append(models.EventActuatorChange, map[string]string{"actuator_id": "heater"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, first.Hash, second.PrevHash)
}

func TestRestoreResumesUnsyncedBuffer(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}

	l, err := New(ctx, Config{}, store, logger.NewTestLogger())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.Append(models.EventRuleDecision, map[string]int{"cycle": i})
		require.NoError(t, err)
	}

	restarted, err := New(ctx, Config{}, store, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, restarted.Len())
	assert.True(t, restarted.VerifyChain())

	e, err := restarted.Append(models.EventRuleDecision, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), e.Sequence)
	assert.True(t, restarted.VerifyChain())
}

func TestAppendUnmarshalablePayloadStillAppends(t *testing.T) {
	l := newTestLog(t, 0)

	_, err := l.Append(models.EventCycleError, map[string]interface{}{"bad": make(chan int)})
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.VerifyChain())
}
