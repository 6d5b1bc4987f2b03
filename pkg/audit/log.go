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

// Package audit maintains the appliance's tamper-evident event log: an
// append-only, hash-chained buffer of unacknowledged events that is flushed
// to the server in contiguous batches. This is a single device's local
// integrity check, not a distributed ledger.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
)

const defaultBufferCap = 1024

// Store is the durable persistence capability for the unsynced buffer. The
// in-memory buffer is authoritative; the store lets it survive restarts.
type Store interface {
	AppendEvent(ctx context.Context, event models.AuditEvent) error
	DeleteEventsUpTo(ctx context.Context, sequence uint64) error
	LoadEvents(ctx context.Context) ([]models.AuditEvent, error)
	SaveChainHead(ctx context.Context, sequence uint64, hash string) error
	LoadChainHead(ctx context.Context) (uint64, string, error)
}

// Config controls buffer behavior.
type Config struct {
	// BufferCap bounds the unsynced buffer. Non-critical appends are refused
	// at the cap; critical events always append.
	BufferCap int `json:"buffer_cap,omitempty"`
}

// Log is the append-only event buffer. Appends and acknowledgments happen on
// the control loop; the mutex covers startup verification and stats readers.
type Log struct {
	mu       sync.Mutex
	logger   logger.Logger
	store    Store
	events   []models.AuditEvent
	nextSeq  uint64
	lastHash string
	cap      int
	now      func() time.Time
}

// New creates an audit log, restoring any unsynced events from the store.
func New(ctx context.Context, cfg Config, store Store, log logger.Logger) (*Log, error) {
	bufferCap := cfg.BufferCap
	if bufferCap <= 0 {
		bufferCap = defaultBufferCap
	}

	l := &Log{
		logger:   log,
		store:    store,
		nextSeq:  1,
		lastHash: models.GenesisHash,
		cap:      bufferCap,
		now:      time.Now,
	}

	if store != nil {
		headSeq, headHash, err := store.LoadChainHead(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore chain head: %w", err)
		}

		if headSeq > 0 {
			l.nextSeq = headSeq + 1
			l.lastHash = headHash
		}

		events, err := store.LoadEvents(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore audit buffer: %w", err)
		}

		l.events = events
		if n := len(events); n > 0 {
			l.nextSeq = events[n-1].Sequence + 1
			l.lastHash = events[n-1].Hash
		}

		log.Info().Int("events", len(events)).Uint64("next_sequence", l.nextSeq).
			Msg("Audit buffer restored")
	}

	return l, nil
}

// Append adds an event to the chain. Non-critical appends are refused with
// ErrBufferFull while the unsynced buffer is at its cap; critical types
// (actuator changes, chain alarms) bypass the cap and always append.
func (l *Log) Append(eventType models.AuditEventType, payload interface{}) (models.AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) >= l.cap && !eventType.Critical() {
		return models.AuditEvent{}, fmt.Errorf("%w: %d unsynced events, shedding %q",
			ErrBufferFull, len(l.events), eventType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		// Appending must not fail over a payload; record the failure instead.
		raw, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}

	event := models.AuditEvent{
		Sequence:  l.nextSeq,
		Timestamp: l.now().UTC(),
		Type:      eventType,
		Payload:   raw,
		PrevHash:  l.lastHash,
	}
	event.Hash = event.ComputeHash()

	l.events = append(l.events, event)
	l.nextSeq++
	l.lastHash = event.Hash

	if l.store != nil {
		if err := l.store.AppendEvent(context.Background(), event); err != nil {
			l.logger.Error().Err(err).Uint64("sequence", event.Sequence).
				Msg("Failed to persist audit event")
		}
	}

	l.logger.Debug().
		Uint64("sequence", event.Sequence).
		Str("type", string(eventType)).
		Msg("Audit event appended")

	return event, nil
}

// NextBatch returns up to maxSize oldest unacknowledged events in sequence
// order, or nil when the buffer is empty.
func (l *Log) NextBatch(maxSize int) *models.SyncBatch {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) == 0 {
		return nil
	}

	n := len(l.events)
	if maxSize > 0 && maxSize < n {
		n = maxSize
	}

	events := make([]models.AuditEvent, n)
	copy(events, l.events[:n])

	return &models.SyncBatch{Events: events}
}

// Acknowledge removes all events with sequence <= upToSequence. Called only
// after the server confirms persistence, never speculatively.
func (l *Log) Acknowledge(upToSequence uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := 0
	for idx < len(l.events) && l.events[idx].Sequence <= upToSequence {
		idx++
	}

	if idx == 0 {
		return
	}

	last := l.events[idx-1]
	l.events = append([]models.AuditEvent(nil), l.events[idx:]...)

	if l.store != nil {
		// Persist the head first so a restart after the prune still knows
		// where the chain left off when the buffer drained completely.
		if len(l.events) == 0 {
			if err := l.store.SaveChainHead(context.Background(), last.Sequence, last.Hash); err != nil {
				l.logger.Error().Err(err).Uint64("sequence", last.Sequence).
					Msg("Failed to persist audit chain head")
			}
		}

		if err := l.store.DeleteEventsUpTo(context.Background(), upToSequence); err != nil {
			l.logger.Error().Err(err).Uint64("up_to", upToSequence).
				Msg("Failed to prune persisted audit events")
		}
	}

	l.logger.Debug().Uint64("up_to", upToSequence).Int("remaining", len(l.events)).
		Msg("Audit events acknowledged")
}

// VerifyChain recomputes every hash in the buffer and checks linkage,
// returning false at the first break. Startup self-check and tests; not part
// of the hot path.
func (l *Log) VerifyChain() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevHash := ""

	for i := range l.events {
		e := &l.events[i]

		if i == 0 {
			prevHash = e.PrevHash
		} else if e.PrevHash != prevHash {
			return false
		}

		if e.ComputeHash() != e.Hash {
			return false
		}

		prevHash = e.Hash
	}

	return true
}

// Len reports the number of unacknowledged events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.events)
}
