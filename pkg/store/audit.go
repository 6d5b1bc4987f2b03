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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/poolguard/pkg/models"
)

// AppendEvent persists one audit event. The sequence is the primary key, so
// a crash-replayed append of the same event is a no-op conflict.
func (s *Store) AppendEvent(ctx context.Context, event models.AuditEvent) error {
	const q = `INSERT OR IGNORE INTO audit_events
        (sequence, timestamp, event_type, payload, prev_hash, hash)
        VALUES (?, ?, ?, ?, ?, ?)`

	err := s.execContext(ctx, q,
		event.Sequence,
		event.Timestamp.UTC().Format(timeFormat),
		string(event.Type),
		[]byte(event.Payload),
		event.PrevHash,
		event.Hash)
	if err != nil {
		return fmt.Errorf("failed to persist audit event %d: %w", event.Sequence, err)
	}

	return nil
}

// DeleteEventsUpTo prunes events the server has confirmed persisting.
func (s *Store) DeleteEventsUpTo(ctx context.Context, sequence uint64) error {
	if err := s.execContext(ctx, `DELETE FROM audit_events WHERE sequence <= ?`, sequence); err != nil {
		return fmt.Errorf("failed to prune audit events: %w", err)
	}

	return nil
}

// SaveChainHead records the sequence and hash of the newest event ever
// appended, so the chain keeps linking after the buffer drains completely.
func (s *Store) SaveChainHead(ctx context.Context, sequence uint64, hash string) error {
	const q = `INSERT INTO chain_head (id, sequence, hash) VALUES (1, ?, ?)
        ON CONFLICT (id) DO UPDATE SET sequence = excluded.sequence, hash = excluded.hash`

	if err := s.execContext(ctx, q, sequence, hash); err != nil {
		return fmt.Errorf("failed to persist chain head: %w", err)
	}

	return nil
}

// LoadChainHead returns the persisted chain head, or (0, "") when none has
// been recorded yet.
func (s *Store) LoadChainHead(ctx context.Context) (uint64, string, error) {
	const q = `SELECT sequence, hash FROM chain_head WHERE id = 1`

	var (
		sequence uint64
		hash     string
	)

	err := s.db.QueryRowContext(ctx, q).Scan(&sequence, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}

	if err != nil {
		return 0, "", fmt.Errorf("failed to load chain head: %w", err)
	}

	return sequence, hash, nil
}

// LoadEvents returns all unsynced events in sequence order.
func (s *Store) LoadEvents(ctx context.Context) ([]models.AuditEvent, error) {
	const q = `SELECT sequence, timestamp, event_type, payload, prev_hash, hash
        FROM audit_events ORDER BY sequence ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent

	for rows.Next() {
		var (
			event models.AuditEvent
			ts    string
			typ   string
		)

		if err := rows.Scan(&event.Sequence, &ts, &typ, (*[]byte)(&event.Payload), &event.PrevHash, &event.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		event.Type = models.AuditEventType(typ)

		event.Timestamp, err = time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit event timestamp: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}

	return events, nil
}
