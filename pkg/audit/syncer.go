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
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
	"github.com/carverauto/poolguard/pkg/session"
)

const (
	defaultBatchSize      = 64
	syncInitialBackoff    = 500 * time.Millisecond
	syncMaxBackoff        = 10 * time.Second
	defaultSyncMaxElapsed = 30 * time.Second
)

// Publisher transmits a batch to the server and returns the highest sequence
// number the server confirmed persisting.
type Publisher interface {
	SyncAudit(ctx context.Context, batch *models.SyncBatch) (uint64, error)
}

// SyncerConfig controls batching and retry bounds.
type SyncerConfig struct {
	BatchSize  int           `json:"batch_size,omitempty"`
	MaxElapsed time.Duration `json:"max_elapsed,omitempty"`
}

// Syncer flushes the audit buffer to the server. A failed batch is retried
// unchanged with exponential backoff; it is never re-split or reordered, so
// hash-chain contiguity is preserved. A detected chain break halts syncing
// permanently until an operator intervenes.
type Syncer struct {
	log       *Log
	publisher Publisher
	logger    logger.Logger
	batchSize int
	maxWait   time.Duration
	halted    bool
}

// NewSyncer creates a syncer over the given log and publisher.
func NewSyncer(log *Log, publisher Publisher, cfg SyncerConfig, logg logger.Logger) *Syncer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxWait := cfg.MaxElapsed
	if maxWait <= 0 {
		maxWait = defaultSyncMaxElapsed
	}

	return &Syncer{
		log:       log,
		publisher: publisher,
		logger:    logg,
		batchSize: batchSize,
		maxWait:   maxWait,
	}
}

// Halted reports whether syncing stopped over a chain integrity violation.
func (s *Syncer) Halted() bool {
	return s.halted
}

// Halt stops all future syncing. Called when chain verification fails outside
// the flush path, such as the startup self-check; a break that falls on a
// batch boundary is invisible to per-batch linkage checks, so the halt must
// come from whoever saw the full buffer. Every subsequent Flush returns
// ErrChainIntegrity.
func (s *Syncer) Halt() {
	s.halted = true
	s.logger.Error().Msg("Audit sync halted")
}

// Flush sends one batch if any events are pending. Network failures are
// retried with backoff inside the call's elapsed budget and then surfaced;
// the batch stays buffered for the next flush. A chain break returns
// ErrChainIntegrity and halts all future syncing.
func (s *Syncer) Flush(ctx context.Context) error {
	if s.halted {
		return ErrChainIntegrity
	}

	batch := s.log.NextBatch(s.batchSize)
	if batch == nil {
		return nil
	}

	if err := verifyBatchLinkage(batch.Events); err != nil {
		s.halted = true
		s.logger.Error().Err(err).Msg("Audit chain broken; sync halted")

		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = syncInitialBackoff
	bo.MaxInterval = syncMaxBackoff

	operation := func() (uint64, error) {
		acked, err := s.publisher.SyncAudit(ctx, batch)
		if err != nil {
			if isPermanent(err) {
				return 0, backoff.Permanent(err)
			}

			return 0, err
		}

		return acked, nil
	}

	acked, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(s.maxWait))
	if err != nil {
		return fmt.Errorf("sync audit batch up to seq %d: %w", batch.HighestSequence(), err)
	}

	s.log.Acknowledge(acked)

	s.logger.Info().
		Int("events", len(batch.Events)).
		Uint64("acknowledged", acked).
		Msg("Audit batch synced")

	return nil
}

// verifyBatchLinkage checks hash linkage across the outgoing slice. Constant
// work per event, cheap enough for the flush path.
func verifyBatchLinkage(events []models.AuditEvent) error {
	for i := range events {
		e := &events[i]

		if e.ComputeHash() != e.Hash {
			return fmt.Errorf("%w: hash mismatch at sequence %d", ErrChainIntegrity, e.Sequence)
		}

		if i > 0 && e.PrevHash != events[i-1].Hash {
			return fmt.Errorf("%w: broken linkage at sequence %d", ErrChainIntegrity, e.Sequence)
		}
	}

	return nil
}

// isPermanent reports whether an error should not be retried by the syncer.
func isPermanent(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, session.ErrUnrecoverable)
}
