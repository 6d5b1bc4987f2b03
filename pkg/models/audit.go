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

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// AuditEventType classifies audit events. Critical types bypass the buffer
// cap and are never shed.
type AuditEventType string

const (
	EventActuatorChange AuditEventType = "actuator_change"
	EventChainAlarm     AuditEventType = "chain_alarm"
	EventSensorSnapshot AuditEventType = "sensor_snapshot"
	EventRuleDecision   AuditEventType = "rule_decision"
	EventDesiredState   AuditEventType = "desired_state"
	EventDriveFailure   AuditEventType = "drive_failure"
	EventSyncFailure    AuditEventType = "sync_failure"
	EventAuthFailure    AuditEventType = "auth_failure"
	EventCycleError     AuditEventType = "cycle_error"
	EventCommand        AuditEventType = "command"
	EventSettingsFetch  AuditEventType = "settings_fetch"
)

// Critical reports whether the event type is exempt from buffer shedding.
func (t AuditEventType) Critical() bool {
	return t == EventActuatorChange || t == EventChainAlarm
}

// GenesisHash is the previous-hash sentinel of the first event in a chain.
const GenesisHash = "0"

// AuditEvent is one hash-chained record in the local tamper-evident log.
// Invariant: Hash == sha256(Payload || PrevHash || Sequence) and the
// PrevHash of event n equals the Hash of event n-1. Immutable once appended.
type AuditEvent struct {
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Type      AuditEventType  `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// ComputeHash derives the chain hash from the event's payload, previous hash
// and sequence number.
func (e *AuditEvent) ComputeHash() string {
	h := sha256.New()
	h.Write(e.Payload)
	h.Write([]byte(e.PrevHash))
	h.Write([]byte(strconv.FormatUint(e.Sequence, 10)))

	return hex.EncodeToString(h.Sum(nil))
}

// SyncBatch is an ordered, contiguous slice of unacknowledged audit events
// transmitted together. A failed batch is retried unchanged; it is never
// re-split or reordered.
type SyncBatch struct {
	DeviceID string       `json:"device_id"`
	Events   []AuditEvent `json:"events"`
}

// HighestSequence returns the sequence number of the last event in the batch.
func (b *SyncBatch) HighestSequence() uint64 {
	if len(b.Events) == 0 {
		return 0
	}

	return b.Events[len(b.Events)-1].Sequence
}
