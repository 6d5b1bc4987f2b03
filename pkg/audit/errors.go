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

import "errors"

var (
	// ErrBufferFull is returned when a non-critical append is refused because
	// the unsynced buffer is at its cap. Critical events bypass the cap.
	ErrBufferFull = errors.New("audit buffer full")

	// ErrChainIntegrity indicates the hash chain no longer verifies. Sync is
	// halted; the log is never silently re-chained.
	ErrChainIntegrity = errors.New("audit chain integrity violation")
)
