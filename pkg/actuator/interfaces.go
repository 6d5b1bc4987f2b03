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

package actuator

import "context"

// Driver is the physical relay capability injected into the registry. The
// driver owns pin mapping and drive polarity; the registry only ever speaks
// logical states. Set must be idempotent at the hardware level.
type Driver interface {
	Set(ctx context.Context, relayID string, on bool) error
}
