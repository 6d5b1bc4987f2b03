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

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const sysfsSettleDelay = 50 * time.Millisecond

// SysfsWriter drives GPIO pins through the kernel sysfs interface. Pins are
// exported and set to output direction on first use.
type SysfsWriter struct {
	mu       sync.Mutex
	base     string
	exported map[int]bool
}

// NewSysfsWriter creates a writer rooted at /sys/class/gpio.
func NewSysfsWriter() *SysfsWriter {
	return &SysfsWriter{
		base:     "/sys/class/gpio",
		exported: make(map[int]bool),
	}
}

// WritePin implements PinWriter.
func (w *SysfsWriter) WritePin(pin int, high bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureExported(pin); err != nil {
		return err
	}

	value := "0"
	if high {
		value = "1"
	}

	valuePath := filepath.Join(w.base, fmt.Sprintf("gpio%d", pin), "value")
	if err := os.WriteFile(valuePath, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", valuePath, err)
	}

	return nil
}

func (w *SysfsWriter) ensureExported(pin int) error {
	if w.exported[pin] {
		return nil
	}

	pinDir := filepath.Join(w.base, fmt.Sprintf("gpio%d", pin))

	if _, err := os.Stat(pinDir); os.IsNotExist(err) {
		exportPath := filepath.Join(w.base, "export")
		if err := os.WriteFile(exportPath, []byte(strconv.Itoa(pin)), 0o644); err != nil {
			return fmt.Errorf("export pin %d: %w", pin, err)
		}

		// The gpio directory appears asynchronously after export.
		time.Sleep(sysfsSettleDelay)
	}

	directionPath := filepath.Join(pinDir, "direction")
	if err := os.WriteFile(directionPath, []byte("out"), 0o644); err != nil {
		return fmt.Errorf("set pin %d direction: %w", pin, err)
	}

	w.exported[pin] = true

	return nil
}

// NopWriter discards pin writes. Used on bench rigs without relay hardware.
type NopWriter struct{}

// WritePin implements PinWriter.
func (NopWriter) WritePin(int, bool) error {
	return nil
}
