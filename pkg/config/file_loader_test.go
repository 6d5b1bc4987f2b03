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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	DatabasePath string `json:"database_path"`
	ListenAddr   string `json:"listen_addr,omitempty"`
}

func TestFileLoaderReadsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"database_path": "/var/lib/poolguard/agent.db", "listen_addr": ":9090"}`), 0o600))

	var cfg testConfig

	loader := &FileConfigLoader{}
	require.NoError(t, loader.Load(context.Background(), path, &cfg))

	assert.Equal(t, "/var/lib/poolguard/agent.db", cfg.DatabasePath)
	assert.Equal(t, ":9090", cfg.ListenAddr)
}

func TestFileLoaderMissingFile(t *testing.T) {
	var cfg testConfig

	loader := &FileConfigLoader{}
	err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "absent.json"), &cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileLoaderMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database_path":`), 0o600))

	var cfg testConfig

	loader := &FileConfigLoader{}
	require.Error(t, loader.Load(context.Background(), path, &cfg))
}
