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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/poolguard/pkg/actuator"
	"github.com/carverauto/poolguard/pkg/audit"
	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/metrics"
	"github.com/carverauto/poolguard/pkg/models"
	"github.com/carverauto/poolguard/pkg/rules"
	"github.com/carverauto/poolguard/pkg/sensor"
)

type mockDriver struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockDriver) Set(_ context.Context, relayID string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := "off"
	if on {
		state = "on"
	}

	m.calls = append(m.calls, relayID+":"+state)

	return nil
}

type mockServer struct {
	desired       models.DesiredState
	desiredErr    error
	settings      *models.DeviceSettings
	settingsErr   error
	pushed        []*models.SensorSnapshot
	notifications []string
}

func (m *mockServer) FetchDesiredState(_ context.Context) (models.DesiredState, error) {
	if m.desiredErr != nil {
		return nil, m.desiredErr
	}

	return m.desired, nil
}

func (m *mockServer) PushSensorData(_ context.Context, snapshot *models.SensorSnapshot) error {
	m.pushed = append(m.pushed, snapshot)

	return nil
}

func (m *mockServer) FetchSettings(_ context.Context) (*models.DeviceSettings, error) {
	if m.settingsErr != nil {
		return nil, m.settingsErr
	}

	return m.settings, nil
}

func (m *mockServer) Notify(_ context.Context, title, _ string) error {
	m.notifications = append(m.notifications, title)

	return nil
}

type mockPublisher struct {
	batches []*models.SyncBatch
}

func (m *mockPublisher) SyncAudit(_ context.Context, batch *models.SyncBatch) (uint64, error) {
	m.batches = append(m.batches, batch)

	return batch.HighestSequence(), nil
}

type fixture struct {
	loop      *Loop
	driver    *mockDriver
	server    *mockServer
	log       *audit.Log
	publisher *mockPublisher
	queue     *CommandQueue
	source    *sensor.StaticSource
}

func newFixture(t *testing.T, server *mockServer) *fixture {
	t.Helper()

	tlog := logger.NewTestLogger()
	driver := &mockDriver{}

	registry := actuator.NewRegistry(driver, []string{
		models.ActuatorChlorinePump,
		models.ActuatorPoolHeater,
		models.ActuatorPoolFilter,
		models.ActuatorPoolVacuum,
	}, tlog)

	auditLog, err := audit.New(context.Background(), audit.Config{}, nil, tlog)
	require.NoError(t, err)

	publisher := &mockPublisher{}
	syncer := audit.NewSyncer(auditLog, publisher, audit.SyncerConfig{}, tlog)
	queue := NewCommandQueue(8, tlog)
	source := sensor.NewStaticSource(nil)
	builder := sensor.NewBuilder(source, sensor.Channels{})

	if server.settings == nil {
		server.settings = &models.DeviceSettings{
			Thresholds: &models.ThresholdConfig{
				PH:                 &models.Range{Min: 7.0, Max: 7.6},
				DesiredTemperature: models.Float(28),
			},
		}
	}

	loop := NewLoop(LoopConfig{}, rules.NewEngine(), registry, auditLog, syncer,
		server, builder, queue, metrics.NewTestMetrics(), tlog)
	loop.refreshSettings(context.Background())

	return &fixture{
		loop:      loop,
		driver:    driver,
		server:    server,
		log:       auditLog,
		publisher: publisher,
		queue:     queue,
		source:    source,
	}
}

// eventTypes collects the audit event types the cycle produced, both synced
// and still buffered.
func (f *fixture) eventTypes() []models.AuditEventType {
	var types []models.AuditEventType

	for _, batch := range f.publisher.batches {
		for i := range batch.Events {
			types = append(types, batch.Events[i].Type)
		}
	}

	if batch := f.log.NextBatch(0); batch != nil {
		for i := range batch.Events {
			types = append(types, batch.Events[i].Type)
		}
	}

	return types
}

func TestHaltedSyncAlarmsOperatorOnFirstCycle(t *testing.T) {
	f := newFixture(t, &mockServer{})

	// Startup chain verification failed; main halted the syncer before the
	// loop ever ran.
	f.loop.syncer.Halt()

	f.loop.RunCycle(context.Background())

	assert.Contains(t, f.eventTypes(), models.EventChainAlarm)
	assert.Contains(t, f.server.notifications, "Audit chain integrity failure")
	assert.Empty(t, f.publisher.batches, "nothing is transmitted after the halt")

	// The alarm is raised once, not once per cycle.
	f.loop.RunCycle(context.Background())

	alarms := 0
	for _, typ := range f.eventTypes() {
		if typ == models.EventChainAlarm {
			alarms++
		}
	}

	assert.Equal(t, 1, alarms)
}

func TestCycleAppliesRuleIntents(t *testing.T) {
	f := newFixture(t, &mockServer{})

	f.source.Set("ph", models.NumericReading(6.8, time.Now()))

	f.loop.RunCycle(context.Background())

	assert.Contains(t, f.driver.calls, "chlorine_pump:on")
	assert.Equal(t, models.RelayOn, f.loop.registry.Current(models.ActuatorChlorinePump).State)
	assert.Contains(t, f.eventTypes(), models.EventActuatorChange)
	require.Len(t, f.server.pushed, 1)
	require.NotNil(t, f.server.pushed[0].PH)
}

func TestServerDesiredStateOverridesRules(t *testing.T) {
	f := newFixture(t, &mockServer{
		desired: models.DesiredState{models.ActuatorChlorinePump: models.RelayOff},
	})

	// The pH rule alone would switch the pump on.
	f.source.Set("ph", models.NumericReading(6.8, time.Now()))

	f.loop.RunCycle(context.Background())

	assert.NotContains(t, f.driver.calls, "chlorine_pump:on")
	assert.Equal(t, models.RelayOff, f.loop.registry.Current(models.ActuatorChlorinePump).State)
	assert.True(t, f.loop.registry.Current(models.ActuatorChlorinePump).ServerConfirmed)
}

func TestFetchFailureDegradesToRuleOnly(t *testing.T) {
	f := newFixture(t, &mockServer{desiredErr: errors.New("connection refused")})

	f.source.Set("ph", models.NumericReading(6.8, time.Now()))

	f.loop.RunCycle(context.Background())

	assert.Contains(t, f.driver.calls, "chlorine_pump:on",
		"local actuation must continue without the server")
	assert.Contains(t, f.eventTypes(), models.EventSyncFailure)
}

func TestCycleAppliesQueuedCommands(t *testing.T) {
	f := newFixture(t, &mockServer{})

	f.queue.Enqueue(models.Command{
		ID:         "cmd-1",
		ActuatorID: models.ActuatorPoolHeater,
		State:      models.RelayOn,
	})

	f.loop.RunCycle(context.Background())

	assert.Contains(t, f.driver.calls, "pool_heater:on")

	types := f.eventTypes()
	assert.Contains(t, types, models.EventCommand)
	assert.Contains(t, types, models.EventActuatorChange)
}

func TestCommandOverridesDesiredStateWithinCycle(t *testing.T) {
	f := newFixture(t, &mockServer{
		desired: models.DesiredState{models.ActuatorPoolHeater: models.RelayOff},
	})

	f.queue.Enqueue(models.Command{
		ID:         "cmd-1",
		ActuatorID: models.ActuatorPoolHeater,
		State:      models.RelayOn,
	})

	f.loop.RunCycle(context.Background())

	assert.Equal(t, models.RelayOn, f.loop.registry.Current(models.ActuatorPoolHeater).State,
		"a pushed command is newer operator intent than polled desired state")
}

func TestNoChangeCycleAppendsNoChangeEvents(t *testing.T) {
	f := newFixture(t, &mockServer{})

	f.source.Set("ph", models.NumericReading(7.3, time.Now()))

	f.loop.RunCycle(context.Background())

	assert.Empty(t, f.driver.calls)
	assert.NotContains(t, f.eventTypes(), models.EventActuatorChange)
}

func TestSettingsRefreshUpdatesThresholds(t *testing.T) {
	server := &mockServer{}
	f := newFixture(t, server)

	// Tighten the pH band below the current reading.
	server.settings = &models.DeviceSettings{
		Thresholds:      &models.ThresholdConfig{PH: &models.Range{Min: 7.4, Max: 7.6}},
		WeatherForecast: "rainy",
	}
	f.loop.refreshSettings(context.Background())

	f.source.Set("ph", models.NumericReading(7.2, time.Now()))
	f.loop.RunCycle(context.Background())

	assert.Contains(t, f.driver.calls, "chlorine_pump:on")
	require.Len(t, f.server.pushed, 1)
	assert.Equal(t, "rainy", f.server.pushed[0].WeatherForecast)
}

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()                  {}

type fakeClock struct {
	ticker *fakeTicker
}

func (f *fakeClock) Now() time.Time              { return time.Now() }
func (f *fakeClock) Ticker(time.Duration) Ticker { return f.ticker }

func TestRunStopsBetweenCycles(t *testing.T) {
	f := newFixture(t, &mockServer{})

	clock := &fakeClock{ticker: &fakeTicker{ch: make(chan time.Time, 1)}}
	f.loop.SetClock(clock)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	clock.ticker.ch <- time.Now()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	// First immediate cycle plus one tick.
	require.GreaterOrEqual(t, len(f.server.pushed), 2)
}
