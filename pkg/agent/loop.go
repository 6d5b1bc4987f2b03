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

// Package agent runs the device's reconciliation loop: read sensors,
// evaluate rules, reconcile with the server's desired state, drive
// actuators, and sync the audit chain. One goroutine owns the registry and
// the audit sequence; a cycle always finishes before shutdown completes.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/carverauto/poolguard/pkg/actuator"
	"github.com/carverauto/poolguard/pkg/audit"
	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/metrics"
	"github.com/carverauto/poolguard/pkg/models"
	"github.com/carverauto/poolguard/pkg/rules"
	"github.com/carverauto/poolguard/pkg/sensor"
	"github.com/carverauto/poolguard/pkg/session"
)

const (
	defaultCycleInterval = 30 * time.Second
	defaultSettingsEvery = 20
	notifyTimeout        = 5 * time.Second
	reasonServerCommand  = "server command"
)

// ServerClient is the subset of the server API the loop consumes.
type ServerClient interface {
	FetchDesiredState(ctx context.Context) (models.DesiredState, error)
	PushSensorData(ctx context.Context, snapshot *models.SensorSnapshot) error
	FetchSettings(ctx context.Context) (*models.DeviceSettings, error)
	Notify(ctx context.Context, title, message string) error
}

// LoopConfig controls loop timing.
type LoopConfig struct {
	Interval time.Duration `json:"interval,omitempty"`

	// SettingsRefreshEvery is the number of cycles between settings fetches.
	SettingsRefreshEvery int `json:"settings_refresh_every,omitempty"`
}

// Loop is the reconciliation loop.
type Loop struct {
	cfg      LoopConfig
	clock    Clock
	logger   logger.Logger
	metrics  *metrics.Metrics
	engine   *rules.Engine
	registry *actuator.Registry
	auditLog *audit.Log
	syncer   *audit.Syncer
	client   ServerClient
	builder  *sensor.Builder
	queue    *CommandQueue

	settings     *models.DeviceSettings
	cycles       uint64
	chainAlarmed bool
}

// NewLoop wires the reconciliation loop.
func NewLoop(
	cfg LoopConfig,
	engine *rules.Engine,
	registry *actuator.Registry,
	auditLog *audit.Log,
	syncer *audit.Syncer,
	client ServerClient,
	builder *sensor.Builder,
	queue *CommandQueue,
	m *metrics.Metrics,
	log logger.Logger,
) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultCycleInterval
	}

	if cfg.SettingsRefreshEvery <= 0 {
		cfg.SettingsRefreshEvery = defaultSettingsEvery
	}

	settings := &models.DeviceSettings{}
	settings.Normalize()

	return &Loop{
		cfg:      cfg,
		clock:    realClock{},
		logger:   log,
		metrics:  m,
		engine:   engine,
		registry: registry,
		auditLog: auditLog,
		syncer:   syncer,
		client:   client,
		builder:  builder,
		queue:    queue,
		settings: settings,
	}
}

// SetClock replaces the clock, for tests.
func (l *Loop) SetClock(clock Clock) {
	l.clock = clock
}

// SetSettings seeds the operator settings before the first cycle.
func (l *Loop) SetSettings(settings *models.DeviceSettings) {
	if settings == nil {
		return
	}

	settings.Normalize()
	l.settings = settings
}

// Run executes cycles until the context is canceled. The cycle in progress
// always completes; shutdown happens between cycles.
func (l *Loop) Run(ctx context.Context) error {
	l.refreshSettings(ctx)

	interval := l.interval()
	ticker := l.clock.Ticker(interval)

	defer ticker.Stop()

	l.logger.Info().Dur("interval", interval).Msg("Reconciliation loop started")

	l.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Reconciliation loop stopping")
			return nil
		case <-ticker.Chan():
			l.RunCycle(ctx)
		}

		if next := l.interval(); next != interval {
			l.logger.Info().Dur("old", interval).Dur("new", next).Msg("Cycle interval changed")
			ticker.Stop()

			interval = next
			ticker = l.clock.Ticker(interval)
		}
	}
}

func (l *Loop) interval() time.Duration {
	if s := l.settings.CycleIntervalSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}

	return l.cfg.Interval
}

// RunCycle executes one full cycle. Failures inside a cycle degrade the
// cycle, not the loop.
func (l *Loop) RunCycle(ctx context.Context) {
	start := l.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			l.metrics.CycleErrorsTotal.Inc()
			l.logger.Error().Interface("panic", r).Msg("Cycle panicked")
			l.append(models.EventCycleError, map[string]any{"panic": true})
		}

		l.metrics.CyclesTotal.Inc()
		l.metrics.CycleDuration.Observe(l.clock.Now().Sub(start).Seconds())
		l.metrics.AuditBufferSize.Set(float64(l.auditLog.Len()))
	}()

	snapshot := l.builder.Build(ctx, start, l.settings.WeatherForecast)
	l.append(models.EventSensorSnapshot, snapshot)

	if err := l.client.PushSensorData(ctx, snapshot); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to push sensor data")
	}

	intents := l.engine.Evaluate(*snapshot, *l.settings.Thresholds)
	if len(intents) > 0 {
		l.append(models.EventRuleDecision, map[string]any{"intents": intents})
	}

	desired := l.fetchDesiredState(ctx)

	l.applyRuleIntents(ctx, intents, desired)
	l.reconcileDesired(ctx, desired)
	l.applyCommands(ctx)

	l.flushAudit(ctx)

	l.cycles++
	if l.cycles%uint64(l.cfg.SettingsRefreshEvery) == 0 {
		l.refreshSettings(ctx)
	}
}

func (l *Loop) fetchDesiredState(ctx context.Context) models.DesiredState {
	desired, err := l.client.FetchDesiredState(ctx)
	if err != nil {
		// Rule-only actuation continues; the server catches up next cycle.
		l.metrics.ServerFetchFailuresTotal.Inc()
		l.logger.Warn().Err(err).Msg("Failed to fetch desired state, continuing rule-only")

		eventType := models.EventSyncFailure
		if errors.Is(err, session.ErrUnrecoverable) {
			eventType = models.EventAuthFailure
		}

		l.append(eventType, map[string]any{
			"operation": "fetch_desired_state",
			"error":     err.Error(),
		})

		return nil
	}

	if len(desired) > 0 {
		l.append(models.EventDesiredState, desired)
	}

	return desired
}

// applyRuleIntents drives the rule engine's intents, skipping actuators the
// server has declared desired state for. Server state wins within a cycle.
func (l *Loop) applyRuleIntents(ctx context.Context, intents []models.ActuatorIntent, desired models.DesiredState) {
	for _, intent := range intents {
		if _, overridden := desired[intent.ActuatorID]; overridden {
			l.logger.Debug().Str("actuator_id", intent.ActuatorID).
				Msg("Rule intent overridden by server desired state")
			continue
		}

		l.applyIntent(ctx, intent)
	}
}

func (l *Loop) reconcileDesired(ctx context.Context, desired models.DesiredState) {
	if len(desired) == 0 {
		return
	}

	changes, err := l.registry.Reconcile(ctx, desired)
	if err != nil {
		l.metrics.CycleErrorsTotal.Inc()
		l.logger.Error().Err(err).Msg("Desired state reconciliation failed")
		l.append(models.EventDriveFailure, map[string]any{"error": err.Error()})
		l.notify(ctx, "Actuator drive failure", err.Error())
	}

	for i := range changes {
		if changes[i].Applied {
			l.recordChange(&changes[i])
		}
	}
}

func (l *Loop) applyCommands(ctx context.Context) {
	for _, cmd := range l.queue.Drain() {
		l.append(models.EventCommand, cmd)

		l.applyIntent(ctx, models.ActuatorIntent{
			ActuatorID: cmd.ActuatorID,
			Desired:    cmd.State,
			Reason:     reasonServerCommand,
		})
	}
}

func (l *Loop) applyIntent(ctx context.Context, intent models.ActuatorIntent) {
	change, err := l.registry.Apply(ctx, intent)
	if err != nil {
		l.metrics.ActuatorFailuresTotal.WithLabelValues(intent.ActuatorID).Inc()
		l.logger.Error().Err(err).Str("actuator_id", intent.ActuatorID).
			Msg("Failed to drive actuator")
		l.append(models.EventDriveFailure, map[string]any{
			"actuator_id": intent.ActuatorID,
			"desired":     intent.Desired,
			"error":       err.Error(),
		})
		l.notify(ctx, "Actuator drive failure", intent.ActuatorID+": "+err.Error())

		return
	}

	if change.Applied {
		l.recordChange(&change)
	}
}

func (l *Loop) recordChange(change *models.StateChange) {
	l.metrics.ActuatorChangesTotal.WithLabelValues(change.ActuatorID).Inc()
	l.logger.Info().Str("actuator_id", change.ActuatorID).
		Str("from", string(change.From)).Str("to", string(change.To)).
		Str("reason", change.Reason).Msg("Actuator state changed")
	l.append(models.EventActuatorChange, change)
}

func (l *Loop) flushAudit(ctx context.Context) {
	before := l.auditLog.Len()

	err := l.syncer.Flush(ctx)
	if err == nil {
		if before > l.auditLog.Len() {
			l.metrics.SyncBatchesTotal.Inc()
		}

		return
	}

	if errors.Is(err, audit.ErrChainIntegrity) {
		if !l.chainAlarmed {
			l.chainAlarmed = true
			l.append(models.EventChainAlarm, map[string]any{"error": err.Error()})
			l.notify(ctx, "Audit chain integrity failure",
				"local audit chain verification failed, sync halted")
		}

		return
	}

	l.metrics.SyncFailuresTotal.Inc()
	l.logger.Warn().Err(err).Msg("Audit sync failed, batch retained")
}

func (l *Loop) refreshSettings(ctx context.Context) {
	settings, err := l.client.FetchSettings(ctx)
	if err != nil {
		// Keep the last good copy.
		l.metrics.ServerFetchFailuresTotal.Inc()
		l.logger.Warn().Err(err).Msg("Failed to refresh settings")

		return
	}

	l.settings = settings
	l.append(models.EventSettingsFetch, settings)
}

// append adds an audit event, counting sheds separately from other append
// failures.
func (l *Loop) append(eventType models.AuditEventType, payload any) {
	if _, err := l.auditLog.Append(eventType, payload); err != nil {
		if errors.Is(err, audit.ErrBufferFull) {
			l.metrics.AuditShedTotal.Inc()
			l.logger.Debug().Str("event_type", string(eventType)).
				Msg("Audit buffer full, event shed")

			return
		}

		l.logger.Warn().Err(err).Str("event_type", string(eventType)).
			Msg("Failed to append audit event")

		return
	}

	l.metrics.AuditEventsTotal.WithLabelValues(string(eventType)).Inc()
}

func (l *Loop) notify(ctx context.Context, title, message string) {
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := l.client.Notify(nctx, title, message); err != nil {
		l.logger.Warn().Err(err).Str("title", title).Msg("Failed to send notification")
	}
}
