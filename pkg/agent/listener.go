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
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
)

const (
	reconnectMin = 1 * time.Second
	reconnectMax = 60 * time.Second
)

// HeaderSource supplies authentication headers for the stream connection.
type HeaderSource interface {
	Headers(ctx context.Context) (http.Header, error)
}

// ListenerConfig configures the push-command stream.
type ListenerConfig struct {
	// URL is the websocket endpoint, e.g. wss://host/api/devices/commands/stream.
	URL string `json:"url"`
}

// Listener maintains the websocket connection to the server's command stream
// and enqueues every received command. It never touches actuators itself.
type Listener struct {
	cfg    ListenerConfig
	auth   HeaderSource
	queue  *CommandQueue
	logger logger.Logger
	dialer *websocket.Dialer
	now    func() time.Time
}

// NewListener creates a command stream listener.
func NewListener(cfg ListenerConfig, auth HeaderSource, queue *CommandQueue, log logger.Logger) *Listener {
	return &Listener{
		cfg:    cfg,
		auth:   auth,
		queue:  queue,
		logger: log,
		dialer: websocket.DefaultDialer,
		now:    time.Now,
	}
}

// Run connects and reads commands until the context is canceled, redialing
// with capped exponential delay after every disconnect.
func (l *Listener) Run(ctx context.Context) {
	delay := reconnectMin

	for {
		if err := l.listenOnce(ctx); err != nil {
			l.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Command stream disconnected")
		} else {
			delay = reconnectMin
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	headers, err := l.auth.Headers(ctx)
	if err != nil {
		return err
	}

	conn, resp, err := l.dialer.DialContext(ctx, l.cfg.URL, headers)
	if err != nil {
		if resp != nil {
			l.logger.Debug().Str("status", resp.Status).Msg("Command stream handshake rejected")
		}

		return err
	}

	defer func() { _ = conn.Close() }()

	l.logger.Info().Str("url", l.cfg.URL).Msg("Command stream connected")

	// Close the connection when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var cmd models.Command

		if err := conn.ReadJSON(&cmd); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}

			return nil
		}

		if cmd.ActuatorID == "" || !cmd.State.Valid() {
			l.logger.Warn().Str("command_id", cmd.ID).Msg("Dropping malformed command")
			continue
		}

		cmd.ReceivedAt = l.now()
		l.queue.Enqueue(cmd)
	}
}
