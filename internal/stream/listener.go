// Package stream consumes the provider bridge's server-sent event feed and
// turns push frames into single-message deltas for the inbox store. The
// stream is an accelerator on top of polling, never the source of truth:
// everything it merges would also arrive on the next poll.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mzahid/dialdesk/internal/bus"
	"github.com/mzahid/dialdesk/internal/inbox"
	"go.uber.org/zap"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	// maxAttempts consecutive failed connections switch the session to
	// poll-only mode permanently.
	maxAttempts = 5
)

// frame is one pushed SSE event. message, call and recording frames all
// carry the content in Message; connected and heartbeat frames carry
// nothing of interest.
type frame struct {
	Type    string         `json:"type"`
	Phone   string         `json:"phone"`
	Name    string         `json:"name"`
	Message *inbox.Message `json:"message"`
}

// Listener maintains the SSE connection and feeds frames to the store.
type Listener struct {
	url    string
	store  *inbox.Store
	bus    *bus.Bus
	logger *zap.Logger
	http   *http.Client
	sleep  func(ctx context.Context, d time.Duration) bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a listener for the event stream at url.
func NewListener(url string, store *inbox.Store, b *bus.Bus, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		url:    url,
		store:  store,
		bus:    b,
		logger: logger,
		// No overall timeout: the stream is long-lived by design and
		// liveness comes from heartbeat frames.
		http:  &http.Client{},
		sleep: sleepCtx,
		done:  make(chan struct{}),
	}
}

// Start runs the connect/read/reconnect loop in the background.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

// Stop tears the connection down and waits for the loop to exit.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	<-l.done
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		connected, err := l.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			// Only consecutive failed connections count toward the
			// fallback limit.
			attempt = 0
			l.publish("stream.disconnected", nil)
		}
		l.logger.Warn("event stream disconnected", zap.Error(err))

		attempt++
		if attempt >= maxAttempts {
			// Polling keeps the inbox converging; give up on push for
			// the rest of the session rather than hammering the bridge.
			l.logger.Warn("event stream unavailable, falling back to polling",
				zap.Int("attempts", attempt))
			l.publish("stream.fallback", attempt)
			return
		}
		if !l.sleep(ctx, backoff(attempt)) {
			return
		}
	}
}

// connectAndRead opens the stream and consumes frames until it breaks.
// The returned flag tells whether the connection was ever established.
func (l *Listener) connectAndRead(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return false, fmt.Errorf("stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := l.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("stream connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream connect: unexpected status %d", resp.StatusCode)
	}

	l.logger.Info("event stream connected", zap.String("url", l.url))
	l.publish("stream.connected", nil)

	return true, l.readFrames(ctx, bufio.NewReader(resp.Body))
}

// readFrames parses the text/event-stream body: data lines accumulate
// until a blank line terminates the event. Malformed payloads are dropped
// without tearing the connection down.
func (l *Listener) readFrames(ctx context.Context, r *bufio.Reader) error {
	var data bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				l.handleFrame(data.Bytes())
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// Comments and event/id/retry fields are not used by the
			// bridge; ignore them.
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (l *Listener) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		l.logger.Debug("dropping malformed stream frame", zap.Error(err))
		return
	}

	switch f.Type {
	case "connected", "heartbeat":
		return
	case "message", "call", "recording":
		if f.Message == nil || f.Phone == "" {
			l.logger.Debug("dropping incomplete stream frame", zap.String("type", f.Type))
			return
		}
		d := inbox.Delta{
			Phone:    f.Phone,
			Name:     f.Name,
			Kind:     inbox.KindMessage,
			Messages: []inbox.Message{*f.Message},
		}
		if f.Type != "message" {
			d.Kind = inbox.KindCall
			d.CallStatus = f.Message.CallType
			d.CallDuration = f.Message.Duration
		}
		l.store.Merge([]inbox.Delta{d})
	default:
		l.logger.Debug("dropping unknown stream frame", zap.String("type", f.Type))
	}
}

func (l *Listener) publish(kind string, payload any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// backoff returns the wait before reconnect attempt n (1-based).
func backoff(n int) time.Duration {
	d := initialBackoff << (n - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
