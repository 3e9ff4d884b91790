package status

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mzahid/dialdesk/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting        State = "BOOTING"
	ConfigRequired State = "CONFIG_REQUIRED"
	Connecting     State = "CONNECTING"
	Live           State = "LIVE"
	PollingOnly    State = "POLLING_ONLY"
	Degraded       State = "DEGRADED"
	Error          State = "ERROR"
)

// validTransitions defines allowed state transitions. PollingOnly has no
// path back to Live: once the event stream is given up for the session,
// only a restart restores push delivery.
var validTransitions = map[State][]State{
	Booting:        {ConfigRequired, Connecting, Error},
	ConfigRequired: {Connecting, Error},
	Connecting:     {Live, PollingOnly, Degraded, ConfigRequired, Error},
	Live:           {PollingOnly, Degraded, Connecting, ConfigRequired, Error},
	PollingOnly:    {Degraded, Error},
	Degraded:       {Connecting, Live, PollingOnly, Error},
	Error:          {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.current {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.status_changed",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}

// Watch drives the machine from sync and stream events until ctx is done.
// Invalid transitions are ignored: an event arriving for a state the
// machine already left is stale, not an error. A recovered sync returns
// the machine to whatever state the failure interrupted, so a daemon that
// runs poll-only (with or without a fallback event) never resurfaces as
// LIVE.
func (m *Machine) Watch(ctx context.Context, b *bus.Bus) {
	events, cancel := b.Subscribe("", 64)
	defer cancel()

	recoverTo := Connecting
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case "stream.connected":
				_ = m.Transition(Live)
			case "stream.disconnected":
				_ = m.Transition(Connecting)
			case "stream.fallback":
				recoverTo = PollingOnly
				_ = m.Transition(PollingOnly)
			case "sync.failed":
				if cur := m.Current(); m.Transition(Degraded) == nil {
					recoverTo = cur
				}
			case "sync.completed":
				if m.Current() == Degraded {
					_ = m.Transition(recoverTo)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
