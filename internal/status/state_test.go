package status

import (
	"context"
	"testing"
	"time"

	"github.com/mzahid/dialdesk/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, ConfigRequired},
		{Booting, Connecting},
		{Booting, Error},
		{ConfigRequired, Connecting},
		{Connecting, Live},
		{Connecting, PollingOnly},
		{Live, Connecting},
		{Live, PollingOnly},
		{Degraded, Live},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Live); err == nil {
		t.Error("Transition(BOOTING -> LIVE) should fail")
	}
}

// TestPollingOnlyIsSticky verifies that once the stream is given up for
// the session there is no way back to LIVE short of a restart.
func TestPollingOnlyIsSticky(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, PollingOnly)

	if err := m.Transition(Live); err == nil {
		t.Fatal("Transition(POLLING_ONLY -> LIVE) should fail")
	}
	if m.Current() != PollingOnly {
		t.Errorf("state = %s, want POLLING_ONLY (should not have changed)", m.Current())
	}
}

func TestSelfTransitionIsNoOp(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Live)
	drain(ch)

	if err := m.Transition(Live); err != nil {
		t.Fatalf("LIVE -> LIVE: %v", err)
	}
	select {
	case evt := <-ch:
		t.Fatalf("self transition published %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(ConfigRequired); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != "session.status_changed" {
		t.Errorf("event kind = %q, want session.status_changed", evt.Kind)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != ConfigRequired {
		t.Errorf("change = %v -> %v, want BOOTING -> CONFIG_REQUIRED", change.From, change.To)
	}
}

// TestFirstRunLifecycle simulates the complete first-run lifecycle:
// BOOTING → CONFIG_REQUIRED → CONNECTING → LIVE
func TestFirstRunLifecycle(t *testing.T) {
	m := NewMachine(nil)

	steps := []State{ConfigRequired, Connecting, Live}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Live {
		t.Errorf("final state = %s, want LIVE", m.Current())
	}
}

// TestDegradedRecoveryCycle verifies the failed-sync recovery loop:
// LIVE → DEGRADED → LIVE
func TestDegradedRecoveryCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Live)

	steps := []State{Degraded, Live}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Live {
		t.Errorf("final state = %s, want LIVE", m.Current())
	}
}

func TestWatchFollowsStreamAndSyncEvents(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	walkTo(t, m, Connecting)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, b)
	time.Sleep(10 * time.Millisecond)

	publish := func(kind string) {
		b.Publish(bus.Event{Kind: kind, Timestamp: time.Now()})
	}
	expect := func(want State) {
		t.Helper()
		deadline := time.Now().Add(time.Second)
		for m.Current() != want {
			if time.Now().After(deadline) {
				t.Fatalf("state = %s, want %s", m.Current(), want)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}

	publish("stream.connected")
	expect(Live)

	publish("sync.failed")
	expect(Degraded)

	publish("sync.completed")
	expect(Live)

	publish("stream.fallback")
	expect(PollingOnly)

	// Recovery from a later degradation lands in POLLING_ONLY, not LIVE.
	publish("sync.failed")
	expect(Degraded)
	publish("sync.completed")
	expect(PollingOnly)
}

// TestWatchRecoversToPollingOnlyWithoutStream covers a daemon that started
// with no stream configured: POLLING_ONLY is entered directly, with no
// fallback event ever published. A sync failure and recovery must land back
// in POLLING_ONLY, never LIVE.
func TestWatchRecoversToPollingOnlyWithoutStream(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	walkTo(t, m, PollingOnly)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, b)
	time.Sleep(10 * time.Millisecond)

	publish := func(kind string) {
		b.Publish(bus.Event{Kind: kind, Timestamp: time.Now()})
	}
	expect := func(want State) {
		t.Helper()
		deadline := time.Now().Add(time.Second)
		for m.Current() != want {
			if time.Now().After(deadline) {
				t.Fatalf("state = %s, want %s", m.Current(), want)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}

	publish("sync.failed")
	expect(Degraded)

	publish("sync.completed")
	expect(PollingOnly)
}

func drain(ch <-chan bus.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:        {},
		ConfigRequired: {ConfigRequired},
		Connecting:     {ConfigRequired, Connecting},
		Live:           {Connecting, Live},
		PollingOnly:    {Connecting, PollingOnly},
		Degraded:       {Connecting, Live, Degraded},
		Error:          {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
