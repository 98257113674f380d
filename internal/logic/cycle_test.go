package logic

import (
	"sync"
	"testing"
	"time"
)

var testStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testThresholds(debounce time.Duration) Thresholds {
	return Thresholds{OnWatts: 20, OffWatts: 10, Debounce: debounce}
}

// feed processes readings at a fixed poll interval starting at start and
// returns the phase after each reading plus any events produced.
func feed(c *Cycle, start time.Time, poll time.Duration, readings []float64) ([]Phase, []Event) {
	var phases []Phase
	var events []Event
	for i, p := range readings {
		if ev, ok := c.Process(Input{Power: p, Time: start.Add(time.Duration(i) * poll)}); ok {
			events = append(events, ev)
		}
		phases = append(phases, c.State().Phase)
	}
	return phases, events
}

func finished(events []Event) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == EventCycleFinished {
			out = append(out, e)
		}
	}
	return out
}

func TestNewCycle(t *testing.T) {
	c := NewCycle(testThresholds(time.Minute), testStart)
	if c == nil {
		t.Fatal("NewCycle returned nil")
	}
	st := c.State()
	if st.Phase != PhaseIdle {
		t.Errorf("expected IDLE, got %s", st.Phase)
	}
	if st.Registered {
		t.Error("new cycle should not be registered")
	}
	if !st.DropSince.IsZero() {
		t.Error("new cycle should have no debounce timer")
	}
	if !c.lastHeartbeat.Equal(testStart) {
		t.Errorf("expected lastHeartbeat %v, got %v", testStart, c.lastHeartbeat)
	}
}

func TestNoEventsWithoutRecipient(t *testing.T) {
	c := NewCycle(testThresholds(0), testStart)

	readings := []float64{5, 30, 35, 8, 6, 7, 50, 0, 0, 0}
	phases, events := feed(c, testStart, 10*time.Second, readings)

	if len(events) != 0 {
		t.Errorf("expected no events without recipient, got %d", len(events))
	}
	for i, p := range phases {
		if p != PhaseIdle {
			t.Errorf("reading %d: expected IDLE, got %s", i, p)
		}
	}
}

func TestScenarioFullCycle(t *testing.T) {
	// Debounce equal to one poll interval: the first low reading starts the
	// timer, the second is exactly one interval later (not past it), the
	// third is past it.
	poll := 10 * time.Second
	c := NewCycle(testThresholds(poll), testStart)
	c.Register("U1", testStart)

	phases, events := feed(c, testStart, poll, []float64{5, 30, 35, 8, 6, 7})

	want := []Phase{PhaseIdle, PhaseWashing, PhaseWashing, PhaseDraining, PhaseDraining, PhaseIdle}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("reading %d: expected %s, got %s", i, want[i], phases[i])
		}
	}

	done := finished(events)
	if len(done) != 1 {
		t.Fatalf("expected exactly 1 CYCLE_FINISHED, got %d", len(done))
	}
	if done[0].Recipient != "U1" {
		t.Errorf("expected recipient U1, got %q", done[0].Recipient)
	}
	if !done[0].Timestamp.Equal(testStart.Add(5 * poll)) {
		t.Errorf("expected finish on the sixth reading, got %v", done[0].Timestamp)
	}
	if c.State().Registered {
		t.Error("registration should be cleared after notification")
	}
}

func TestScenarioZeroDebounceFinishesOnFirstConfirmingSample(t *testing.T) {
	poll := 10 * time.Second
	c := NewCycle(testThresholds(0), testStart)
	c.Register("U1", testStart)

	phases, events := feed(c, testStart, poll, []float64{5, 30, 35, 8, 6, 7})

	want := []Phase{PhaseIdle, PhaseWashing, PhaseWashing, PhaseDraining, PhaseIdle, PhaseIdle}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("reading %d: expected %s, got %s", i, want[i], phases[i])
		}
	}
	if n := len(finished(events)); n != 1 {
		t.Errorf("expected 1 CYCLE_FINISHED, got %d", n)
	}
}

func TestScenarioDipThenRecovery(t *testing.T) {
	poll := 10 * time.Second
	c := NewCycle(testThresholds(3*poll), testStart)
	c.Register("U1", testStart)

	phases, events := feed(c, testStart, poll, []float64{30, 5, 25})

	want := []Phase{PhaseWashing, PhaseDraining, PhaseWashing}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("reading %d: expected %s, got %s", i, want[i], phases[i])
		}
	}
	if n := len(finished(events)); n != 0 {
		t.Errorf("expected no notification, got %d", n)
	}
	if !c.State().DropSince.IsZero() {
		t.Error("debounce timer should be cleared after recovery")
	}
}

func TestRecoveryResetsDebounceTimer(t *testing.T) {
	poll := 10 * time.Second
	debounce := 25 * time.Second
	c := NewCycle(testThresholds(debounce), testStart)
	c.Register("U1", testStart)

	// Drop at t=10s, recover at t=30s, drop again at t=40s. If the timer were
	// not reset, t=40s would already be past the window measured from t=10s.
	_, events := feed(c, testStart, poll, []float64{30, 5, 5, 30, 5, 5})
	if n := len(finished(events)); n != 0 {
		t.Fatalf("expected no notification before a fresh window, got %d", n)
	}

	st := c.State()
	if st.Phase != PhaseDraining {
		t.Fatalf("expected DRAINING, got %s", st.Phase)
	}
	if !st.DropSince.Equal(testStart.Add(4 * poll)) {
		t.Errorf("expected timer from second drop, got %v", st.DropSince)
	}

	// t=70s is 30s past the second drop.
	ev, ok := c.Process(Input{Power: 5, Time: testStart.Add(7 * poll)})
	if !ok || ev.Type != EventCycleFinished {
		t.Fatalf("expected CYCLE_FINISHED, got %v %v", ev, ok)
	}
}

func TestDebounceExactTiming(t *testing.T) {
	debounce := 30 * time.Second
	c := NewCycle(testThresholds(debounce), testStart)
	c.Register("U1", testStart)

	c.Process(Input{Power: 30, Time: testStart})
	c.Process(Input{Power: 5, Time: testStart.Add(time.Second)})

	// Exactly at the window: not yet past it.
	if _, ok := c.Process(Input{Power: 5, Time: testStart.Add(time.Second + debounce)}); ok {
		t.Error("should not finish exactly at the debounce boundary")
	}

	ev, ok := c.Process(Input{Power: 5, Time: testStart.Add(time.Second + debounce + time.Millisecond)})
	if !ok || ev.Type != EventCycleFinished {
		t.Errorf("expected CYCLE_FINISHED just past the window, got %v %v", ev, ok)
	}
}

func TestHysteresisBandDoesNotTransition(t *testing.T) {
	c := NewCycle(testThresholds(time.Minute), testStart)
	c.Register("U1", testStart)

	// 10..20 W is neither on nor off.
	_, events := feed(c, testStart, 10*time.Second, []float64{15, 20, 10, 12})
	if len(events) != 0 {
		t.Errorf("expected no events inside the band, got %v", events)
	}

	c.Process(Input{Power: 30, Time: testStart.Add(time.Minute)})
	_, events = feed(c, testStart.Add(2*time.Minute), 10*time.Second, []float64{15, 10, 19})
	if len(events) != 0 {
		t.Errorf("expected WASHING to hold inside the band, got %v", events)
	}
	if c.State().Phase != PhaseWashing {
		t.Errorf("expected WASHING, got %s", c.State().Phase)
	}
}

func TestDrainingFinishesInsideBandAfterWindow(t *testing.T) {
	c := NewCycle(testThresholds(time.Minute), testStart)
	c.Register("U1", testStart)

	c.Process(Input{Power: 30, Time: testStart})
	c.Process(Input{Power: 5, Time: testStart.Add(time.Second)})

	// A reading between the thresholds neither resumes nor blocks completion.
	ev, ok := c.Process(Input{Power: 15, Time: testStart.Add(2 * time.Minute)})
	if !ok || ev.Type != EventCycleFinished {
		t.Errorf("expected CYCLE_FINISHED, got %v %v", ev, ok)
	}
}

func TestAtMostOneNotificationPerRegistration(t *testing.T) {
	c := NewCycle(testThresholds(0), testStart)
	c.Register("U1", testStart)

	// Two full cycles worth of readings but only one registration.
	readings := []float64{30, 5, 5, 5, 30, 5, 5, 5, 0, 40, 1, 1}
	_, events := feed(c, testStart, 10*time.Second, readings)

	if n := len(finished(events)); n != 1 {
		t.Errorf("expected 1 notification per registration, got %d", n)
	}
}

func TestReRegistrationAllowsAnotherNotification(t *testing.T) {
	c := NewCycle(testThresholds(0), testStart)
	c.Register("U1", testStart)
	_, first := feed(c, testStart, 10*time.Second, []float64{30, 5, 5})

	c.Register("U2", testStart.Add(time.Hour))
	_, second := feed(c, testStart.Add(time.Hour), 10*time.Second, []float64{30, 5, 5})

	f1, f2 := finished(first), finished(second)
	if len(f1) != 1 || len(f2) != 1 {
		t.Fatalf("expected one finish per registration, got %d and %d", len(f1), len(f2))
	}
	if f1[0].Recipient != "U1" || f2[0].Recipient != "U2" {
		t.Errorf("unexpected recipients %q, %q", f1[0].Recipient, f2[0].Recipient)
	}
}

func TestRegisterMidCycleResets(t *testing.T) {
	tests := []struct {
		name     string
		readings []float64
		from     Phase
	}{
		{"while washing", []float64{30}, PhaseWashing},
		{"while draining", []float64{30, 5}, PhaseDraining},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCycle(testThresholds(time.Hour), testStart)
			c.Register("U1", testStart)
			feed(c, testStart, 10*time.Second, tt.readings)

			ev := c.Register("U2", testStart.Add(time.Minute))
			if ev.Type != EventRegistered {
				t.Errorf("expected REGISTERED, got %s", ev.Type)
			}
			if ev.From != tt.from || ev.To != PhaseIdle {
				t.Errorf("expected %s -> IDLE, got %s -> %s", tt.from, ev.From, ev.To)
			}

			st := c.State()
			if st.Phase != PhaseIdle {
				t.Errorf("expected IDLE, got %s", st.Phase)
			}
			if st.Recipient != "U2" {
				t.Errorf("expected recipient U2, got %q", st.Recipient)
			}
			if !st.DropSince.IsZero() {
				t.Error("expected debounce timer cleared")
			}
			if st.Notified {
				t.Error("expected notified flag cleared")
			}
		})
	}
}

func TestRegisterClearsNotifiedFlag(t *testing.T) {
	c := NewCycle(testThresholds(0), testStart)
	c.Register("U1", testStart)
	feed(c, testStart, 10*time.Second, []float64{30, 5, 5})

	if !c.State().Notified {
		t.Fatal("expected notified flag set after finish")
	}

	c.Register("U1", testStart.Add(time.Hour))
	if c.State().Notified {
		t.Error("expected notified flag cleared by registration")
	}
}

func TestEventFields(t *testing.T) {
	c := NewCycle(testThresholds(0), testStart)
	c.Register("U1", testStart)

	ev, ok := c.Process(Input{Power: 42.5, Time: testStart})
	if !ok {
		t.Fatal("expected CYCLE_STARTED")
	}
	if ev.Type != EventCycleStarted || ev.From != PhaseIdle || ev.To != PhaseWashing {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Power != 42.5 {
		t.Errorf("expected power 42.5, got %v", ev.Power)
	}
	if ev.Recipient != "" {
		t.Errorf("only CYCLE_FINISHED carries a recipient, got %q", ev.Recipient)
	}
}

func TestEventCounts(t *testing.T) {
	c := NewCycle(testThresholds(15*time.Second), testStart)
	c.Register("U1", testStart)
	feed(c, testStart, 10*time.Second, []float64{30, 5, 30, 5, 5, 5})
	c.RecordNotifyFailed()

	got := c.State().Counts
	want := EventCounts{Registered: 1, CycleStarted: 1, DrainStarted: 2, CycleResumed: 1, CycleFinished: 1, NotifyFailed: 1}
	if got != want {
		t.Errorf("counts: got %+v, want %+v", got, want)
	}
}

func TestConcurrentRegisterAndProcess(t *testing.T) {
	c := NewCycle(testThresholds(0), testStart)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			c.Register("U", testStart)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			p := 30.0
			if i%2 == 1 {
				p = 0
			}
			c.Process(Input{Power: p, Time: testStart.Add(time.Duration(i) * time.Second)})
		}
	}()
	wg.Wait()

	// A registration never coexists with a stale timer outside DRAINING.
	st := c.State()
	if st.Phase != PhaseDraining && !st.DropSince.IsZero() {
		t.Errorf("timer set in phase %s", st.Phase)
	}
}

func TestCheckHeartbeat(t *testing.T) {
	c := NewCycle(testThresholds(0), testStart)

	if hb := c.CheckHeartbeat(testStart.Add(time.Hour), 0); hb != nil {
		t.Error("heartbeat should be disabled for interval 0")
	}
	if hb := c.CheckHeartbeat(testStart.Add(10*time.Minute), 15*time.Minute); hb != nil {
		t.Error("heartbeat should not fire before interval")
	}

	hb := c.CheckHeartbeat(testStart.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}

	if hb := c.CheckHeartbeat(testStart.Add(20*time.Minute), 15*time.Minute); hb != nil {
		t.Error("heartbeat should wait a full interval after the last one")
	}
	if hb := c.CheckHeartbeat(testStart.Add(30*time.Minute), 15*time.Minute); hb == nil {
		t.Error("expected second heartbeat")
	}
}
