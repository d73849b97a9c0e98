package boottimer

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
)

type mockEmulator struct {
	mu       sync.Mutex
	launches int
	err      error
}

func (m *mockEmulator) Launch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launches++
	return m.err
}

func (m *mockEmulator) Launches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launches
}

// fakeClock returns the queued instants in order and repeats the last one.
type fakeClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return t
}

func startTimer(t *testing.T, emu Emulator, reg prometheus.Registerer) *Timer {
	t.Helper()
	timer, err := NewTimer("127.0.0.1:0", emu, reg)
	if err != nil {
		t.Fatalf("NewTimer: %v", err)
	}
	if err := timer.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return timer
}

func send(t *testing.T, addr net.Addr, chunks ...string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	for _, c := range chunks {
		if _, err := conn.Write([]byte(c)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	conn.Close()
}

func waitMeasurement(t *testing.T, timer *Timer) Measurement {
	t.Helper()
	select {
	case m := <-timer.Results():
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a measurement")
	}
	return Measurement{}
}

func TestTimer_MeasuresFromMarkerToClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	base := time.Unix(100, 0)
	clock := &fakeClock{times: []time.Time{base, base.Add(time.Second), base.Add(1500 * time.Millisecond)}}
	emu := &mockEmulator{}
	reg := prometheus.NewRegistry()

	timer, err := NewTimer("127.0.0.1:0", emu, reg)
	if err != nil {
		t.Fatalf("NewTimer: %v", err)
	}
	timer.now = clock.Now
	if err := timer.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if emu.Launches() != 1 {
		t.Fatalf("expected emulator to be launched on start, got %d launches", emu.Launches())
	}

	send(t, timer.Addr(), "booting...K", "O", " shutting down")
	m := waitMeasurement(t, timer)
	if !m.MarkerSeen {
		t.Fatalf("expected the split marker to be detected")
	}
	if m.Elapsed != 500*time.Millisecond {
		t.Fatalf("unexpected elapsed time: %v", m.Elapsed)
	}
	if !m.Connected.Equal(base) {
		t.Fatalf("unexpected connect time: %v", m.Connected)
	}

	if err := timer.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if emu.Launches() != 2 {
		t.Fatalf("expected a relaunch after the run, got %d launches", emu.Launches())
	}
	if n, err := testutil.GatherAndCount(reg, "ksymtool_boot_duration_seconds"); err != nil || n != 1 {
		t.Fatalf("expected histogram to be registered, got %d metrics (%v)", n, err)
	}
	if _, ok := <-timer.Results(); ok {
		t.Fatalf("expected results channel to be closed after Stop")
	}
}

func TestTimer_NoMarker(t *testing.T) {
	defer goleak.VerifyNone(t)

	emu := &mockEmulator{}
	timer := startTimer(t, emu, nil)
	defer timer.Stop()

	send(t, timer.Addr(), "panic before boot finished")
	m := waitMeasurement(t, timer)
	if m.MarkerSeen || m.Elapsed != 0 {
		t.Fatalf("expected no marker, got %+v", m)
	}
}

func TestTimer_StartTwiceFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	timer := startTimer(t, &mockEmulator{}, nil)
	defer timer.Stop()
	if err := timer.Start(); err == nil {
		t.Fatalf("expected second Start to fail")
	}
}

func TestTimer_LaunchFailureAbortsStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	wantErr := errors.New("qemu not found")
	timer, err := NewTimer("127.0.0.1:0", &mockEmulator{err: wantErr}, nil)
	if err != nil {
		t.Fatalf("NewTimer: %v", err)
	}
	if err := timer.Start(); !errors.Is(err, wantErr) {
		t.Fatalf("expected launch error, got %v", err)
	}
	if err := timer.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestTimer_StopClosesOpenConnections(t *testing.T) {
	defer goleak.VerifyNone(t)

	emu := &mockEmulator{}
	timer := startTimer(t, emu, nil)

	conn, err := net.Dial("tcp", timer.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("KO")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- timer.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return with an open connection")
	}
	if emu.Launches() != 1 {
		t.Fatalf("emulator must not be relaunched during shutdown, got %d launches", emu.Launches())
	}
}

func TestNewTimer_RequiresEmulator(t *testing.T) {
	if _, err := NewTimer("", nil, nil); err == nil {
		t.Fatalf("expected error without emulator")
	}
}
