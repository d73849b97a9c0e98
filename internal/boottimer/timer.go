// Package boottimer measures how long a kernel takes from printing its boot marker on the debug
// console until the emulator closes the console connection, relaunching the emulator after every
// run.
package boottimer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultAddr   = "localhost:3400"
	DefaultMarker = "KO"
)

type Emulator interface {
	Launch(ctx context.Context) error
}

type Measurement struct {
	Connected time.Time
	// Elapsed runs from the last marker to the end of the connection. It is zero when no marker
	// was seen.
	Elapsed    time.Duration
	MarkerSeen bool
}

type Timer struct {
	addr      string
	marker    string
	emulator  Emulator
	durations prometheus.Histogram
	now       func() time.Time

	resultsCh chan Measurement

	listener net.Listener
	started  bool
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewTimer creates a timer listening on addr. The duration histogram is registered with reg when
// reg is not nil.
func NewTimer(addr string, emulator Emulator, reg prometheus.Registerer) (*Timer, error) {
	if emulator == nil {
		return nil, errors.New("emulator is required")
	}
	if addr == "" {
		addr = DefaultAddr
	}
	durations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ksymtool",
		Name:      "boot_duration_seconds",
		Help:      "Time from the kernel boot marker until the debug console closed.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	if reg != nil {
		if err := reg.Register(durations); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Timer{
		addr:      addr,
		marker:    DefaultMarker,
		emulator:  emulator,
		durations: durations,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		resultsCh: make(chan Measurement, 16),
	}, nil
}

func (t *Timer) Results() <-chan Measurement { return t.resultsCh }

// Addr returns the bound listener address once started.
func (t *Timer) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *Timer) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("boot timer already started")
	}
	l, err := net.Listen("tcp", t.addr)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.listener = l
	t.started = true
	t.mu.Unlock()

	slog.Info("Waiting for debug console connections", "addr", l.Addr().String())
	if err := t.emulator.Launch(t.ctx); err != nil {
		l.Close()
		t.mu.Lock()
		t.started = false
		t.mu.Unlock()
		return err
	}

	t.wg.Add(1)
	go t.acceptLoop(l)
	return nil
}

func (t *Timer) Stop() error {
	t.cancel()

	t.mu.Lock()
	var closeErr error
	if t.listener != nil {
		closeErr = t.listener.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()

	t.mu.Lock()
	if t.started {
		close(t.resultsCh)
	}
	t.started = false
	t.mu.Unlock()
	if errors.Is(closeErr, net.ErrClosed) {
		return nil
	}
	return closeErr
}

func (t *Timer) acceptLoop(l net.Listener) {
	defer t.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("Failed to accept debug console connection", "error", err)
			continue
		}
		t.wg.Add(1)
		go t.handle(conn)
	}
}

func (t *Timer) handle(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()
	stop := context.AfterFunc(t.ctx, func() { conn.Close() })
	defer stop()

	m := Measurement{Connected: t.now()}
	slog.Debug("Debug console connected", "remote", conn.RemoteAddr().String())

	var start time.Time
	var total strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			total.Write(buf[:n])
			if strings.Contains(total.String(), t.marker) {
				start = t.now()
				m.MarkerSeen = true
				total.Reset()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && t.ctx.Err() == nil {
				slog.Warn("Debug console read failed", "error", err)
			}
			break
		}
	}
	if t.ctx.Err() != nil {
		return
	}

	if m.MarkerSeen {
		m.Elapsed = t.now().Sub(start)
		t.durations.Observe(m.Elapsed.Seconds())
	} else {
		slog.Warn("Debug console closed before the boot marker was seen", "marker", t.marker)
	}

	select {
	case t.resultsCh <- m:
	case <-t.ctx.Done():
		return
	}

	if err := t.emulator.Launch(t.ctx); err != nil {
		slog.Error("Failed to relaunch emulator", "error", err)
	}
}
