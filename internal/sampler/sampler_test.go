package sampler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	logdiscard "github.com/apex/log/handlers/discard"
	"github.com/idohaver7/PatrolVision/internal/camera"
	"github.com/idohaver7/PatrolVision/internal/clock"
	"github.com/idohaver7/PatrolVision/internal/detector"
	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetHandler(logdiscard.New())
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeCapturer writes an owned frame per call. When gate is set every capture
// waits for a value on it.
type fakeCapturer struct {
	dir   string
	gate  chan struct{}
	err   error
	calls atomic.Int32
}

func (c *fakeCapturer) Capture(ctx context.Context) (*camera.Frame, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	path := filepath.Join(c.dir, time.Now().Format("150405.000000000")+".jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0644); err != nil {
		return nil, err
	}
	return camera.NewFrame(path, time.Now(), true), nil
}

type fakeDetector struct {
	result detector.Result
	err    error
	hook   func()
	calls  atomic.Int32
	active *atomic.Int32
	peak   *atomic.Int32
}

func (d *fakeDetector) Analyze(ctx context.Context, f *camera.Frame) (detector.Result, error) {
	d.calls.Add(1)
	if d.active != nil {
		n := d.active.Add(1)
		for {
			m := d.peak.Load()
			if n <= m || d.peak.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		d.active.Add(-1)
	}
	if d.hook != nil {
		d.hook()
	}
	return d.result, d.err
}

func positive() detector.Result {
	plate := "ABC123"
	return detector.Result{ViolationDetected: true, ViolationType: models.ViolationRedLight, LicensePlate: &plate}
}

func TestMinIntervalGuard(t *testing.T) {
	clk := clock.NewMock(epoch)
	capt := &fakeCapturer{err: errors.New("camera busy")}
	s := New(Config{}, capt, &fakeDetector{}, nil, clk)
	ctx := context.Background()

	require.True(t, s.Tick(ctx))
	s.Wait()
	assert.False(t, s.InFlight(), "capture failure clears the in-flight flag")

	clk.Advance(500 * time.Millisecond)
	assert.False(t, s.Tick(ctx))
	clk.Advance(499 * time.Millisecond)
	assert.False(t, s.Tick(ctx))
	assert.Equal(t, int32(1), capt.calls.Load(), "skipped ticks issue no capture")

	clk.Advance(time.Millisecond)
	require.True(t, s.Tick(ctx))
	s.Wait()

	stats := s.Stats()
	assert.Equal(t, uint64(4), stats.Ticks)
	assert.Equal(t, uint64(2), stats.SkippedInterval)
	assert.Equal(t, uint64(2), stats.CaptureErrors)
}

func TestBusyGuard(t *testing.T) {
	clk := clock.NewMock(epoch)
	capt := &fakeCapturer{dir: t.TempDir(), gate: make(chan struct{})}
	det := &fakeDetector{}
	s := New(Config{}, capt, det, nil, clk)
	ctx := context.Background()

	require.True(t, s.Tick(ctx))
	for i := 0; i < 5; i++ {
		clk.Advance(2 * time.Second)
		assert.False(t, s.Tick(ctx))
	}
	assert.Equal(t, uint64(5), s.Stats().SkippedBusy)

	capt.gate <- struct{}{}
	s.Wait()
	assert.Equal(t, int32(1), det.calls.Load())

	clk.Advance(time.Second)
	require.True(t, s.Tick(ctx))
	capt.gate <- struct{}{}
	s.Wait()
}

func TestAtMostOneRoundTripInFlight(t *testing.T) {
	clk := clock.NewMock(epoch)
	var active, peak atomic.Int32
	capt := &fakeCapturer{dir: t.TempDir()}
	det := &fakeDetector{active: &active, peak: &peak}
	s := New(Config{MinInterval: time.Millisecond}, capt, det, nil, clk)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				clk.Advance(time.Second)
				s.Tick(ctx)
			}
		}()
	}
	wg.Wait()
	s.Wait()

	assert.Equal(t, int32(1), peak.Load())
	stats := s.Stats()
	assert.Equal(t, uint64(1600), stats.Ticks)
	assert.Equal(t, stats.Ticks, stats.SkippedBusy+stats.SkippedInterval+stats.Captures+stats.CaptureErrors)
}

func TestNegativeDetectionDiscardsFrame(t *testing.T) {
	dir := t.TempDir()
	called := false
	s := New(Config{}, &fakeCapturer{dir: dir}, &fakeDetector{}, func(context.Context, *camera.Frame, detector.Result) {
		called = true
	}, clock.NewMock(epoch))

	require.True(t, s.Tick(context.Background()))
	s.Wait()

	assert.False(t, called, "clean frames never reach the report flow")
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestDetectFailureIsTreatedAsClean(t *testing.T) {
	dir := t.TempDir()
	called := false
	s := New(Config{}, &fakeCapturer{dir: dir}, &fakeDetector{err: errors.New("timeout")}, func(context.Context, *camera.Frame, detector.Result) {
		called = true
	}, clock.NewMock(epoch))

	require.True(t, s.Tick(context.Background()))
	s.Wait()

	assert.False(t, called)
	assert.Equal(t, uint64(1), s.Stats().DetectErrors)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestViolationHandlerRunsInsideInFlightWindow(t *testing.T) {
	clk := clock.NewMock(epoch)
	var s *Sampler
	var got detector.Result
	var frame *camera.Frame
	s = New(Config{}, &fakeCapturer{dir: t.TempDir()}, &fakeDetector{result: positive()}, func(ctx context.Context, f *camera.Frame, r detector.Result) {
		assert.True(t, s.InFlight())
		clk.Advance(5 * time.Second)
		assert.False(t, s.Tick(ctx), "sampling is paused while a report is handled")
		got, frame = r, f
	}, clk)

	require.True(t, s.Tick(context.Background()))
	s.Wait()

	require.NotNil(t, frame)
	assert.Equal(t, models.ViolationRedLight, got.ViolationType)
	assert.FileExists(t, frame.Path, "the handler owns the frame")
	assert.Equal(t, uint64(1), s.Stats().Violations)
}

func TestCancelledResultIsDropped(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	called := false
	det := &fakeDetector{result: positive(), hook: cancel}
	s := New(Config{}, &fakeCapturer{dir: dir}, det, func(context.Context, *camera.Frame, detector.Result) {
		called = true
	}, clock.NewMock(epoch))

	require.True(t, s.Tick(ctx))
	s.Wait()

	assert.False(t, called)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
	assert.False(t, s.Tick(ctx))
}

func TestRunStopsOnCancel(t *testing.T) {
	clk := clock.NewMock(epoch)
	capt := &fakeCapturer{dir: t.TempDir()}
	s := New(Config{}, capt, &fakeDetector{}, nil, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		return capt.calls.Load() >= 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
