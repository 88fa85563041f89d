package session

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
	"github.com/apex/log/handlers/discard"
	"github.com/idohaver7/PatrolVision/internal/camera"
	"github.com/idohaver7/PatrolVision/internal/clock"
	"github.com/idohaver7/PatrolVision/internal/detector"
	"github.com/idohaver7/PatrolVision/internal/location"
	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/idohaver7/PatrolVision/internal/reporter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetHandler(discard.New())
}

type switchDetector struct {
	positive atomic.Bool
}

func (d *switchDetector) Analyze(ctx context.Context, f *camera.Frame) (detector.Result, error) {
	if !d.positive.Load() {
		return detector.Result{}, nil
	}
	d.positive.Store(false)
	plate := "ABC123"
	return detector.Result{ViolationDetected: true, ViolationType: models.ViolationRedLight, LicensePlate: &plate}, nil
}

type recordingPolicy struct {
	mu      sync.Mutex
	reports []reporter.Report
	waited  bool
}

func (p *recordingPolicy) Handle(ctx context.Context, r reporter.Report) reporter.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return reporter.OutcomeSubmitted
}

func (p *recordingPolicy) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = true
}

func (p *recordingPolicy) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}

func frameDir(t *testing.T) camera.Capturer {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001.jpg"), []byte("jpeg"), 0644))
	c, err := camera.NewDirCapturer(dir)
	require.NoError(t, err)
	return c
}

func TestSessionReportsWithLocationSnapshot(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	var src *location.StaticSource
	opener := func(context.Context) (location.Source, error) {
		src = location.NewStaticSource(32.08, 34.78, 5, time.Second, clk)
		return src, nil
	}
	det := &switchDetector{}
	policy := &recordingPolicy{}
	s := New(Config{}, opener, frameDir(t), det, policy, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Location() != nil }, 2*time.Second, time.Millisecond)
	det.positive.Store(true)
	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		return policy.count() == 1
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}

	policy.mu.Lock()
	r := policy.reports[0]
	waited := policy.waited
	policy.mu.Unlock()

	assert.True(t, waited)
	assert.Equal(t, models.ViolationRedLight, r.ViolationType)
	assert.Equal(t, "ABC123", r.LicensePlate)
	require.NotNil(t, r.Location)
	assert.Equal(t, 32.08, r.Location.Latitude)
	assert.Equal(t, 34.78, r.Location.Longitude)

	_, err := src.Next(context.Background())
	assert.Error(t, err, "location source is released when the session ends")

	stats := s.Stats()
	assert.Equal(t, 1, stats.Reports["submitted"])
	assert.Equal(t, uint64(1), stats.Sampler.Violations)
}

func TestSessionWithoutLocation(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	det := &switchDetector{}
	det.positive.Store(true)
	policy := &recordingPolicy{}
	s := New(Config{}, nil, frameDir(t), det, policy, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		return policy.count() == 1
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	policy.mu.Lock()
	defer policy.mu.Unlock()
	assert.Nil(t, policy.reports[0].Location)
	lat, lng := policy.reports[0].Coordinates()
	assert.Zero(t, lat)
	assert.Zero(t, lng)
	assert.Equal(t, "stopped", s.Stats().Location.Status)
}

func TestSessionLocationDenied(t *testing.T) {
	policy := &recordingPolicy{}
	s := New(Config{}, func(context.Context) (location.Source, error) {
		return nil, errors.New("permission denied")
	}, frameDir(t), &switchDetector{}, policy, clock.NewMock(time.Now()))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location unavailable")
	assert.Equal(t, 0, policy.count())
}

func TestDetectionAfterCancelDiscardsFrame(t *testing.T) {
	policy := &recordingPolicy{}
	s := New(Config{}, nil, frameDir(t), &switchDetector{}, policy, clock.NewMock(time.Now()))

	path := filepath.Join(t.TempDir(), "late.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0644))
	frame := camera.NewFrame(path, time.Now(), true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.onViolation(ctx, frame, detector.Result{ViolationDetected: true, ViolationType: models.ViolationRedLight})

	assert.Zero(t, policy.count())
	assert.NoFileExists(t, path)

	// A frame that cannot be removed is logged and dropped.
	require.NoError(t, os.Mkdir(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "x"), nil, 0644))
	assert.NotPanics(t, func() {
		s.onViolation(ctx, camera.NewFrame(path, time.Now(), true), detector.Result{ViolationDetected: true})
	})
	assert.Zero(t, policy.count())
}
