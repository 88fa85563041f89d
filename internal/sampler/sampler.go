// Package sampler drives the capture -> detect loop. A tick is skipped while
// a previous round trip is still running or when the last one started less
// than MinInterval ago, so there is never more than one frame in flight.
package sampler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/idohaver7/PatrolVision/internal/camera"
	"github.com/idohaver7/PatrolVision/internal/clock"
	"github.com/idohaver7/PatrolVision/internal/detector"
)

const (
	DefaultPeriod      = time.Second
	DefaultMinInterval = 1000 * time.Millisecond
)

type Detector interface {
	Analyze(ctx context.Context, frame *camera.Frame) (detector.Result, error)
}

// ViolationHandler receives positive detections and takes ownership of the
// frame. It runs inside the in-flight window, so sampling is paused until it
// returns.
type ViolationHandler func(ctx context.Context, frame *camera.Frame, result detector.Result)

type Config struct {
	Period      time.Duration
	MinInterval time.Duration
}

type Sampler struct {
	cfg         Config
	capturer    camera.Capturer
	detector    Detector
	onViolation ViolationHandler
	clock       clock.Clock

	mu          sync.Mutex
	inFlight    bool
	lastStarted time.Time
	wg          sync.WaitGroup

	ticks           atomic.Uint64
	skippedBusy     atomic.Uint64
	skippedInterval atomic.Uint64
	captures        atomic.Uint64
	captureErrors   atomic.Uint64
	detections      atomic.Uint64
	detectErrors    atomic.Uint64
	violations      atomic.Uint64
}

func New(cfg Config, capturer camera.Capturer, det Detector, onViolation ViolationHandler, clk clock.Clock) *Sampler {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sampler{
		cfg:         cfg,
		capturer:    capturer,
		detector:    det,
		onViolation: onViolation,
		clock:       clk,
	}
}

// Run ticks until ctx is cancelled, then waits for the in-flight round trip.
func (s *Sampler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	log.WithField("period", s.cfg.Period).Info("🎥 sampling started")
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			log.Info("🎥 sampling stopped")
			return
		case <-ticker.C():
			s.Tick(ctx)
		}
	}
}

// Tick starts one capture -> detect round trip unless the guard says skip.
// It reports whether a round trip was started.
func (s *Sampler) Tick(ctx context.Context) bool {
	s.ticks.Add(1)
	if ctx.Err() != nil {
		return false
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.skippedBusy.Add(1)
		return false
	}
	now := s.clock.Now()
	if !s.lastStarted.IsZero() && now.Sub(s.lastStarted) < s.cfg.MinInterval {
		s.mu.Unlock()
		s.skippedInterval.Add(1)
		return false
	}
	s.inFlight = true
	s.lastStarted = now
	s.wg.Add(1)
	s.mu.Unlock()

	go s.process(ctx)
	return true
}

func (s *Sampler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Wait blocks until the current round trip, if any, has finished.
func (s *Sampler) Wait() {
	s.wg.Wait()
}

func (s *Sampler) process(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	frame, err := s.capturer.Capture(ctx)
	if err != nil {
		s.captureErrors.Add(1)
		if ctx.Err() == nil {
			log.WithError(err).Warn("⚠️ capture failed")
		}
		return
	}
	s.captures.Add(1)

	// Results that arrive after the session ended are dropped.
	if ctx.Err() != nil {
		discard(frame)
		return
	}

	result, err := s.detector.Analyze(ctx, frame)
	if err != nil {
		s.detectErrors.Add(1)
		if ctx.Err() == nil {
			log.WithError(err).WithField("frame", frame.ID).Debug("analysis failed, treating as clean")
		}
		discard(frame)
		return
	}
	s.detections.Add(1)

	if ctx.Err() != nil || !result.ViolationDetected {
		discard(frame)
		return
	}

	s.violations.Add(1)
	log.WithFields(log.Fields{
		"frame": frame.ID,
		"type":  result.ViolationType,
	}).Info("🚨 violation detected")

	if s.onViolation == nil {
		discard(frame)
		return
	}
	s.onViolation(ctx, frame, result)
}

func discard(frame *camera.Frame) {
	if err := frame.Discard(); err != nil {
		log.WithError(err).WithField("frame", frame.ID).Warn("failed to discard frame")
	}
}

type Stats struct {
	Ticks           uint64 `json:"ticks"`
	SkippedBusy     uint64 `json:"skippedBusy"`
	SkippedInterval uint64 `json:"skippedInterval"`
	Captures        uint64 `json:"captures"`
	CaptureErrors   uint64 `json:"captureErrors"`
	Detections      uint64 `json:"detections"`
	DetectErrors    uint64 `json:"detectErrors"`
	Violations      uint64 `json:"violations"`
}

func (s *Sampler) Stats() Stats {
	return Stats{
		Ticks:           s.ticks.Load(),
		SkippedBusy:     s.skippedBusy.Load(),
		SkippedInterval: s.skippedInterval.Load(),
		Captures:        s.captures.Load(),
		CaptureErrors:   s.captureErrors.Load(),
		Detections:      s.detections.Load(),
		DetectErrors:    s.detectErrors.Load(),
		Violations:      s.violations.Load(),
	}
}
