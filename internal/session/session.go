// Package session runs one capture session: location tracking, frame
// sampling and the report flow, all bound to a single context. Cancelling
// the context ends the session.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/idohaver7/PatrolVision/internal/camera"
	"github.com/idohaver7/PatrolVision/internal/clock"
	"github.com/idohaver7/PatrolVision/internal/detector"
	"github.com/idohaver7/PatrolVision/internal/location"
	"github.com/idohaver7/PatrolVision/internal/reporter"
	"github.com/idohaver7/PatrolVision/internal/sampler"
)

type Config struct {
	Sampler sampler.Config
}

type Session struct {
	cfg      Config
	open     location.Opener
	capturer camera.Capturer
	detector sampler.Detector
	policy   reporter.Policy
	clock    clock.Clock

	// cell is written only by the tracker and read at detection time.
	cell *location.Cell

	mu      sync.Mutex
	tracker *location.Tracker
	sampler *sampler.Sampler
	reports map[reporter.Outcome]int
}

// New prepares a session. A nil opener runs without location; reports then
// carry no position.
func New(cfg Config, open location.Opener, capturer camera.Capturer, det sampler.Detector, policy reporter.Policy, clk clock.Clock) *Session {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Session{
		cfg:      cfg,
		open:     open,
		capturer: capturer,
		detector: det,
		policy:   policy,
		clock:    clk,
		cell:     &location.Cell{},
		reports:  make(map[reporter.Outcome]int),
	}
}

// Run blocks until ctx is cancelled. Location is released on every exit
// path and background submits are awaited before returning.
func (s *Session) Run(ctx context.Context) error {
	if s.open != nil {
		tracker := location.NewTracker(s.open, s.cell)
		if err := tracker.Start(ctx); err != nil {
			return fmt.Errorf("location unavailable: %w", err)
		}
		defer tracker.Stop()

		s.mu.Lock()
		s.tracker = tracker
		s.mu.Unlock()
	}

	smp := sampler.New(s.cfg.Sampler, s.capturer, s.detector, s.onViolation, s.clock)
	s.mu.Lock()
	s.sampler = smp
	s.mu.Unlock()

	smp.Run(ctx)
	s.policy.Wait()

	stats := s.Stats()
	log.WithFields(log.Fields{
		"captures":   stats.Sampler.Captures,
		"violations": stats.Sampler.Violations,
		"submitted":  stats.Reports[reporter.OutcomeSubmitted.String()] + stats.Reports[reporter.OutcomeQueued.String()],
	}).Info("🛑 capture session ended")
	return nil
}

// onViolation snapshots the location at detection time and hands the report
// to the policy.
func (s *Session) onViolation(ctx context.Context, frame *camera.Frame, result detector.Result) {
	report := reporter.NewReport(result, frame, s.cell.Load(), s.clock.Now())
	if ctx.Err() != nil {
		if err := frame.Discard(); err != nil {
			log.WithError(err).WithField("frame", frame.ID).Warn("failed to discard frame")
		}
		return
	}

	outcome := s.policy.Handle(ctx, report)

	s.mu.Lock()
	s.reports[outcome]++
	s.mu.Unlock()
}

// Location returns the latest fix, or nil.
func (s *Session) Location() *location.Fix {
	return s.cell.Load()
}

type Stats struct {
	Location location.TrackerStats `json:"location"`
	Sampler  sampler.Stats         `json:"sampler"`
	Reports  map[string]int        `json:"reports"`
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	if s.tracker != nil {
		st.Location = s.tracker.Stats()
	} else {
		st.Location.Status = location.StatusStopped.String()
	}
	if s.sampler != nil {
		st.Sampler = s.sampler.Stats()
	}
	st.Reports = make(map[string]int, len(s.reports))
	for k, v := range s.reports {
		st.Reports[k.String()] = v
	}
	return st
}
