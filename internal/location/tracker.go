package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
)

// Source produces position readings. Next blocks until a reading is
// available; io.EOF ends the stream. Close must unblock a pending Next.
type Source interface {
	Next(ctx context.Context) (Reading, error)
	Close() error
}

// Opener acquires a Source when tracking starts.
type Opener func(ctx context.Context) (Source, error)

type Status int32

const (
	StatusStopped Status = iota
	StatusSearching
	StatusTracking
)

func (s Status) String() string {
	switch s {
	case StatusSearching:
		return "searching"
	case StatusTracking:
		return "tracking"
	default:
		return "stopped"
	}
}

// Tracker owns a Source for the lifetime between Start and Stop and writes
// every fix into its Cell.
type Tracker struct {
	open Opener
	cell *Cell

	// ErrorBackoff is the pause after a failed read before trying again.
	ErrorBackoff time.Duration

	mu     sync.Mutex
	src    Source
	cancel context.CancelFunc
	done   chan struct{}
	status atomic.Int32

	fixes  atomic.Uint64
	errors atomic.Uint64
}

func NewTracker(open Opener, cell *Cell) *Tracker {
	return &Tracker{
		open:         open,
		cell:         cell,
		ErrorBackoff: time.Second,
	}
}

// Start acquires the source and begins reading. Calling Start on a running
// tracker is a no-op.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.src != nil {
		return nil
	}

	src, err := t.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open location source: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.src = src
	t.cancel = cancel
	t.done = make(chan struct{})
	t.status.Store(int32(StatusSearching))

	go t.readLoop(loopCtx, src, t.done)
	log.Info("📍 location tracking started")
	return nil
}

// Stop releases the source and waits for the read loop to exit. It is safe to
// call more than once and before Start.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.src == nil {
		return
	}

	t.cancel()
	if err := t.src.Close(); err != nil {
		log.WithError(err).Warn("failed to close location source")
	}
	<-t.done

	t.src = nil
	t.cancel = nil
	t.status.Store(int32(StatusStopped))
	log.Info("📍 location tracking stopped")
}

func (t *Tracker) Status() Status {
	return Status(t.status.Load())
}

// Current returns the latest fix, or nil when none has been received.
func (t *Tracker) Current() *Fix {
	return t.cell.Load()
}

type TrackerStats struct {
	Status string `json:"status"`
	Fixes  uint64 `json:"fixes"`
	Errors uint64 `json:"errors"`
}

func (t *Tracker) Stats() TrackerStats {
	return TrackerStats{
		Status: t.Status().String(),
		Fixes:  t.fixes.Load(),
		Errors: t.errors.Load(),
	}
}

func (t *Tracker) readLoop(ctx context.Context, src Source, done chan struct{}) {
	defer close(done)

	for {
		reading, err := src.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			log.Warn("⚠️ location source ended")
			t.status.Store(int32(StatusSearching))
			return
		}
		if err != nil {
			t.errors.Add(1)
			t.status.Store(int32(StatusSearching))
			log.WithError(err).Warn("⚠️ location read failed, searching")

			select {
			case <-ctx.Done():
				return
			case <-time.After(t.ErrorBackoff):
			}
			continue
		}

		t.cell.Store(FromReading(reading))
		t.fixes.Add(1)
		t.status.Store(int32(StatusTracking))
	}
}
