package location

import (
	"context"
	"time"

	"github.com/idohaver7/PatrolVision/internal/clock"
)

// StaticSource reports the same position at a fixed interval. The first
// reading is returned immediately.
type StaticSource struct {
	reading  Reading
	interval time.Duration
	clock    clock.Clock

	ticker clock.Ticker
	closed chan struct{}
	first  bool
}

func NewStaticSource(lat, lng, accuracy float64, interval time.Duration, clk clock.Clock) *StaticSource {
	if clk == nil {
		clk = clock.Real{}
	}
	return &StaticSource{
		reading:  Reading{Latitude: lat, Longitude: lng, AccuracyMeters: accuracy},
		interval: interval,
		clock:    clk,
		ticker:   clk.NewTicker(interval),
		closed:   make(chan struct{}),
		first:    true,
	}
}

func (s *StaticSource) Next(ctx context.Context) (Reading, error) {
	select {
	case <-s.closed:
		return Reading{}, context.Canceled
	default:
	}

	if !s.first {
		select {
		case <-ctx.Done():
			return Reading{}, ctx.Err()
		case <-s.closed:
			return Reading{}, context.Canceled
		case <-s.ticker.C():
		}
	}
	s.first = false

	r := s.reading
	r.At = s.clock.Now()
	return r, nil
}

func (s *StaticSource) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
		s.ticker.Stop()
	}
	return nil
}
