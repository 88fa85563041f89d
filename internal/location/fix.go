// Package location tracks the vehicle's current position. A Tracker reads a
// Source and keeps only the latest fix in a Cell owned by the capture session.
package location

import (
	"math"
	"sync/atomic"
	"time"
)

// Fix is the most recent position known to the client.
type Fix struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy"`
	SpeedKmh       int       `json:"speedKmh"`
	At             time.Time `json:"at"`
}

// Reading is a raw position update from a Source. SpeedMps is nil when the
// receiver does not report speed.
type Reading struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	SpeedMps       *float64
	At             time.Time
}

// SpeedKmh converts metres per second to whole km/h. Missing or negative
// speeds report 0.
func SpeedKmh(mps *float64) int {
	if mps == nil || *mps < 0 || math.IsNaN(*mps) {
		return 0
	}
	return int(math.Round(*mps * 3.6))
}

func FromReading(r Reading) Fix {
	return Fix{
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		AccuracyMeters: r.AccuracyMeters,
		SpeedKmh:       SpeedKmh(r.SpeedMps),
		At:             r.At,
	}
}

// Cell holds a single fix. Every Store replaces the previous value.
type Cell struct {
	p atomic.Pointer[Fix]
}

func (c *Cell) Store(f Fix) {
	c.p.Store(&f)
}

// Load returns a copy of the current fix, or nil before the first fix.
func (c *Cell) Load() *Fix {
	f := c.p.Load()
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

func (c *Cell) Clear() {
	c.p.Store(nil)
}
