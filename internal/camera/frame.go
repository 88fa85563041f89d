// Package camera produces still JPEG frames for the sampling loop.
package camera

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var ErrNoFrames = errors.New("camera: no frames available")

// Frame is one captured still. Frames written by a capturer are owned and
// removed by Discard; replayed frames are left in place.
type Frame struct {
	ID         uuid.UUID
	Path       string
	CapturedAt time.Time
	owned      bool
}

// NewFrame wraps an image already on disk. An owned frame's file is removed
// by Discard.
func NewFrame(path string, capturedAt time.Time, owned bool) *Frame {
	return &Frame{ID: uuid.New(), Path: path, CapturedAt: capturedAt, owned: owned}
}

func (f *Frame) Name() string {
	return filepath.Base(f.Path)
}

func (f *Frame) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// Discard releases the frame's image. It is safe to call more than once.
func (f *Frame) Discard() error {
	if f == nil || !f.owned {
		return nil
	}
	f.owned = false
	err := os.Remove(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Capturer takes a single still on demand.
type Capturer interface {
	Capture(ctx context.Context) (*Frame, error)
}
