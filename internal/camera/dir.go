package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirCapturer replays the JPEGs in a directory in name order, wrapping
// around at the end. Useful for bench runs against recorded footage.
type DirCapturer struct {
	mu    sync.Mutex
	files []string
	next  int
	now   func() time.Time
}

func NewDirCapturer(dir string) (*DirCapturer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, ErrNoFrames
	}
	sort.Strings(files)
	return &DirCapturer{files: files, now: time.Now}, nil
}

func (c *DirCapturer) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	path := c.files[c.next]
	c.next = (c.next + 1) % len(c.files)
	c.mu.Unlock()

	return NewFrame(path, c.now(), false), nil
}
