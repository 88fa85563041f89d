package camera

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
)

type FFmpegConfig struct {
	// Input is an RTSP/HTTP URL or a V4L2 device such as /dev/video0.
	Input       string
	WorkDir     string
	Width       int
	Height      int
	JPEGQuality int // 1-100, default 75
	Timeout     time.Duration
	FFmpegPath  string
}

// FFmpegCapturer grabs one frame per call by running ffmpeg.
type FFmpegCapturer struct {
	cfg FFmpegConfig
	now func() time.Time
}

func NewFFmpegCapturer(cfg FFmpegConfig) (*FFmpegCapturer, error) {
	if cfg.Input == "" {
		return nil, fmt.Errorf("camera input is required")
	}
	if cfg.FFmpegPath == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("FFmpeg not found in PATH")
		}
		cfg.FFmpegPath = path
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "patrolvision-frames")
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 75
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	return &FFmpegCapturer{cfg: cfg, now: time.Now}, nil
}

func (c *FFmpegCapturer) Capture(ctx context.Context) (*Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	frame := &Frame{ID: uuid.New(), CapturedAt: c.now(), owned: true}
	frame.Path = filepath.Join(c.cfg.WorkDir, frame.ID.String()+".jpg")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, c.buildArgs(frame.Path)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		frame.Discard()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("capture timed out: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		log.WithField("input", c.cfg.Input).Debugf("ffmpeg: %s", msg)
		return nil, fmt.Errorf("ffmpeg capture failed: %w", err)
	}

	if info, err := os.Stat(frame.Path); err != nil || info.Size() == 0 {
		frame.Discard()
		return nil, fmt.Errorf("ffmpeg produced no image")
	}
	return frame, nil
}

func (c *FFmpegCapturer) buildArgs(out string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
	}

	switch {
	case strings.HasPrefix(c.cfg.Input, "rtsp://"):
		args = append(args, "-rtsp_transport", "tcp")
	case strings.HasPrefix(c.cfg.Input, "/dev/video"):
		args = append(args, "-f", "v4l2")
	}
	args = append(args, "-i", c.cfg.Input, "-frames:v", "1")

	if c.cfg.Width > 0 && c.cfg.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", c.cfg.Width, c.cfg.Height))
	}

	// Convert 1-100 to ffmpeg's 31-1 scale
	q := 31 - (c.cfg.JPEGQuality * 30 / 100)
	if q < 1 {
		q = 1
	}
	if q > 31 {
		q = 31
	}
	return append(args, "-q:v", fmt.Sprintf("%d", q), "-y", out)
}
