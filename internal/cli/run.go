package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/idohaver7/PatrolVision/internal/camera"
	"github.com/idohaver7/PatrolVision/internal/config"
	"github.com/idohaver7/PatrolVision/internal/detector"
	"github.com/idohaver7/PatrolVision/internal/location"
	"github.com/idohaver7/PatrolVision/internal/platform"
	"github.com/idohaver7/PatrolVision/internal/reporter"
	"github.com/idohaver7/PatrolVision/internal/sampler"
	"github.com/idohaver7/PatrolVision/internal/session"
	"github.com/idohaver7/PatrolVision/internal/terminal"
	"github.com/spf13/cobra"
)

// staticFixInterval is how often a fixed position is re-reported.
const staticFixInterval = time.Second

type runOptions struct {
	*RootOptions
	Mode      string
	Input     string
	FramesDir string
	Location  string
	Detector  string
}

// NewRunCommand starts a capture session.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a capture session",
		Long: `Start sampling the camera and reporting detected violations.

In confirm mode every detection is shown for review before it is sent.
In auto mode detections are sent immediately and the notice clears itself.
Press Ctrl+C to end the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "report mode (auto|confirm), overrides report.mode")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "camera device or stream URL, overrides camera.input")
	cmd.Flags().StringVar(&opts.FramesDir, "frames-dir", "", "replay JPEG frames from a directory instead of the camera")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location source (serial|static|none), overrides location.source")
	cmd.Flags().StringVar(&opts.Detector, "detector", "", "analysis endpoint URL, overrides detector.url")

	return cmd
}

// apply merges command line overrides into cfg.
func (o *runOptions) apply(cfg *config.Config) {
	if o.Mode != "" {
		cfg.Report.Mode = config.ReportMode(o.Mode)
	}
	if o.Input != "" {
		cfg.Camera.Input = o.Input
		cfg.Camera.FramesDir = ""
	}
	if o.FramesDir != "" {
		cfg.Camera.FramesDir = o.FramesDir
	}
	if o.Location != "" {
		cfg.Location.Source = config.LocationSource(o.Location)
	}
	if o.Detector != "" {
		cfg.Detector.URL = o.Detector
	}
}

func runSession(cmd *cobra.Command, opts *runOptions) error {
	mgr, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newPlatformClient(cfg)
	if err := ensureLoggedIn(ctx, client, mgr); err != nil {
		return err
	}

	capturer, err := newCapturer(cfg.Camera)
	if err != nil {
		return err
	}

	term := terminal.New(cmd.InOrStdin(), cmd.OutOrStdout())
	policy := newPolicy(cfg.Report, client, term)

	sess := session.New(session.Config{
		Sampler: sampler.Config{
			Period:      cfg.Sampling.Period.Std(),
			MinInterval: cfg.Sampling.MinInterval.Std(),
		},
	},
		locationOpener(cfg.Location),
		capturer,
		detector.NewClient(cfg.Detector.URL, cfg.Detector.Timeout.Std(), nil),
		policy,
		nil,
	)

	log.WithFields(log.Fields{
		"mode":     cfg.Report.Mode,
		"location": cfg.Location.Source,
		"detector": cfg.Detector.URL,
	}).Info("🚀 capture session started")

	return sess.Run(ctx)
}

// ensureLoggedIn signs in with the stored credentials when no token is saved.
func ensureLoggedIn(ctx context.Context, client *platform.Client, mgr *config.Manager) error {
	if client.Token() != "" {
		return nil
	}
	cfg := mgr.Get()
	if cfg.Server.Email == "" || cfg.Server.Password == "" {
		return errors.New("not logged in: run 'dashcam login' first")
	}

	result, err := client.Login(ctx, cfg.Server.Email, cfg.Server.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := mgr.SetToken(result.Token); err != nil {
		log.WithError(err).Warn("⚠️  failed to save token")
	}
	return nil
}

func newCapturer(cfg config.CameraConfig) (camera.Capturer, error) {
	if cfg.FramesDir != "" {
		return camera.NewDirCapturer(cfg.FramesDir)
	}
	return camera.NewFFmpegCapturer(camera.FFmpegConfig{
		Input:       cfg.Input,
		WorkDir:     cfg.WorkDir,
		Width:       cfg.Width,
		Height:      cfg.Height,
		JPEGQuality: cfg.JPEGQuality,
		Timeout:     cfg.Timeout.Std(),
	})
}

func newPolicy(cfg config.ReportConfig, sub reporter.Submitter, term *terminal.Terminal) reporter.Policy {
	if cfg.Mode == config.ModeAuto {
		p := reporter.NewAutoPolicy(sub, term, nil)
		if d := cfg.DismissAfter.Std(); d > 0 {
			p.DismissAfter = d
		}
		return p
	}
	return reporter.NewConfirmPolicy(sub, term)
}

// locationOpener returns nil when location is disabled.
func locationOpener(cfg config.LocationConfig) location.Opener {
	switch cfg.Source {
	case config.LocationSerial:
		return func(ctx context.Context) (location.Source, error) {
			src, err := location.OpenSerial(cfg.Port, cfg.Baud)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
	case config.LocationStatic:
		return func(ctx context.Context) (location.Source, error) {
			return location.NewStaticSource(cfg.Latitude, cfg.Longitude, 0, staticFixInterval, nil), nil
		}
	default:
		return nil
	}
}
