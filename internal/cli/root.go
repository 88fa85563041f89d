// Package cli implements the dashcam command line.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/idohaver7/PatrolVision/internal/config"
	"github.com/idohaver7/PatrolVision/internal/platform"
	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the dashcam CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "dashcam",
		Short:         "PatrolVision dashcam",
		Long:          "Samples the dashboard camera, detects traffic violations and reports them to the PatrolVision server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath(), "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func setupLogging(w io.Writer, verbose bool) {
	log.SetHandler(logcli.New(w))
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfig reads the config file and applies its log level unless
// --verbose already asked for debug output.
func (o *RootOptions) loadConfig() (*config.Manager, error) {
	mgr, err := config.NewManager(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if !o.Verbose {
		if lvl, err := log.ParseLevel(mgr.Get().LogLevel); err == nil {
			log.SetLevel(lvl)
		}
	}
	return mgr, nil
}

// newPlatformClient returns a client carrying the stored token.
func newPlatformClient(cfg config.Config) *platform.Client {
	timeout := cfg.Server.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := platform.NewClient(cfg.Server.URL, timeout)
	client.SetToken(cfg.Server.Token)
	return client
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "dashcam %s (built %s)\n", Version, BuildTime)
			return nil
		},
	}
}
