package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/idohaver7/PatrolVision/internal/config"
	"github.com/spf13/cobra"
)

type loginOptions struct {
	*RootOptions
	Email    string
	Password string
}

// NewLoginCommand signs in and stores the bearer token in the config file.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &loginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the PatrolVision server",
		Long: `Sign in with an email and password and save the session token to the
config file. The password is read from stdin when --password is omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "account email (defaults to server.email)")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "account password")

	return cmd
}

func runLogin(cmd *cobra.Command, opts *loginOptions) error {
	mgr, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.Get()

	email := opts.Email
	if email == "" {
		email = cfg.Server.Email
	}
	if email == "" {
		return fmt.Errorf("--email is required")
	}

	password := opts.Password
	if password == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	client := newPlatformClient(cfg)
	result, err := client.Login(cmd.Context(), email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := mgr.Update(func(c *config.Config) {
		c.Server.Email = email
		c.Server.Token = result.Token
	}); err != nil {
		return err
	}

	log.WithField("config", mgr.Path()).Debug("token saved")
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Logged in as %s (%s)\n", result.User.Email, result.User.Role)
	return nil
}
