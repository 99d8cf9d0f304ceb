package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/go-sso-client/auth"
	"github.com/jrsteele09/go-sso-client/events"
	"github.com/jrsteele09/go-sso-client/internal/config"
	"github.com/jrsteele09/go-sso-client/internal/logging"
	"github.com/jrsteele09/go-sso-client/redirect"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/transport/oidcclient"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	loginTarget  = "ssoclient://login"
	logoutTarget = "ssoclient://logout"

	defaultRedirectWait = 5 * time.Minute
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	noBrowser    bool
	redirectWait time.Duration
	cfg          config.Config
	opener       oidcclient.Opener
}

func (o *rootOptions) appOptions() appOptions {
	return appOptions{noBrowser: o.noBrowser, opener: o.opener}
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{})
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ssoclient",
		Short: "Manage a single sign-on session against an OpenID Connect provider",
		Long: `ssoclient keeps an OpenID Connect session in a durable store shared by every
process that opens the same store name. The identity provider registration is read
from the file named by SSO_IDP_FILE.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.cfg = config.New()
			logging.New(opts.cfg.GetLogLevel(), opts.cfg.GetEnv())
		},
	}
	rootCmd.PersistentFlags().BoolVar(&opts.noBrowser, "no-browser", false, "print URLs instead of launching a browser")
	rootCmd.PersistentFlags().DurationVar(&opts.redirectWait, "wait", defaultRedirectWait, "how long to wait for the browser redirect")

	rootCmd.AddCommand(NewInitCommand(opts))
	rootCmd.AddCommand(NewLoginCommand(opts))
	rootCmd.AddCommand(NewStatusCommand(opts))
	rootCmd.AddCommand(NewRefreshCommand(opts))
	rootCmd.AddCommand(NewLogoutCommand(opts))
	rootCmd.AddCommand(NewResetCommand(opts))
	rootCmd.AddCommand(NewWatchCommand(opts))
	return rootCmd
}

func NewInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Restore the stored session and bring it up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, cmd.OutOrStdout(), opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()

			a.initialize(cmd.Context())
			if serr := a.listener.LastError(); serr != nil {
				return serr
			}
			printSession(cmd.OutOrStdout(), a.manager.Session())
			return nil
		},
	}
}

func NewLoginCommand(opts *rootOptions) *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		Long: `login opens the provider's authorization page and waits on the loopback
redirect URI for the result. Use --prompt=login to force re-authentication.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(opts.cfg, cmd.OutOrStdout(), opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()

			a.initialize(ctx)
			if !a.manager.IsInitialized() {
				if serr := a.listener.LastError(); serr != nil {
					return serr
				}
				return errors.New("session manager did not initialize")
			}

			shutdown, err := a.serveRedirects()
			if err != nil {
				return err
			}
			defer shutdown()

			var params map[string]string
			if prompt != "" {
				params = map[string]string{"prompt": prompt}
			}
			a.listener.setError(nil)
			a.manager.Authorize(ctx, loginTarget, params)
			a.queue.Flush()
			if serr := a.listener.LastError(); serr != nil {
				return serr
			}

			result, err := a.waitForResume(ctx, opts.redirectWait)
			if err != nil {
				return err
			}
			if result.err != nil {
				return result.err
			}
			printSession(cmd.OutOrStdout(), result.session)
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt parameter sent to the authorization endpoint")
	return cmd
}

func NewStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session without contacting the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, cmd.OutOrStdout(), opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()

			printSession(cmd.OutOrStdout(), a.manager.Session())
			return nil
		},
	}
}

func NewRefreshCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Return a fresh session, refreshing the tokens when they are close to expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, cmd.OutOrStdout(), opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()

			a.initialize(cmd.Context())
			var (
				session *sessions.Session
				serr    *sessions.Error
			)
			callback := func(s *sessions.Session, e *sessions.Error) {
				session, serr = s, e
			}
			if force {
				a.manager.RefreshSession(cmd.Context(), callback)
			} else {
				a.manager.GetFreshSession(cmd.Context(), callback)
			}
			a.queue.Flush()
			if serr != nil {
				return serr
			}
			if session == nil {
				return errors.New("no session returned")
			}
			printSession(cmd.OutOrStdout(), session)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "refresh even when the tokens are still fresh")
	return cmd
}

func NewLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session at the provider and clear the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(opts.cfg, cmd.OutOrStdout(), opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()

			a.initialize(ctx)
			shutdown, err := a.serveRedirects()
			if err != nil {
				return err
			}
			defer shutdown()

			a.listener.setError(nil)
			a.manager.Logout(ctx, logoutTarget)
			a.queue.Flush()
			if serr := a.listener.LastError(); serr != nil {
				return serr
			}

			if _, err := a.waitForResume(ctx, opts.redirectWait); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func NewResetCommand(opts *rootOptions) *cobra.Command {
	var sessionOnly bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the durable store",
		Long: `reset removes every stored value, including the identity provider and
discovery metadata. With --session-only the tokens are cleared and discovery is kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionOnly {
				a, err := newApp(opts.cfg, cmd.OutOrStdout(), opts.appOptions())
				if err != nil {
					return err
				}
				defer a.Close()
				a.manager.SessionReset()
				fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
				return nil
			}

			repo, closer, err := openRepo(opts.cfg)
			if err != nil {
				return err
			}
			if closer != nil {
				defer func() { _ = closer() }()
			}
			registry.Forget(repo.Name())
			if err := auth.DataReset(repo); err != nil {
				return errors.Wrap(err, "reset DataReset")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&sessionOnly, "session-only", false, "clear tokens only, keeping discovery metadata")
	return cmd
}

func NewWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the session fresh and report session and network changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			displayAppname(opts.cfg.GetAppName())
			a, err := newApp(opts.cfg, cmd.OutOrStdout(), opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()

			a.manager.RegisterForEvent(a.listener, events.LoginComplete)
			a.manager.RegisterForEvent(a.listener, events.LogoutComplete)
			a.initialize(ctx)

			shutdown, err := a.serveRedirects()
			if err != nil {
				return err
			}
			defer shutdown()

			go a.monitor.Run(ctx)
			a.keepFresh(ctx)
			return nil
		},
	}
}

// serveRedirects listens on the callback address for the provider's redirects.
// The returned func shuts the listener down.
func (a *app) serveRedirects() (func(), error) {
	handler, err := redirect.NewHandler(a.receiver, a.provider)
	if err != nil {
		return nil, errors.Wrap(err, "app.serveRedirects NewHandler")
	}
	ln, err := net.Listen("tcp", a.cfg.GetCallbackListenAddr())
	if err != nil {
		return nil, errors.Wrap(err, "app.serveRedirects Listen")
	}
	server := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("redirect listener stopped")
		}
	}()
	a.logger.Debug().Str("addr", ln.Addr().String()).Msg("listening for redirects")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("redirect listener shutdown failed")
		}
	}, nil
}

func (a *app) waitForResume(ctx context.Context, wait time.Duration) (resumeResult, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case result := <-a.resumed:
		return result, nil
	case <-timer.C:
		return resumeResult{}, errors.Errorf("no redirect received within %s", wait)
	case <-ctx.Done():
		return resumeResult{}, ctx.Err()
	}
}

// keepFresh asks for a fresh session every poll interval until ctx is done.
func (a *app) keepFresh(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.GetNetworkPollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.manager.IsInitialized() {
				a.manager.Initialize(ctx)
				continue
			}
			a.manager.GetFreshSession(ctx, func(*sessions.Session, *sessions.Error) {})
		case result := <-a.resumed:
			if result.err != nil {
				a.logger.Warn().Str("target", result.target).Err(result.err).Msg("redirect failed")
			}
		}
	}
}
