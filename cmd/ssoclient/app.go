package main

import (
	"context"
	"io"
	"os"

	"github.com/jrsteele09/go-sso-client/auth"
	"github.com/jrsteele09/go-sso-client/dispatch"
	"github.com/jrsteele09/go-sso-client/idp"
	"github.com/jrsteele09/go-sso-client/internal/config"
	"github.com/jrsteele09/go-sso-client/internal/logging"
	"github.com/jrsteele09/go-sso-client/network"
	"github.com/jrsteele09/go-sso-client/redirect"
	"github.com/jrsteele09/go-sso-client/sessiondata"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/store"
	"github.com/jrsteele09/go-sso-client/store/filestore"
	"github.com/jrsteele09/go-sso-client/store/redisstore"
	"github.com/jrsteele09/go-sso-client/store/repofake"
	"github.com/jrsteele09/go-sso-client/store/sqlstore"
	"github.com/jrsteele09/go-sso-client/transport/oidcclient"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// resumeResult is what the redirect receiver hands back once a browser round trip completes.
type resumeResult struct {
	target  string
	session *sessions.Session
	err     *sessions.Error
}

// app is the object graph behind every command.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	out      io.Writer
	repo     store.Repo
	closers  []func() error
	data     *sessiondata.Data
	provider *idp.IdentityProvider
	queue    *dispatch.Queue
	monitor  *network.Monitor
	manager  *auth.SessionManager
	receiver *redirect.Receiver
	listener *printListener
	resumed  chan resumeResult
}

type appOptions struct {
	noBrowser bool
	opener    oidcclient.Opener
}

func newApp(cfg config.Config, out io.Writer, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logging.Component("ssoclient"),
		out:     out,
		resumed: make(chan resumeResult, 1),
	}

	repo, closer, err := openRepo(cfg)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	provider, err := idp.LoadFile(cfg.GetIdentityProviderFile())
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "app.newApp LoadFile")
	}
	a.provider = provider

	data, err := registry.Open(repo, sessiondata.WithLogger(logging.Component("sessiondata")))
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "app.newApp Open")
	}
	a.data = data

	opener := opts.opener
	if opener == nil {
		opener = openBrowser
		if opts.noBrowser {
			opener = printURL(out)
		}
	}
	client := oidcclient.New(
		oidcclient.WithOpener(opener),
		oidcclient.WithIDTokenVerification(cfg.GetVerifyIDTokenSignature()),
		oidcclient.WithTimeout(cfg.GetTransportTimeout()),
		oidcclient.WithLogger(logging.Component("oidcclient")),
	)

	checker, err := network.NewDialChecker(provider.DiscoveryEndpoint(), cfg.GetNetworkCheckTimeout())
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "app.newApp NewDialChecker")
	}
	a.monitor = network.NewMonitor(checker,
		network.WithInterval(cfg.GetNetworkPollInterval()),
		network.WithLogger(logging.Component("network")))

	a.queue = dispatch.NewQueue(dispatch.WithLogger(logging.Component("dispatch")))
	a.closers = append(a.closers, func() error {
		a.queue.Close()
		return nil
	})

	logout := redirect.NewLogoutService(data, redirect.Opener(opener), redirect.WithLogoutLogger(logging.Component("logout")))
	a.manager, err = auth.NewSessionManager(data, provider, client, logout, checker,
		auth.WithDispatcher(a.queue),
		auth.WithMonitor(a.monitor),
		auth.WithClockSkewTolerance(cfg.GetClockSkewTolerance()),
		auth.WithRefreshTolerance(cfg.GetTokenRefreshTolerance()),
		auth.WithPKCE(cfg.GetRequirePKCE()),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "app.newApp NewSessionManager")
	}

	a.receiver = redirect.NewReceiver(data, client, redirect.ResumerFunc(a.resume),
		redirect.WithDispatcher(a.queue),
		redirect.WithSessionOptions(sessions.WithClockSkewTolerance(cfg.GetClockSkewTolerance())),
		redirect.WithReceiverLogger(logging.Component("redirect")))

	a.listener = newPrintListener(out)
	a.manager.AddListener(a.listener)
	return a, nil
}

var registry = sessiondata.NewRegistry()

// openRepo builds the durable store selected by the configuration.
func openRepo(cfg config.Config) (store.Repo, func() error, error) {
	switch cfg.GetStoreBackend() {
	case config.StoreBackendMemory:
		return repofake.NewFakeStoreRepo(cfg.GetStoreName()), nil, nil
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.GetRedisAddr()})
		repo, err := redisstore.New(client, cfg.GetStoreName(), redisstore.WithTimeout(cfg.GetTransportTimeout()))
		if err != nil {
			_ = client.Close()
			return nil, nil, errors.Wrap(err, "openRepo redisstore.New")
		}
		return repo, client.Close, nil
	case config.StoreBackendSQL:
		if err := os.MkdirAll(cfg.GetDataFolder(), 0o700); err != nil {
			return nil, nil, errors.Wrap(err, "openRepo MkdirAll")
		}
		repo, err := sqlstore.Open(cfg.GetStorePath(), cfg.GetStoreName())
		if err != nil {
			return nil, nil, errors.Wrap(err, "openRepo sqlstore.Open")
		}
		return repo, repo.Close, nil
	default:
		if err := os.MkdirAll(cfg.GetDataFolder(), 0o700); err != nil {
			return nil, nil, errors.Wrap(err, "openRepo MkdirAll")
		}
		repo, err := filestore.New(cfg.GetStorePath(), filestore.WithHexKey(cfg.GetStoreKey()))
		if err != nil {
			return nil, nil, errors.Wrap(err, "openRepo filestore.New")
		}
		return repo, nil, nil
	}
}

func (a *app) resume(target string, session *sessions.Session, err *sessions.Error) {
	select {
	case a.resumed <- resumeResult{target: target, session: session, err: err}:
	default:
		a.logger.Warn().Str("target", target).Msg("resume dropped, nobody waiting")
	}
}

// initialize runs Initialize and waits for the listener to see its outcome.
func (a *app) initialize(ctx context.Context) {
	a.manager.Initialize(ctx)
	a.queue.Flush()
}

// Close releases the store and the dispatcher. It is safe to call more than once.
func (a *app) Close() {
	if a.manager != nil {
		a.manager.Dispose()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
	if a.repo != nil {
		registry.Forget(a.repo.Name())
	}
}
