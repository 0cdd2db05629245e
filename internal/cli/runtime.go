package cli

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/config"
	"github.com/tOgg1/chatsync/internal/connection"
	"github.com/tOgg1/chatsync/internal/conversation"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/metrics"
	"github.com/tOgg1/chatsync/internal/reconnect"
	"github.com/tOgg1/chatsync/internal/transport/websocket"
)

const metricsShutdownTimeout = 2 * time.Second

// sessionOptions tune the conversation a command opens.
type sessionOptions struct {
	// logOutput replaces stderr when no log file is configured.
	logOutput  io.Writer
	callbacks  conversation.Callbacks
	background bool
}

// runtime is one opened conversation and everything wired beneath it.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Collector
	manager *connection.Manager
	conv    *conversation.Conversation

	metricsServer *http.Server
	metricsAddr   string

	cancel         context.CancelFunc
	supervisorDone chan struct{}
	supervisorErr  error
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.configFile != "" {
		a.loader.SetConfigFile(a.configFile)
	}
	cfg, err := a.loader.Load()
	if err != nil {
		return nil, &ExitError{Code: ExitCodeConfig, Err: err}
	}
	return cfg, nil
}

// open loads configuration and connects a conversation with the peer.
func (a *app) open(ctx context.Context, opts sessionOptions) (*runtime, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       opts.logOutput,
		File:         cfg.Logging.File,
		EnableCaller: cfg.Logging.EnableCaller,
	}); err != nil {
		return nil, Exitf(ExitCodeConfig, "logging: %v", err)
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  logging.Component("cli"),
		metrics: metrics.New(),
	}
	if cfg.Metrics.Addr != "" {
		if err := rt.serveMetrics(cfg.Metrics.Addr); err != nil {
			_ = logging.Close()
			return nil, Exitf(ExitCodeFailure, "serve metrics: %v", err)
		}
	}

	dialer := websocket.NewDialer(cfg.Server.URL,
		websocket.WithDialTimeout(cfg.Server.DialTimeout),
		websocket.WithWriteTimeout(cfg.Server.WriteTimeout),
		websocket.WithReadLimit(cfg.Server.ReadLimit),
		websocket.WithPingInterval(cfg.Server.PingInterval),
		websocket.WithLogger(logging.Component("websocket")),
	)
	rt.manager = connection.NewManager(dialer,
		connection.WithMetrics(rt.metrics),
		connection.WithWriteTimeout(cfg.Server.WriteTimeout),
	)

	logger := logging.Component("conversation")
	conv, err := conversation.Open(ctx, rt.manager, conversation.Options{
		UserID:            cfg.User.ID,
		PeerID:            cfg.Conversation.PeerID,
		PageLimit:         cfg.Conversation.PageLimit,
		MarkReadOnConnect: cfg.Conversation.MarkReadOnConnect,
		Dedupe:            cfg.Conversation.Dedupe,
		StartInBackground: opts.background,
		Callbacks:         opts.callbacks,
		Logger:            &logger,
		Metrics:           rt.metrics,
	})
	if err != nil {
		rt.Close()
		return nil, Exitf(ExitCodeFailure, "connect to %s: %v", logging.RedactURL(cfg.Server.URL), err)
	}
	rt.conv = conv

	if cfg.Reconnect.Enabled {
		rt.superviseReconnects(ctx)
	}
	rt.logger.Info().
		Str("server", logging.RedactURL(cfg.Server.URL)).
		Int64("user_id", cfg.User.ID).
		Int64("peer_id", cfg.Conversation.PeerID).
		Msg("conversation opened")
	return rt, nil
}

func (rt *runtime) superviseReconnects(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	rt.supervisorDone = make(chan struct{})

	supervisor := reconnect.New(rt.manager,
		reconnect.WithInterval(rt.cfg.Reconnect.Interval),
		reconnect.WithMaxAttempts(rt.cfg.Reconnect.MaxAttempts),
		reconnect.WithLogger(logging.Component("reconnect")),
		reconnect.WithMetrics(rt.metrics),
	)
	go func() {
		err := supervisor.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			rt.logger.Error().Err(err).Msg("reconnect supervisor stopped")
		}
		rt.supervisorErr = err
		close(rt.supervisorDone)
	}()
}

// reconnecting reports whether channel losses are retried.
func (rt *runtime) reconnecting() bool {
	return rt.supervisorDone != nil
}

// supervisorStopped is closed once the reconnect supervisor returns. It is
// nil when reconnects are disabled.
func (rt *runtime) supervisorStopped() <-chan struct{} {
	return rt.supervisorDone
}

func (rt *runtime) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	rt.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	rt.metricsAddr = ln.Addr().String()
	go func() {
		if err := rt.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	rt.logger.Info().Str("addr", rt.metricsAddr).Msg("serving metrics")
	return nil
}

// Close tears the conversation down and stops background goroutines.
func (rt *runtime) Close() {
	if rt.conv != nil {
		if err := rt.conv.Close(); err != nil {
			rt.logger.Debug().Err(err).Msg("close conversation")
		}
	}
	if rt.manager != nil {
		_ = rt.manager.Close()
	}
	if rt.cancel != nil {
		rt.cancel()
		<-rt.supervisorDone
	}
	if rt.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = rt.metricsServer.Shutdown(ctx)
	}
	if err := logging.Close(); err != nil {
		rt.logger.Debug().Err(err).Msg("close log file")
	}
}
