package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/agentui/internal/broker"
	"github.com/xiaot623/agentui/internal/config"
	"github.com/xiaot623/agentui/internal/images"
	"github.com/xiaot623/agentui/internal/logger"
	"github.com/xiaot623/agentui/internal/metrics"
	"github.com/xiaot623/agentui/internal/policy"
	"github.com/xiaot623/agentui/internal/repository"
	"github.com/xiaot623/agentui/internal/session"
	"github.com/xiaot623/agentui/internal/store"
	httpserver "github.com/xiaot623/agentui/internal/transport/http"
	v1 "github.com/xiaot623/agentui/internal/transport/http/v1"
	"github.com/xiaot623/agentui/internal/transport/ws"
)

func newServeCommand() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithPath(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			srv, err := newServer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer srv.Close()
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Directory containing config.yaml")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// server is the assembled broker process.
type server struct {
	cfg     *config.Config
	log     *logger.Logger
	echo    *echo.Echo
	broker  *broker.Broker
	images  *images.Store
	history *repository.SQLiteStore
}

func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)

	engine, err := policy.NewEngineFromFile(ctx, cfg.Policy.File)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	history, err := repository.NewSQLiteStore(cfg.History.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}

	imgs, err := images.NewStore(images.Options{
		Dir:            cfg.Images.Dir,
		MaxUploadBytes: cfg.Images.MaxUploadBytes,
	})
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("failed to initialize image store: %w", err)
	}

	m := metrics.New()
	b := broker.New(store.New(), session.NewRegistry(), broker.Config{
		DefaultTimeout: seconds(cfg.Broker.DefaultTimeout),
		MaxTimeout:     seconds(cfg.Broker.MaxTimeout),
		WaitTimeout:    cfg.Broker.WaitTimeoutDuration(),
		PollInterval:   cfg.Broker.PollInterval,
		SweepInterval:  cfg.Broker.SweepInterval,
		Retention:      cfg.Broker.Retention,
		ExpirePending:  cfg.Broker.ExpirePending,
	},
		broker.WithAdmission(engine),
		broker.WithHistory(history),
		broker.WithMetrics(m),
		broker.WithLogger(log),
	)
	m.TrackState(
		func() float64 { return float64(b.Stats().Pending) },
		func() float64 { return float64(b.Stats().Sessions) },
		func() float64 { return float64(b.Stats().Connections) },
	)

	api := v1.NewHandler(b, v1.WithImages(imgs, cfg.Images.DefaultTTL), v1.WithMetrics(m))
	push := ws.NewServer(b, ws.Config{
		PingInterval:   cfg.WS.PingInterval,
		WriteTimeout:   cfg.WS.WriteTimeout,
		ReadTimeout:    cfg.WS.ReadTimeout,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
	}, log)

	return &server{
		cfg:     cfg,
		log:     log,
		echo:    httpserver.NewServer(api, push, log),
		broker:  b,
		images:  imgs,
		history: history,
	}, nil
}

// Run serves HTTP and runs the background sweeps until ctx is done or one of them fails.
func (s *server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("agentui listening", zap.String("addr", s.cfg.Server.Addr))
		if err := s.echo.Start(s.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error { return s.broker.RunSweeper(gctx) })
	g.Go(func() error { return s.images.RunCleanup(gctx, s.cfg.Images.CleanupInterval) })
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close releases the history database and flushes the logger.
func (s *server) Close() error {
	err := s.history.Close()
	_ = s.log.Sync()
	return err
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
