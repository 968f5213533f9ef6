package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omniagentpay/payguard/internal/adapter/payment"
	"github.com/omniagentpay/payguard/internal/config"
	"github.com/omniagentpay/payguard/internal/ledger"
	"github.com/omniagentpay/payguard/internal/metrics"
	"github.com/omniagentpay/payguard/internal/repository"
	"github.com/omniagentpay/payguard/internal/service"
	"github.com/omniagentpay/payguard/internal/stream"
	transport "github.com/omniagentpay/payguard/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the payguard HTTP API",
	Long: `Run the HTTP API and the timeout monitor. Configuration is read from
environment variables (HTTP_PORT, DATABASE_URL, RULES_FILE, EXECUTOR_URL,
LEDGER_BACKEND, REDIS_ADDR, ...).`,
	RunE: serveCommand,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// app holds the wired components of a running server.
type app struct {
	service *service.Service
	server  *echo.Echo
	hub     *stream.Hub
	closers []func() error
}

func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.CombineErrors(err, a.closers[i]())
	}
	return err
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("starting payguard",
		"port", cfg.HTTPPort, "ledger", cfg.LedgerBackend, "mock_executor", cfg.ExecutorURL == "")

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := a.server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to start server")
		}
		return nil
	})
	group.Go(func() error {
		a.service.RunTimeoutMonitor(ctx)
		return nil
	})
	group.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down payguard")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("payguard stopped")
	return nil
}

// newApp wires storage, ledger, collaborators, service and HTTP server from
// cfg and seeds guards from RULES_FILE when set.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{hub: stream.NewHub(logger)}

	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize store")
	}
	a.closers = append(a.closers, store.Close)

	deps := service.Dependencies{
		Store:   store,
		Router:  payment.NewMockRouter(),
		Events:  a.hub,
		Metrics: metrics.New(),
		Logger:  logger,
		Options: service.Options{
			ExecutionTimeout:     cfg.ExecutionTimeout,
			ApprovalTimeout:      cfg.ApprovalTimeout,
			SweepInterval:        cfg.SweepInterval,
			SimulationTimeout:    cfg.SimulationTimeout,
			DefaultDailyExposure: cfg.DefaultDailyExposure,
		},
	}
	pingers := []transport.Pinger{store}

	if cfg.LedgerBackend == config.LedgerRedis {
		redisLedger := ledger.NewRedisLedger(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		a.closers = append(a.closers, redisLedger.Close)
		if err := redisLedger.Ping(ctx); err != nil {
			a.Close()
			return nil, err
		}
		deps.Spend = redisLedger
		deps.Ledger = ledger.Fanout{store, redisLedger}
		pingers = append(pingers, redisLedger)
	}

	if cfg.ExecutorURL != "" {
		deps.Executor = payment.NewHTTPExecutor(cfg.ExecutorURL, cfg.ExecutionTimeout)
	} else {
		deps.Executor = payment.NewMockExecutor(cfg.MockExecutorLatency)
	}

	a.service = service.New(deps)

	if cfg.RulesFile != "" {
		rules, err := config.LoadRules(cfg.RulesFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		n, err := a.service.SeedGuards(ctx, rules)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("seeded guards", "file", cfg.RulesFile, "created", n, "total", len(rules))
	}

	a.server = transport.NewServer(a.service, deps.Metrics, logger, pingers...)
	stream.NewHandler(a.hub, stream.Options{
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		ReadTimeout:    cfg.WSReadTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
	}, logger).RegisterRoutes(a.server)
	return a, nil
}
