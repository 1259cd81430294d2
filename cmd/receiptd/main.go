package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"receiptd/internal/app"
	"receiptd/internal/buildinfo"
	"receiptd/internal/config"
	"receiptd/internal/logger"
	redisrepo "receiptd/internal/repo/redis"
	sqliterepo "receiptd/internal/repo/sqlite"
	"receiptd/internal/rpc"
	"receiptd/internal/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath  string
		addr     string
		backend  string
		logLevel string
		version  bool
	)
	flagSet := pflag.NewFlagSet("receiptd", pflag.ContinueOnError)
	flagSet.StringVar(&cfgPath, "config", os.Getenv("RECEIPTD_CONFIG"), "path to YAML config (optional)")
	flagSet.StringVar(&addr, "addr", "", "listen address, overrides http.addr")
	flagSet.StringVar(&backend, "backend", "", "storage backend: memory, redis or sqlite")
	flagSet.StringVar(&logLevel, "log-level", "", "log level, overrides log.level")
	flagSet.BoolVar(&version, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if version {
		fmt.Println(buildinfo.String("receiptd"))
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	if backend != "" {
		cfg.Storage.Backend = backend
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *goredis.Client
	if cfg.Storage.Backend == config.BackendRedis || cfg.Events.RedisChannel != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.Storage.Redis.Addr, err)
		}
	}

	store, err := openBackend(cfg, redisClient, log)
	if err != nil {
		return err
	}

	var sinks []app.Sink
	if cfg.Events.RedisChannel != "" {
		sinks = append(sinks, redisrepo.NewPublisher(redisClient, cfg.Events.RedisChannel))
	}

	eng, err := app.NewEngine(app.Options{
		Backend:   store,
		Logger:    log,
		Sinks:     sinks,
		KeyPath:   cfg.Node.KeyPath,
		DataDir:   cfg.Storage.DataDir,
		HubBuffer: cfg.Events.Buffer,
	})
	if err != nil {
		_ = store.Close()
		return err
	}
	defer eng.Close()

	routerOpts := rpc.Options{Logger: log, Binding: cfg.Binding}
	if redisClient != nil {
		routerOpts.Nonces = redisrepo.NewNonceStore(redisClient, cfg.Storage.Redis.Prefix)
	}
	handler, err := rpc.NewRouter(eng, routerOpts)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("receiptd listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("backend", cfg.Storage.Backend),
			zap.String("version", buildinfo.Version),
			zap.String("pubkey_hex", eng.PubKeyHex()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown http server", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func openBackend(cfg config.Config, redisClient *goredis.Client, log *zap.Logger) (state.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		return redisrepo.NewBackend(redisClient, cfg.Storage.Redis.Prefix), nil
	case config.BackendSQLite:
		return sqliterepo.Open(sqliterepo.Config{Path: cfg.Storage.SQLitePath, Logger: log})
	default:
		return state.NewMemoryBackend(), nil
	}
}
