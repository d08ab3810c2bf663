package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/age-gender-ui/internal/config"
	"github.com/example/age-gender-ui/internal/display"
	"github.com/example/age-gender-ui/internal/handlers"
	"github.com/example/age-gender-ui/internal/inferenceclient"
	"github.com/example/age-gender-ui/internal/logging"
	"github.com/example/age-gender-ui/internal/sample"
	"github.com/example/age-gender-ui/internal/session"
	"github.com/example/age-gender-ui/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Server.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	store, closeStore := initDisplayStore(cfg, logger)
	defer closeStore()

	router, sessions := buildApp(cfg, store, logger)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		logger.Info("age/gender UI listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("inference_url", cfg.Inference.URL),
			zap.String("display_store", cfg.Display.Store),
		)
		return serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		sessions.RunSweeper(gctx, cfg.Session.SweepEvery, cfg.Session.IdleTTL)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildApp wires the page session registry and the routes over store.
func buildApp(cfg *config.Config, store display.Store, logger *zap.Logger) (*gin.Engine, *session.Registry) {
	processor := inferenceclient.New(cfg.Inference.URL, inferenceclient.Options{
		Timeout:        cfg.Inference.Timeout,
		MaxResultBytes: cfg.Inference.MaxResultBytes,
	}, logger)
	fetcher := initSampleFetcher(cfg)

	sessions := session.NewRegistry(func(sessionID string) *upload.Controller {
		return upload.NewController(processor, store, fetcher, logging.WithSession(logger, sessionID))
	}, logger).WithMaxSessions(cfg.Session.MaxLive)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	handlers.RegisterRoutes(r, handlers.Dependencies{
		Sessions:      sessions,
		Feeder:        sample.NewFeeder(),
		Store:         store,
		Static:        http.Dir(cfg.Samples.StaticDir),
		MaxUploadSize: cfg.Server.MaxUploadBytes,
		Logger:        logger,
	})
	return r, sessions
}

func initDisplayStore(cfg *config.Config, zapLogger *zap.Logger) (display.Store, func()) {
	if cfg.Display.Store != config.StoreRedis {
		return display.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
	}
	return display.NewRedisStore(client, cfg.Display.TTL, zapLogger), func() {
		if err := client.Close(); err != nil {
			zapLogger.Warn("failed to close redis client", zap.Error(err))
		}
	}
}

func initSampleFetcher(cfg *config.Config) upload.SampleFetcher {
	if cfg.Samples.BaseURL != "" {
		return sample.NewHTTPFetcher(cfg.Samples.BaseURL, nil).WithMaxBytes(cfg.Server.MaxUploadBytes)
	}
	return sample.NewFSFetcher(os.DirFS(cfg.Samples.StaticDir))
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
