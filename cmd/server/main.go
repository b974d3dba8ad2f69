package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/restatedev/sdk-go/server"
	"go.uber.org/fx"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/api"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/changefeed"
	appconfig "github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/config"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/secrets"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/telemetry"
)

func newLogger(cfg appconfig.Config) *log.Logger {
	prefix := ""
	if cfg.ServiceName != "" {
		prefix = fmt.Sprintf("[%s] ", cfg.ServiceName)
	}
	logger := log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds)
	log.SetOutput(os.Stdout)
	log.SetFlags(logger.Flags())
	log.SetPrefix(prefix)
	return logger
}

func setupTelemetry(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = telemetry.InitTracer(ctx, cfg.ServiceName)
			if err != nil {
				// Tracing is optional; keep serving without it.
				logger.Printf("WARNING: tracing disabled: %v", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown != nil {
				return shutdown(ctx)
			}
			return nil
		},
	})
}

func registerWebServer(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger, shutdowner fx.Shutdowner, deps api.Deps) {
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Printf("HTTP API listening on %s", displayAddr(cfg.HTTP.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Printf("HTTP server error: %v", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	})
}

// registerChangeRelay runs the order watch for the life of the process.
func registerChangeRelay(lc fx.Lifecycle, logger *log.Logger, shutdowner fx.Shutdowner, relay *changefeed.Relay) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := relay.Run(ctx); err != nil {
					logger.Printf("change relay stopped with error: %v", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

func registerRestateServer(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger, shutdowner fx.Shutdowner, srv *server.Restate) {
	if !cfg.Restate.Enabled {
		logger.Println("Restate endpoint disabled (RESTATE_ENABLED=false)")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Println("Restate server listening on", cfg.Restate.ListenAddr)
			logger.Printf("  - %s: VIRTUAL OBJECT (keyed by {shopId}:{orderId})", order.ServiceName)
			logger.Printf("  register with: restate deployments register http://%s", displayAddr(cfg.Restate.ListenAddr))

			go func() {
				defer close(done)
				if err := srv.Start(ctx, cfg.Restate.ListenAddr); err != nil && !errors.Is(err, context.Canceled) {
					logger.Printf("Restate server error: %v", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func main() {
	_ = godotenv.Load()
	if n, err := secrets.BootstrapFromOpenBao(context.Background()); err != nil {
		log.Printf("WARNING: OpenBao bootstrap failed: %v", err)
	} else if n > 0 {
		log.Printf("Loaded %d secrets from OpenBao", n)
	}

	app := fx.New(
		fx.Provide(
			appconfig.Load,
			newLogger,
			newFirebaseApp,
			newStore,
			newMessenger,
			newTokenVerifier,
			newGateway,
			newAuthzClient,
			newKafkaProducer,
			order.NewRepository,
			order.NewMachine,
			shop.NewDirectory,
			newIntentMapper,
			newCallbackVerifier,
			newDispatcher,
			newChangeRelay,
			newAPIDeps,
			newRestateServer,
		),
		fx.Invoke(
			func(logger *log.Logger, cfg appconfig.Config) {
				logger.Printf("Starting %s (store=%s authz=%s kafka=%v)...", cfg.ServiceName, cfg.Store.Backend, cfg.Authz.Mode, cfg.Kafka.Enabled())
			},
			setupTelemetry,
			registerWebServer,
			registerChangeRelay,
			registerRestateServer,
		),
	)

	app.Run()
}

