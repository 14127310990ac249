package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/go-chi/chi/v5"
	"github.com/samber/do"
	"github.com/serroba/ipguard/internal/container"
	"github.com/serroba/ipguard/internal/ratelimit"
	"go.uber.org/zap"
)

func registerPackages(injector *do.Injector, options *container.Options) {
	do.ProvideValue(injector, options)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.PostgresPackage(injector)
	container.StorePackage(injector)
	container.MetricsPackage(injector)
	container.PublisherGroupPackage(injector)
	container.RateLimitPackage(injector)
	container.SweeperPackage(injector)
	container.HTTPPackage(injector)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *container.Options) {
		injector := do.New()
		registerPackages(injector, options)

		logger := do.MustInvoke[*zap.Logger](injector)

		var server, adminServer *http.Server

		hooks.OnStart(func() {
			router := do.MustInvoke[*chi.Mux](injector)

			// Invoke API to trigger route registration
			_ = do.MustInvoke[huma.API](injector)

			if options.SweepInterval > 0 {
				sweeper := do.MustInvoke[*ratelimit.Sweeper](injector)
				if err := sweeper.Start(context.Background()); err != nil {
					logger.Fatal("sweeper failed to start", zap.Error(err))
				}
			}

			if options.AdminPort > 0 {
				adminServer = &http.Server{
					Addr:              fmt.Sprintf(":%d", options.AdminPort),
					Handler:           do.MustInvoke[*container.AdminRouter](injector),
					ReadHeaderTimeout: 10 * time.Second,
				}

				go func() {
					logger.Info("admin server starting", zap.Int("port", options.AdminPort))

					if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Fatal("admin server failed", zap.Error(err))
					}
				}()
			}

			server = &http.Server{
				Addr:              fmt.Sprintf(":%d", options.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info("server starting",
				zap.Int("port", options.Port),
				zap.String("store", options.Store),
				zap.Bool("events", options.Events),
			)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("server failed", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			logger.Info("shutting down")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if server != nil {
				if err := server.Shutdown(ctx); err != nil {
					logger.Error("server shutdown error", zap.Error(err))
				}
			}

			if adminServer != nil {
				if err := adminServer.Shutdown(ctx); err != nil {
					logger.Error("admin server shutdown error", zap.Error(err))
				}
			}

			if err := injector.Shutdown(); err != nil {
				logger.Error("service shutdown error", zap.Error(err))
			}

			logger.Info("shutdown complete")
			_ = logger.Sync()
		})
	})

	cli.Run()
}
