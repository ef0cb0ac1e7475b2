package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"jobradar/internal/app"
	"jobradar/internal/config"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer container.Close()

	fiberApp := app.BuildHTTP(container)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		container.Hub.Run(gctx)
		return nil
	})

	if cfg.Scheduler.Enabled {
		container.Scheduler.Start(gctx)
	} else {
		container.Scheduler.BindContext(gctx)
		container.Logger.Printf("[App] scheduler disabled | reason=SCHEDULER_ENABLED=false")
	}

	g.Go(func() error {
		container.Logger.Printf("[App] http listening | port=%s", cfg.App.HTTPPort)
		return fiberApp.Listen(":" + cfg.App.HTTPPort)
	})

	g.Go(func() error {
		<-gctx.Done()
		container.Logger.Printf("[App] shutting down")
		return fiberApp.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		container.Logger.Printf("[App] exited | err=%v", err)
	}
}
