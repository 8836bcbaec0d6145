package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jaminalder/minesweeper/internal/app"
	"github.com/jaminalder/minesweeper/internal/config"
	"github.com/jaminalder/minesweeper/internal/logger"
	"github.com/jaminalder/minesweeper/internal/web"
)

// Version is set at build time.
var Version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logger.New(cfg.LogLevel, cfg.LogJSON)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := app.NewService(
		app.WithLogger(log),
		app.WithMetrics(app.NewMetrics(reg)),
		app.WithLimits(cfg.MaxWidth, cfg.MaxHeight),
	)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := web.NewServer(svc, web.Options{
		Log:         log,
		Gatherer:    reg,
		CORSOrigins: cfg.CORSOrigins,
		Heartbeat:   cfg.Heartbeat,
		Defaults:    app.Settings{Width: cfg.Width, Height: cfg.Height, Mines: cfg.Mines},
	})
	// Request contexts derive from ctx so open event streams end on shutdown.
	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).WithField("version", Version).Info("server started")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen failed")
		}
	case <-ctx.Done():
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}
	}
}
