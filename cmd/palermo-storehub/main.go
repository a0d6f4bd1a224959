package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/palermobot/internal/config"
	"github.com/EgorLis/palermobot/internal/rthub"
	"github.com/EgorLis/palermobot/internal/store/memstore"
)

func main() {
	cfg, err := config.LoadHub(os.Args[1:], os.Stderr)
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []memstore.Option{memstore.WithLogger(logger)}

	var snaps *rthub.Snapshots
	if cfg.DBPath != "" {
		snaps, err = rthub.OpenSnapshots(cfg.DBPath)
		if err != nil {
			log.Fatal(err)
		}
		defer snaps.Close()

		doc, err := snaps.Load(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if doc != nil {
			opts = append(opts, memstore.WithDocument(doc))
			logger.Info("state restored from snapshot", "db", cfg.DBPath)
		}
	}
	st := memstore.New(opts...)
	hub := rthub.NewServer(st, rthub.WithLogger(logger))

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "ok version=%d clients=%d\n", st.Version(), hub.Connections())
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("store hub listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if snaps != nil {
		g.Go(func() error {
			rthub.RunSnapshots(gctx, st, snaps, cfg.SnapshotInterval, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("store hub stopped")
}
