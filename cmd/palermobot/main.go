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

	"github.com/gorilla/websocket"

	"github.com/EgorLis/palermobot/internal/bot"
	"github.com/EgorLis/palermobot/internal/config"
	"github.com/EgorLis/palermobot/internal/game"
	"github.com/EgorLis/palermobot/internal/rtclient"
)

func main() {
	cfg, err := config.LoadBot(os.Args[1:], os.Stderr)
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := rtclient.New(cfg.StoreURL,
		rtclient.WithLogger(logger),
		rtclient.WithDialer(&websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}),
	)
	client.OnConnecting = func() { fmt.Println("connecting...") }
	client.OnConnected = func() { fmt.Println("connected") }
	client.OnDisconnected = func() { fmt.Println("disconnected") }
	client.OnError = func(err error) { logger.Warn("store connection", "err", err) }

	if err := client.Connect(ctx); err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	disc := bot.NewDiscovery(client,
		bot.WithLogger(logger),
		bot.WithPaths(game.Paths{Root: cfg.Root}),
	)
	sup := bot.NewSupervisor(disc, bot.SupervisorConfig{
		Total:    cfg.Total,
		GameID:   cfg.GameID,
		Interval: cfg.Interval,
	})
	sup.OnCycle = func(active int) {
		fmt.Printf("Currently monitoring %d active games\n", active)
		fmt.Printf("Waiting %v before next check...\n", cfg.Interval)
	}

	fmt.Printf("Starting monitoring mode, checking for games every %v...\n", cfg.Interval)
	if err := sup.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer sup.Stop()

	<-ctx.Done()
	fmt.Println("Monitoring stopped by user")
}
