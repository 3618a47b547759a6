package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/christopherjohns/chatrelay/internal/config"
	"github.com/christopherjohns/chatrelay/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHATRELAY_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var opts []server.Option
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
		}
		log.Printf("connected to redis at %s, relay enabled", cfg.Redis.Addr)
		opts = append(opts, server.WithRedis(rdb))
	}

	srv := server.New(cfg, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("starting chatrelay on %s", cfg.ListenAddr)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
