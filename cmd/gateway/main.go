package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/screenlens/demo-gateway/internal/config"
	"github.com/screenlens/demo-gateway/internal/server"
	"github.com/screenlens/demo-gateway/internal/storage"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The gateway starts without a store, but every metered request then
	// fails closed with CONFIG_ERROR until one is configured.
	var postgres *storage.Postgres
	if cfg.Database.DSN != "" {
		postgres, err = storage.NewPostgres(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer postgres.Close()

		if err := postgres.AutoMigrate(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}

		log.Println("Connected to database successfully")
	} else {
		log.Println("WARNING: DATABASE_DSN not set, metered requests will be rejected")
	}

	var redis *storage.RedisClient
	redis, err = storage.NewRedis(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("WARNING: redis unavailable, caching and velocity limits disabled: %v", err)
		redis = nil
	} else {
		defer redis.Close()
		log.Println("Connected to redis successfully")
	}

	srv := server.New(cfg, postgres, redis)

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := srv.Seed(seedCtx); err != nil {
		cancelSeed()
		log.Fatalf("Failed to seed roles: %v", err)
	}
	cancelSeed()

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
