package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/faenet/chambers/internal/api"
	"github.com/faenet/chambers/internal/bus"
	"github.com/faenet/chambers/internal/config"
	"github.com/faenet/chambers/internal/database"
	"github.com/faenet/chambers/internal/presence"
	"github.com/faenet/chambers/internal/server"
	"github.com/faenet/chambers/internal/stats"
)

const defaultSigningKey = "1h7u0J2VqmRMXHIVZ8vbxcL7oDijLrwfKrXb3cig0rQ="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	redisAddr      string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// flags override the environment; .env is a convenience for local dev
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("CHAMBERS_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("CHAMBERS_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&redisAddr, "redis-addr", envOr("CHAMBERS_REDIS_ADDR", "localhost:6379"), "redis address")
	flag.StringVar(&signingKey, "signing-key", envOr("CHAMBERS_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[chambers] ", log.LstdFlags)

	if len(allowedOrigins) == 0 {
		if v := os.Getenv("CHAMBERS_ALLOWED_ORIGINS"); v != "" {
			allowedOrigins = strings.Split(v, ",")
		}
	}

	cfg, err := config.NewConfig(addr, dsn, redisAddr, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config: ", err)
	}
	cfg.RedisPassword = os.Getenv("CHAMBERS_REDIS_PASSWORD")
	cfg.GiphyAPIKey = os.Getenv("CHAMBERS_GIPHY_API_KEY")

	dbConn, err := database.NewPgChambersRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close: ", err)
		}
	}()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("redis ping: ", err)
	}
	defer rdb.Close()

	presenceStore := presence.NewRedisStore(rdb)

	// presence keys belong to connections that no longer exist after a
	// restart, so clear them before accepting any
	if err := presenceStore.Reset(context.Background()); err != nil {
		logger.Fatal("presence reset: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(
		logger,
		dbConn,
		bus.NewRedisBus(rdb),
		presenceStore,
		presence.NewRedisAnnouncer(rdb),
		statsUpdater,
		time.Duration(cfg.AnnounceCooldown)*time.Second,
	)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	srv := api.NewChambersApp(mux, logger, chatServer, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
