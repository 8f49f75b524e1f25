package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-admission/internal/codec/qr"
	"ms-admission/internal/config"
	"ms-admission/internal/database/migrations"
	"ms-admission/internal/kafka"
	"ms-admission/internal/ledger"
	ledgerdb "ms-admission/internal/ledger/db"
	"ms-admission/internal/logger"
	"ms-admission/internal/redeem"
	redeemdb "ms-admission/internal/redeem/db"
	redeemredis "ms-admission/internal/redeem/redis"
	"ms-admission/internal/scanner"
	"ms-admission/internal/scanner/scan_api"
)

func openDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	log.Info("DATABASE", "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func counterStore(cfg *config.Config, bunDB *bun.DB, log *logger.Logger) redeem.Store {
	if cfg.Redis.Backend != "redis" {
		return redeemdb.New(bunDB)
	}

	client := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	log.Info("REDIS", "Using Redis capacity counters at "+cfg.Redis.Addr)
	return redeemredis.NewCounter(client)
}

func main() {
	_ = godotenv.Load() // loads .env if present

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	bunDB := openDatabase(cfg, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
		if err := runner.Up(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		log.Info("DATABASE", "Migrations applied")
	}

	var publisher ledger.ScanEventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ScanTopic)
		defer producer.Close()
		publisher = producer
		log.LogKafka("INIT", cfg.Kafka.ScanTopic, "scan event streaming enabled")
	}

	engine := redeem.NewEngine(counterStore(cfg, bunDB, log), log)
	engine.Retries = cfg.Scanner.CommitRetries

	ledgerSvc := ledger.NewService(ledgerdb.New(bunDB), publisher, log)
	scanSvc := scanner.NewService(engine, ledgerSvc, log)
	sessions := scanner.NewManager(scanSvc, scanner.Timings{
		DebounceWindow:     cfg.Scanner.DebounceWindow,
		ErrorClearDelay:    cfg.Scanner.ErrorClearDelay,
		SuccessClearDelay:  cfg.Scanner.SuccessClearDelay,
		DebounceClearDelay: cfg.Scanner.DebounceClearDelay,
	})

	var qrGen *qr.Generator
	if cfg.Scanner.QRSecret != "" {
		qrGen = qr.NewGenerator(cfg.Scanner.QRSecret)
	}

	handler := scan_api.NewHandler(scanSvc, sessions, engine, ledgerSvc, qrGen, log)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Mount("/v1", handler.Routes())

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", "Scan service on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "Scan service shutdown complete")
}
