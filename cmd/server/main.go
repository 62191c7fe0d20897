// Command server exposes the tracking (C9) and webhook (C10) HTTP surfaces:
// open/click redirects for outgoing campaign mail, and the normalised
// delivery-event endpoint the reputation policy (C11) consumes.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"

	"github.com/ignite/nuntius/internal/config"
	"github.com/ignite/nuntius/internal/reputation"
	"github.com/ignite/nuntius/internal/repository/postgres"
	"github.com/ignite/nuntius/internal/repository/subscriberreg"
	"github.com/ignite/nuntius/internal/tracking"
	"github.com/ignite/nuntius/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, env vars always apply)")
	flag.Parse()

	log.Println("nuntius server starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	log.Println("connected to database")

	sendRecords := postgres.NewSendRecordRepo(db)
	subscribers, err := subscriberreg.Resolve(cfg.SubscriberModel, db)
	if err != nil {
		log.Fatalf("resolve subscriber model: %v", err)
	}
	campaigns := postgres.NewCampaignRepo(db)

	bounceCfg := reputation.Config{
		Consecutive:  cfg.Bounce.Consecutive,
		DurationDays: cfg.Bounce.DurationDays,
		Limit:        cfg.Bounce.Limit,
	}
	policy := reputation.New(sendRecords, subscribers, bounceCfg)

	trackingHandler := tracking.New(sendRecords, campaigns)
	webhookIngestor := webhook.New(sendRecords, subscribers, policy)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mount := cfg.Tracking.Mount
	if mount == "" {
		mount = "/"
	}
	r.Mount(mount, trackingHandler.Routes())
	r.Mount("/webhook", webhookIngestor.Routes())

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-done
	log.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("server stopped")
}
