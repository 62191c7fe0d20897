// Command worker runs the supervisor (C8): it watches the campaign outbox,
// starts and stops per-campaign dispatchers, and drives the shared sender
// worker pool until terminated.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/nuntius/internal/config"
	"github.com/ignite/nuntius/internal/pkg/logger"
	"github.com/ignite/nuntius/internal/ratelimit"
	"github.com/ignite/nuntius/internal/repository/postgres"
	"github.com/ignite/nuntius/internal/repository/subscriberreg"
	"github.com/ignite/nuntius/internal/supervisor"
	"github.com/ignite/nuntius/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, env vars always apply)")
	flag.Parse()

	log.Println("nuntius worker starting")

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

	bucket := buildBucket(cfg)

	transportNewConn := func() *transport.ConnectionManager {
		t, err := transport.NewFromConfig(cfg)
		if err != nil {
			// A per-worker construction error here means every subsequent
			// send through this connection manager fails at Open(); the
			// worker loop logs and keeps retrying rather than crashing the
			// whole process over one misconfigured backend.
			logger.Error("build transport", "err", err.Error())
			t = nil
		}
		shutdown := make(chan struct{})
		return transport.NewConnectionManager(t, shutdown, cfg.Sending.MaxMessagesPerConnection)
	}

	subscribers, err := subscriberreg.Resolve(cfg.SubscriberModel, db)
	if err != nil {
		log.Fatalf("resolve subscriber model: %v", err)
	}

	sv := supervisor.New(supervisor.Config{
		Campaigns:     postgres.NewCampaignRepo(db),
		Subscribers:   subscribers,
		SendRecords:   postgres.NewSendRecordRepo(db),
		Segments:      postgres.NewSegmentRepo(db),
		Bucket:        bucket,
		NewConn:       transportNewConn,
		NumWorkers:    cfg.Sending.MaxConcurrentSenders,
		QueueCapacity: cfg.Sending.MaxConcurrentSenders * 2,
		PollInterval:  cfg.Sending.PollingInterval,
		PublicURL:     cfg.Tracking.PublicURL,
	})

	log.Println("supervisor running")
	if err := sv.Run(context.Background()); err != nil {
		log.Fatalf("supervisor exited: %v", err)
	}
	log.Println("worker stopped")
}

// buildBucket selects a RedisBucket when cfg.Redis.Addr is set (cross-process
// rate limiting, spec.md §4.1), else a LocalBucket for a single-process
// deployment (spec.md §9).
func buildBucket(cfg *config.Config) ratelimit.Bucket {
	if cfg.Redis.Addr == "" {
		return ratelimit.NewLocalBucket(cfg.Sending.BucketCapacity, cfg.Sending.MaxSendingRate)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	return ratelimit.NewRedisBucket(client, "nuntius:sending", cfg.Sending.BucketCapacity, cfg.Sending.MaxSendingRate)
}
