// Package supervisor implements the process supervisor (C8, spec.md §4.8):
// the single long-running control loop that watches the campaign outbox,
// starts and stops one dispatcher per Sending campaign, keeps the shared
// sender worker pool alive, and reacts to OS signals for graceful shutdown
// and diagnostics.
//
// Grounded on the teacher's cmd/worker/main.go (the single long-running
// process wired up at startup, signal.Notify for SIGINT/SIGTERM) and the
// ticker-driven Start(ctx) loops of internal/worker/queue_recovery.go and
// data_cleanup.go, generalized from a fixed set of background tasks to a
// dynamic set of per-campaign dispatchers that come and go with the outbox.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ignite/nuntius/internal/dispatcher"
	"github.com/ignite/nuntius/internal/domain"
	"github.com/ignite/nuntius/internal/pkg/logger"
	"github.com/ignite/nuntius/internal/queue"
	"github.com/ignite/nuntius/internal/ratelimit"
	"github.com/ignite/nuntius/internal/repository"
	"github.com/ignite/nuntius/internal/sender"
	"github.com/ignite/nuntius/internal/transport"
)

// Config gathers everything a Supervisor needs to run: the rate-limited,
// shared sending path plus the repositories every dispatcher needs to drive
// a campaign.
type Config struct {
	Campaigns     repository.CampaignRepository
	Subscribers   repository.SubscriberRepository
	SendRecords   repository.SendRecordRepository
	Segments      repository.SegmentRepository
	Bucket        ratelimit.Bucket
	NewConn       func() *transport.ConnectionManager
	NumWorkers    int
	QueueCapacity int
	PollInterval  time.Duration
	PublicURL     string
}

// Supervisor is the C8 control loop. One instance runs per worker process.
type Supervisor struct {
	cfg Config
	log *logger.Logger

	mu          sync.Mutex
	dispatchers map[string]*dispatcherRun
}

type dispatcherRun struct {
	cancel context.CancelFunc
}

// New builds a Supervisor from cfg, filling in defaults the teacher's own
// worker main.go hard-codes (poll interval, queue sizing).
func New(cfg Config) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = cfg.NumWorkers * 2
	}
	return &Supervisor{
		cfg:         cfg,
		log:         logger.With("supervisor"),
		dispatchers: make(map[string]*dispatcherRun),
	}
}

// Run drives the supervisor to completion: it blocks until ctx is cancelled
// or SIGINT/SIGTERM is received, at which point it asks every dispatcher and
// every sender worker to stop and waits for them before returning.
func (s *Supervisor) Run(parent context.Context) error {
	ctx, cancelAll := context.WithCancel(parent)
	defer cancelAll()

	globalShutdown := make(chan struct{})
	q := queue.New(s.cfg.QueueCapacity, globalShutdown, s.cfg.PollInterval)
	errCh := make(chan sender.ErrorReport, s.cfg.NumWorkers*2)

	pool := sender.New(s.cfg.NumWorkers, s.cfg.Bucket, q, s.cfg.SendRecords, s.cfg.NewConn, errCh)
	pool.Start(ctx)
	s.log.Info("supervisor started", "workers", s.cfg.NumWorkers, "queue_capacity", s.cfg.QueueCapacity)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	dispatcherDone := make(chan string, 16)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigs:
			switch sig {
			case syscall.SIGUSR1:
				s.dumpStats(q)
			case syscall.SIGUSR2:
				dumpStackTrace()
			default:
				s.log.Info("shutdown signal received, stopping", "signal", sig.String())
				close(globalShutdown)
				cancelAll()
				s.waitForDispatchers(dispatcherDone)
				pool.Wait()
				return nil
			}

		case <-ctx.Done():
			close(globalShutdown)
			s.waitForDispatchers(dispatcherDone)
			pool.Wait()
			return ctx.Err()

		case report := <-errCh:
			s.handleSendError(ctx, report)

		case campaignID := <-dispatcherDone:
			s.reapDispatcher(ctx, campaignID)

		case <-ticker.C:
			s.checkCampaigns(ctx, q, dispatcherDone)
		}
	}
}

// checkCampaigns implements spec.md §4.8 points 1-2: start a dispatcher for
// every campaign that entered Sending without one running yet, and stop any
// dispatcher whose campaign reverted to Waiting or left the outbox entirely.
func (s *Supervisor) checkCampaigns(ctx context.Context, q *queue.Queue, done chan<- string) {
	campaigns, err := s.cfg.Campaigns.Outbox(ctx)
	if err != nil {
		s.log.Error("checkCampaigns: outbox query failed", "err", err.Error())
		return
	}

	seen := make(map[string]bool, len(campaigns))
	for i := range campaigns {
		c := &campaigns[i]
		seen[c.ID] = true

		s.mu.Lock()
		_, running := s.dispatchers[c.ID]
		s.mu.Unlock()

		switch {
		case c.Status == domain.CampaignSending && !running:
			s.startDispatcher(ctx, c.ID, q, done)
		case c.Status == domain.CampaignWaiting && running:
			s.log.Info("stopping dispatcher, campaign reverted to waiting", "campaign_id", c.ID)
			s.stopDispatcher(c.ID)
		}
	}

	s.mu.Lock()
	var stale []string
	for id := range s.dispatchers {
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()
	for _, id := range stale {
		s.log.Info("stopping dispatcher, campaign left outbox", "campaign_id", id)
		s.stopDispatcher(id)
	}
}

func (s *Supervisor) startDispatcher(ctx context.Context, campaignID string, q *queue.Queue, done chan<- string) {
	dctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.dispatchers[campaignID] = &dispatcherRun{cancel: cancel}
	s.mu.Unlock()

	d := dispatcher.New(s.cfg.Campaigns, s.cfg.Subscribers, s.cfg.SendRecords, s.cfg.Segments, q, s.cfg.PublicURL)
	s.log.Info("starting dispatcher", "campaign_id", campaignID)

	go func() {
		if err := d.Run(dctx, campaignID); err != nil {
			s.log.Error("dispatcher exited with error", "campaign_id", campaignID, "err", err.Error())
		}
		select {
		case done <- campaignID:
		default:
			s.log.Warn("dispatcher completion channel full, dropping", "campaign_id", campaignID)
		}
	}()
}

func (s *Supervisor) stopDispatcher(campaignID string) {
	s.mu.Lock()
	run, ok := s.dispatchers[campaignID]
	s.mu.Unlock()
	if !ok {
		return
	}
	run.cancel()
}

// reapDispatcher removes a finished dispatcher from the tracking set,
// logging whether it stopped cleanly (reflected by the campaign no longer
// being in Sending status) or was cut off mid-stream.
func (s *Supervisor) reapDispatcher(ctx context.Context, campaignID string) {
	s.mu.Lock()
	delete(s.dispatchers, campaignID)
	s.mu.Unlock()

	campaign, err := s.cfg.Campaigns.Get(ctx, campaignID)
	if err != nil {
		s.log.Warn("reapDispatcher: campaign lookup failed", "campaign_id", campaignID, "err", err.Error())
		return
	}
	if campaign.Status != domain.CampaignSending {
		s.log.Info("dispatcher finished cleanly", "campaign_id", campaignID, "status", string(campaign.Status))
	} else {
		s.log.Info("dispatcher stopped mid-campaign, resumable on next check", "campaign_id", campaignID)
	}
}

// handleSendError implements spec.md §4.8 point 3: a non-recipient sender
// error moves the owning campaign to Error and stops its dispatcher.
func (s *Supervisor) handleSendError(ctx context.Context, report sender.ErrorReport) {
	s.log.Error("sender reported unexpected error", "campaign_id", report.CampaignID, "err", report.Err.Error())
	if report.CampaignID == "" {
		return
	}
	if err := s.cfg.Campaigns.UpdateStatus(ctx, report.CampaignID, domain.CampaignError); err != nil {
		s.log.Error("handleSendError: mark campaign error failed", "campaign_id", report.CampaignID, "err", err.Error())
	}
	s.stopDispatcher(report.CampaignID)
}

// waitForDispatchers drains dispatcherDone until every tracked dispatcher
// has reported completion, used during shutdown.
func (s *Supervisor) waitForDispatchers(done <-chan string) {
	for {
		s.mu.Lock()
		n := len(s.dispatchers)
		s.mu.Unlock()
		if n == 0 {
			return
		}
		select {
		case campaignID := <-done:
			s.mu.Lock()
			delete(s.dispatchers, campaignID)
			s.mu.Unlock()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// dumpStats logs queue depth/capacity and the current set of running
// dispatchers on SIGUSR1, mirroring the original's operator-facing
// diagnostics without a stack trace.
func (s *Supervisor) dumpStats(q *queue.Queue) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.dispatchers))
	for id := range s.dispatchers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	s.log.Info("stats",
		"queue_len", fmt.Sprintf("%d", q.Len()),
		"queue_cap", fmt.Sprintf("%d", q.Cap()),
		"active_dispatchers", fmt.Sprintf("%d", len(ids)),
		"campaign_ids", fmt.Sprintf("%v", ids),
		"goroutines", fmt.Sprintf("%d", runtime.NumGoroutine()),
	)
}

// dumpStackTrace writes every goroutine's stack to stderr on SIGUSR2, the Go
// equivalent of the original's print_stack_trace signal handler.
func dumpStackTrace() {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	os.Stderr.Write(buf[:n])
}
