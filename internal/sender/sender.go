// Package sender implements the sender worker pool (C7, spec.md §4.7): a
// shared pool of workers draining the work queue through a rate limiter and
// connection manager, applying the send state machine to each outcome.
package sender

import (
	"context"
	"errors"
	"sync"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/ignite/nuntius/internal/pkg/logger"
	"github.com/ignite/nuntius/internal/queue"
	"github.com/ignite/nuntius/internal/ratelimit"
	"github.com/ignite/nuntius/internal/repository"
	"github.com/ignite/nuntius/internal/transport"
)

// ErrorReport is one non-recipient send failure, reported upstream so the
// supervisor can transition the owning campaign to Error (spec.md §4.7
// "(any) -- unexpected sender error ... --> campaign -> Error via C8").
type ErrorReport struct {
	CampaignID string
	Err        error
}

// Pool runs numWorkers goroutines draining the same queue, each through its
// own ConnectionManager (so a slow/stuck connection doesn't block the
// others), sharing one rate-limit Bucket and reporting non-recipient errors
// on a single channel. Grounded on the teacher's SendWorkerPool
// (internal/worker/send_worker.go): a fixed worker count, a poll-driven
// loop per worker, and a shared stop signal, adapted from claim-batch
// polling against Postgres to the in-process bounded Queue.
type Pool struct {
	bucket      ratelimit.Bucket
	queue       *queue.Queue
	records     repository.SendRecordRepository
	newConn     func() *transport.ConnectionManager
	errCh       chan<- ErrorReport
	numWorkers  int
	log         *logger.Logger
	wg          sync.WaitGroup
}

// New builds a worker pool. newConn must return a fresh ConnectionManager
// per worker (each worker owns its own transport connection).
func New(
	numWorkers int,
	bucket ratelimit.Bucket,
	q *queue.Queue,
	records repository.SendRecordRepository,
	newConn func() *transport.ConnectionManager,
	errCh chan<- ErrorReport,
) *Pool {
	return &Pool{
		bucket:     bucket,
		queue:      q,
		records:    records,
		newConn:    newConn,
		errCh:      errCh,
		numWorkers: numWorkers,
		log:        logger.With("sender"),
	}
}

// Start launches the worker goroutines; Wait blocks until every worker has
// returned (after the queue's shutdown signal fires and drains).
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	conn := p.newConn()
	defer conn.Close()

	for {
		item, err := p.queue.Get()
		if err == queue.ErrShutdown {
			return
		}
		if err == queue.ErrTimeout {
			continue
		}
		if err != nil {
			p.log.Error("worker: unexpected queue error", "worker", id, "err", err.Error())
			continue
		}

		if err := p.bucket.Take(ctx, 1); err != nil {
			// Context cancelled (shutdown); drop the item back is not
			// possible with a channel queue, so just stop.
			return
		}

		p.send(ctx, conn, item)
	}
}

// send drives one item through the connection manager and applies the send
// state machine (spec.md §4.7's table) to the resulting SendRecord.
func (p *Pool) send(ctx context.Context, conn *transport.ConnectionManager, item queue.Item) {
	outcome, err := conn.Send(ctx, item.Message)
	if err != nil {
		p.handleSendError(ctx, item, err)
		return
	}

	result := domain.ResultUnknown
	if outcome.HasStatus {
		if outcome.Rejected {
			result = domain.ResultRejected
		} else {
			result = domain.ResultOk
		}
	}

	var espMessageID *string
	if outcome.MessageID != "" {
		espMessageID = &outcome.MessageID
	}
	if err := p.records.UpdateResult(ctx, item.SendRecordID, result, espMessageID); err != nil {
		p.log.Error("worker: update send record failed", "send_record_id", item.SendRecordID, "err", err.Error())
	}
}

func (p *Pool) handleSendError(ctx context.Context, item queue.Item, err error) {
	if errors.Is(err, transport.ErrRecipientRefused) {
		if uErr := p.records.UpdateResult(ctx, item.SendRecordID, domain.ResultBlocked, nil); uErr != nil {
			p.log.Error("worker: mark blocked failed", "send_record_id", item.SendRecordID, "err", uErr.Error())
		}
		return
	}

	// Transient/disconnected errors already exhausted the connection
	// manager's own retry budget; this is an unexpected sender error, not a
	// per-recipient outcome, so the record stays Pending and the failure is
	// reported for the supervisor to act on (spec.md §4.7 last row).
	p.log.Error("worker: send failed", "send_record_id", item.SendRecordID, "campaign_id", item.CampaignID, "err", err.Error())
	if p.errCh == nil {
		return
	}
	select {
	case p.errCh <- ErrorReport{CampaignID: item.CampaignID, Err: err}:
	default:
		p.log.Warn("worker: error channel full, dropping report", "campaign_id", item.CampaignID)
	}
}
