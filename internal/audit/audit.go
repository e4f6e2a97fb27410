package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeReceived Outcome = "received"
)

// Entry is one mutation attempt or one control-surface request.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"`
	OldState  string    `json:"old_state,omitempty"`
	NewState  string    `json:"new_state,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Message   string    `json:"message,omitempty"`
}

type PoolConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ChannelSize int
}

type Processor interface {
	Process(ctx context.Context, batch []Entry) error
}

// LogProcessor writes entries through logrus. A non-empty Filter keeps only
// entries whose message or action contains it.
type LogProcessor struct {
	Logger logrus.FieldLogger
	Filter string
}

func (p *LogProcessor) Process(_ context.Context, batch []Entry) error {
	for _, e := range batch {
		if p.Filter != "" && !matches(e, p.Filter) {
			continue
		}
		p.Logger.WithFields(logrus.Fields{
			"action":  e.Action,
			"subject": e.Subject,
			"from":    e.OldState,
			"to":      e.NewState,
			"outcome": e.Outcome,
		}).Info(e.Message)
	}
	return nil
}

func matches(e Entry, filter string) bool {
	f := strings.ToLower(filter)
	return strings.Contains(strings.ToLower(e.Message), f) || strings.Contains(strings.ToLower(e.Action), f)
}

// Outbox stores serialized entries for later relay.
type Outbox interface {
	CreateTasks(ctx context.Context, payloads [][]byte) error
}

type OutboxProcessor struct {
	Outbox Outbox
}

func (p *OutboxProcessor) Process(ctx context.Context, batch []Entry) error {
	payloads := make([][]byte, 0, len(batch))
	for _, e := range batch {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("outbox processor: marshal: %w", err)
		}
		payloads = append(payloads, b)
	}
	if err := p.Outbox.CreateTasks(ctx, payloads); err != nil {
		return fmt.Errorf("outbox processor: %w", err)
	}
	return nil
}

// WorkerPool batches entries by size or timeout and hands every batch to
// all processors.
type WorkerPool struct {
	inputCh    chan Entry
	processors []Processor
	batchSize  int
	timeout    time.Duration
	log        logrus.FieldLogger

	wg sync.WaitGroup
}

func NewWorkerPool(cfg PoolConfig, log logrus.FieldLogger, processors ...Processor) *WorkerPool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &WorkerPool{
		inputCh:    make(chan Entry, cfg.ChannelSize),
		processors: processors,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
		log:        log,
	}
}

func (p *WorkerPool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

func (p *WorkerPool) worker(ctx context.Context) {
	var batch []Entry
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			batch = append(batch, p.drain()...)
			if len(batch) > 0 {
				p.processBatch(context.WithoutCancel(ctx), batch)
			}
			return
		case rec := <-p.inputCh:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				p.processBatch(ctx, batch)
				batch = nil
				timer.Reset(p.timeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				p.processBatch(ctx, batch)
				batch = nil
			}
			timer.Reset(p.timeout)
		}
	}
}

func (p *WorkerPool) drain() []Entry {
	var out []Entry
	for {
		select {
		case rec := <-p.inputCh:
			out = append(out, rec)
		default:
			return out
		}
	}
}

func (p *WorkerPool) processBatch(ctx context.Context, batch []Entry) {
	for _, proc := range p.processors {
		if err := proc.Process(ctx, batch); err != nil {
			p.log.WithError(err).Error("audit batch failed")
		}
	}
}

// Log enqueues an entry. A full channel drops it.
func (p *WorkerPool) Log(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case p.inputCh <- e:
	default:
		p.log.Warn("audit channel full, dropping entry")
	}
}

func (p *WorkerPool) Shutdown(cancel context.CancelFunc) {
	cancel()
	p.wg.Wait()
}

// Nop discards entries.
type Nop struct{}

func (Nop) Log(Entry) {}
