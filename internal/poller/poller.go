package poller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/backend"
)

type FetchFunc[T any] func(ctx context.Context) (backend.Snapshot[T], error)

// Sink consumes every successfully decoded snapshot.
type Sink[T any] interface {
	Apply(snap backend.Snapshot[T]) (bool, error)
}

// Poller fetches a snapshot on every tick and on every Trigger. Polls are not
// serialized: a slow round-trip may overlap the next one and the later
// completion wins in the sink.
type Poller[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	sink     Sink[T]
	log      logrus.FieldLogger

	trigger chan struct{}
	wg      sync.WaitGroup

	mu          sync.RWMutex
	lastErr     error
	lastSuccess time.Time
	polls       int
}

func New[T any](name string, interval time.Duration, fetch FetchFunc[T], sink Sink[T], log logrus.FieldLogger) *Poller[T] {
	return &Poller[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		sink:     sink,
		log:      log.WithField("poller", name),
		trigger:  make(chan struct{}, 1),
	}
}

// Start polls immediately and then on every tick until ctx is done. It
// returns after in-flight polls have finished.
func (p *Poller[T]) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.wg.Wait()

	p.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.spawn(ctx)
		case <-p.trigger:
			p.spawn(ctx)
		}
	}
}

// Trigger asks for a poll outside the schedule. Requests made while one is
// already pending collapse into it.
func (p *Poller[T]) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Poller[T]) spawn(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.PollOnce(ctx)
	}()
}

// PollOnce runs a single fetch and hands the result to the sink. Failures
// are logged and recorded, never forwarded, so the last rendered view
// stays on screen.
func (p *Poller[T]) PollOnce(ctx context.Context) error {
	snap, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.fail(err)
		p.log.WithError(err).Warn("poll failed")
		return err
	}
	if _, err := p.sink.Apply(snap); err != nil {
		p.fail(err)
		p.log.WithError(err).Error("reconcile failed")
		return err
	}

	p.mu.Lock()
	p.lastErr = nil
	p.lastSuccess = time.Now()
	p.polls++
	p.mu.Unlock()
	return nil
}

func (p *Poller[T]) fail(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.polls++
	p.mu.Unlock()
}

type Health struct {
	Name        string
	LastSuccess time.Time
	LastError   error
	Polls       int
}

func (h Health) OK() bool {
	return h.LastError == nil && !h.LastSuccess.IsZero()
}

func (p *Poller[T]) Health() Health {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Health{Name: p.name, LastSuccess: p.lastSuccess, LastError: p.lastErr, Polls: p.polls}
}
