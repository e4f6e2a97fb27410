package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/mutator"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
	"gitlab.ozon.dev/qwestard/possync/internal/poller"
	"gitlab.ozon.dev/qwestard/possync/internal/reconciler"
	"gitlab.ozon.dev/qwestard/possync/internal/tracker"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

var (
	ErrUnknownOrder = errors.New("order not in current view")
	ErrStarted      = errors.New("session already started")
	ErrUnknownKind  = errors.New("unknown session kind")
	ErrBadInterval  = errors.New("poll interval must be positive")
)

type Backend interface {
	mutator.Backend
	ListOrders(ctx context.Context) (backend.Snapshot[models.Order], error)
	ListKitchenOrders(ctx context.Context) (backend.Snapshot[models.Order], error)
	ListAdditions(ctx context.Context) (backend.Snapshot[models.Addition], error)
}

type Config struct {
	Kind     view.Kind
	Interval time.Duration

	Renderer  view.Renderer
	Notifier  notify.Notifier
	Confirmer notify.Confirmer
	Navigator notify.Navigator
	Alerter   notify.Alerter
	Auditor   mutator.Auditor
	Logger    logrus.FieldLogger
}

// Session holds all synchronization state of one mounted board: the
// orders feed, the additions feed on the kitchen board, the seen set and
// the in-flight set. It lives from Start to Close.
type Session struct {
	kind view.Kind
	log  logrus.FieldLogger

	orders       *reconciler.Reconciler[models.Order]
	ordersPoller *poller.Poller[models.Order]

	additions       *reconciler.Reconciler[models.Addition]
	additionsPoller *poller.Poller[models.Addition]
	tracker         *tracker.Tracker

	mutator *mutator.Mutator

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(b Backend, cfg Config) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = view.Multi{}
	}
	if cfg.Alerter == nil {
		cfg.Alerter = notify.AlerterFunc(func(int) {})
	}
	log := cfg.Logger.WithField("session", string(cfg.Kind))
	s := &Session{kind: cfg.Kind, log: log}

	switch cfg.Kind {
	case view.KindOperations:
		s.orders = reconciler.New[models.Order](view.KindOperations, view.Operations, cfg.Renderer, log)
		s.ordersPoller = poller.New[models.Order]("orders", cfg.Interval, b.ListOrders, s.orders, log)
	case view.KindKitchen:
		s.orders = reconciler.New[models.Order](view.KindKitchen, view.Kitchen, cfg.Renderer, log)
		s.ordersPoller = poller.New[models.Order]("kitchen-orders", cfg.Interval, b.ListKitchenOrders, s.orders, log)
		s.additions = reconciler.New[models.Addition](view.KindAdditions, view.Additions, cfg.Renderer, log)
		s.tracker = tracker.New(cfg.Alerter, s.additions, log)
		s.additionsPoller = poller.New[models.Addition]("additions", cfg.Interval, b.ListAdditions, s.tracker, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadInterval, cfg.Interval)
	}

	opts := mutator.Options{
		Notifier:   cfg.Notifier,
		Confirmer:  cfg.Confirmer,
		Navigator:  cfg.Navigator,
		Auditor:    cfg.Auditor,
		Logger:     log,
		Orders:     s.ordersPoller,
		Invalidate: s.orders.Invalidate,
	}
	if s.additionsPoller != nil {
		opts.Additions = s.additionsPoller
	}
	s.mutator = mutator.New(b, opts)
	return s, nil
}

func (s *Session) Kind() view.Kind {
	return s.kind
}

// Start launches the feed loops. They stop when ctx is done or Close is
// called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	s.run(func() { s.ordersPoller.Start(ctx) })
	if s.additionsPoller != nil {
		s.run(func() { s.additionsPoller.Start(ctx) })
	}
	s.log.Info("session started")
	return nil
}

func (s *Session) run(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Close stops the feeds and waits for in-flight polls.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info("session closed")
}

// Refresh forces an immediate poll of every feed.
func (s *Session) Refresh() {
	s.ordersPoller.Trigger()
	if s.additionsPoller != nil {
		s.additionsPoller.Trigger()
	}
}

// Sync polls every feed once, synchronously.
func (s *Session) Sync(ctx context.Context) error {
	var errs []error
	if err := s.ordersPoller.PollOnce(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.additionsPoller != nil {
		if err := s.additionsPoller.PollOnce(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) OrdersView() (view.View, bool) {
	return s.orders.View()
}

func (s *Session) AdditionsView() (view.View, bool) {
	if s.additions == nil {
		return view.View{}, false
	}
	return s.additions.View()
}

func (s *Session) FindOrder(id int64) (models.Order, bool) {
	return s.orders.Find(func(o models.Order) bool { return o.ID == id })
}

func (s *Session) Advance(ctx context.Context, orderID int64) (models.Status, error) {
	o, ok := s.FindOrder(orderID)
	if !ok {
		return "", fmt.Errorf("order %d: %w", orderID, ErrUnknownOrder)
	}
	return s.mutator.Advance(ctx, orderID, o.Status)
}

func (s *Session) SetStatus(ctx context.Context, orderID int64, target models.Status) error {
	o, ok := s.FindOrder(orderID)
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrUnknownOrder)
	}
	return s.mutator.SetStatus(ctx, orderID, o.Status, target)
}

func (s *Session) AddItem(ctx context.Context, orderID, itemID int64, qty int) error {
	return s.mutator.AddItem(ctx, orderID, itemID, qty)
}

func (s *Session) CloseOrder(ctx context.Context, orderID int64) error {
	return s.mutator.CloseOrder(ctx, orderID)
}

func (s *Session) MarkAdditionHandled(ctx context.Context, additionID int64) error {
	return s.mutator.MarkAdditionHandled(ctx, additionID)
}

func (s *Session) Health() []poller.Health {
	out := []poller.Health{s.ordersPoller.Health()}
	if s.additionsPoller != nil {
		out = append(out, s.additionsPoller.Health())
	}
	return out
}

// Healthy reports whether every feed's last poll succeeded.
func (s *Session) Healthy() bool {
	for _, h := range s.Health() {
		if !h.OK() {
			return false
		}
	}
	return true
}

func (s *Session) SeenAdditions() int {
	if s.tracker == nil {
		return 0
	}
	return s.tracker.Seen()
}
