package mutator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/audit"
	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
)

var (
	ErrInFlight         = errors.New("mutation already in flight")
	ErrNotConfirmed     = errors.New("not confirmed")
	ErrStatusRegression = errors.New("status would regress")
)

type Backend interface {
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.Status) error
	AddItem(ctx context.Context, orderID, itemID int64, qty int) error
	CloseOrder(ctx context.Context, orderID int64) error
	MarkAdditionHandled(ctx context.Context, additionID int64) error
}

// Refresher forces the next reconciliation of a feed.
type Refresher interface {
	Trigger()
}

type Auditor interface {
	Log(e audit.Entry)
}

type Options struct {
	Notifier  notify.Notifier
	Confirmer notify.Confirmer
	Navigator notify.Navigator
	Auditor   Auditor
	Logger    logrus.FieldLogger

	// Orders and Additions are re-polled after a mutation reaches the
	// backend. Either may be nil.
	Orders    Refresher
	Additions Refresher
	// Invalidate drops the orders change key after a close.
	Invalidate func()
}

// Mutator sends state-changing commands. At most one command per guard key
// is in flight at a time; the key is released on every return path.
type Mutator struct {
	backend Backend
	opts    Options

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(b Backend, opts Options) *Mutator {
	if opts.Notifier == nil {
		opts.Notifier = notify.Multi{}
	}
	if opts.Confirmer == nil {
		opts.Confirmer = notify.Prompted{}
	}
	if opts.Navigator == nil {
		opts.Navigator = notify.NopNavigator{}
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Mutator{backend: b, opts: opts, inFlight: make(map[string]struct{})}
}

func orderKey(id int64) string    { return fmt.Sprintf("order:%d", id) }
func itemsKey(id int64) string    { return fmt.Sprintf("order-items:%d", id) }
func additionKey(id int64) string { return fmt.Sprintf("addition:%d", id) }

func (m *Mutator) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[key]; busy {
		return false
	}
	m.inFlight[key] = struct{}{}
	return true
}

func (m *Mutator) release(key string) {
	m.mu.Lock()
	delete(m.inFlight, key)
	m.mu.Unlock()
}

// InFlight reports whether a command holding key is pending.
func (m *Mutator) InFlight(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inFlight[key]
	return ok
}

// Advance moves an order one step along its lifecycle. A terminal status is
// a no-op and sends nothing.
func (m *Mutator) Advance(ctx context.Context, orderID int64, current models.Status) (models.Status, error) {
	next := models.NextStatus(current)
	if next == current {
		m.record(audit.Entry{Action: "advance", Subject: orderKey(orderID), OldState: string(current), Outcome: audit.OutcomeSkipped})
		return current, nil
	}
	if err := m.SetStatus(ctx, orderID, current, next); err != nil {
		return current, err
	}
	return next, nil
}

// SetStatus posts an explicit target status. Targets behind current are
// refused before any request, and Closed needs confirmation like CloseOrder.
func (m *Mutator) SetStatus(ctx context.Context, orderID int64, current, target models.Status) error {
	if !models.CanTransition(current, target) {
		return fmt.Errorf("order %d: %s -> %s: %w", orderID, current, target, ErrStatusRegression)
	}
	if target == models.StatusClosed && current != models.StatusClosed &&
		!m.opts.Confirmer.Confirm(ctx, fmt.Sprintf("Close order #%d?", orderID)) {
		m.record(audit.Entry{Action: "status", Subject: orderKey(orderID), OldState: string(current), NewState: string(target), Outcome: audit.OutcomeSkipped, Message: "not confirmed"})
		return ErrNotConfirmed
	}
	key := orderKey(orderID)
	if !m.acquire(key) {
		return ErrInFlight
	}
	defer m.release(key)

	err := m.backend.UpdateOrderStatus(ctx, orderID, target)
	m.settle(err, "status", key, string(current), string(target), "Failed to update status")
	m.refresh(err, m.opts.Orders)
	return err
}

// AddItem validates locally, then posts the item. Success closes the input
// surface.
func (m *Mutator) AddItem(ctx context.Context, orderID, itemID int64, qty int) error {
	if err := backend.ValidateAddItem(orderID, itemID, qty); err != nil {
		m.opts.Notifier.Notify(notify.New(notify.LevelError, orderKey(orderID), "%s", validationMessage(err)))
		return err
	}
	key := itemsKey(orderID)
	if !m.acquire(key) {
		return ErrInFlight
	}
	defer m.release(key)

	err := m.backend.AddItem(ctx, orderID, itemID, qty)
	m.settle(err, "add_item", orderKey(orderID), "", fmt.Sprintf("item %d x%d", itemID, qty), "Failed to add item")
	if err == nil {
		m.opts.Navigator.CloseInput()
		m.opts.Notifier.Notify(notify.New(notify.LevelInfo, orderKey(orderID), "Item added"))
	}
	m.refresh(err, m.opts.Orders)
	return err
}

// CloseOrder asks for confirmation, then generates the bill. On failure the
// order stays open and a notice is raised.
func (m *Mutator) CloseOrder(ctx context.Context, orderID int64) error {
	if !m.opts.Confirmer.Confirm(ctx, fmt.Sprintf("Close order #%d and generate the bill?", orderID)) {
		m.record(audit.Entry{Action: "close", Subject: orderKey(orderID), Outcome: audit.OutcomeSkipped, Message: "not confirmed"})
		return ErrNotConfirmed
	}
	key := orderKey(orderID)
	if !m.acquire(key) {
		return ErrInFlight
	}
	defer m.release(key)

	err := m.backend.CloseOrder(ctx, orderID)
	m.settle(err, "close", key, "", string(models.StatusClosed), "Failed to close order")
	if err == nil {
		if m.opts.Invalidate != nil {
			m.opts.Invalidate()
		}
		m.opts.Navigator.ShowReceipt(orderID)
	}
	m.refresh(err, m.opts.Orders)
	return err
}

// MarkAdditionHandled acknowledges a kitchen addition and re-polls both
// feeds.
func (m *Mutator) MarkAdditionHandled(ctx context.Context, additionID int64) error {
	key := additionKey(additionID)
	if !m.acquire(key) {
		return ErrInFlight
	}
	defer m.release(key)

	err := m.backend.MarkAdditionHandled(ctx, additionID)
	m.settle(err, "addition_handled", key, "", "done", "Failed to update addition")
	m.refresh(err, m.opts.Additions, m.opts.Orders)
	return err
}

// settle logs, audits and surfaces the outcome of one command.
func (m *Mutator) settle(err error, action, subject, from, to, failure string) {
	entry := audit.Entry{Action: action, Subject: subject, OldState: from, NewState: to, Outcome: audit.OutcomeOK}
	log := m.opts.Logger.WithFields(logrus.Fields{"action": action, "subject": subject})

	var be *backend.BusinessError
	switch {
	case err == nil:
		log.Info("mutation applied")
	case errors.As(err, &be):
		entry.Outcome = audit.OutcomeRejected
		entry.Message = be.Message
		log.WithError(err).Error("mutation rejected")
		msg := failure
		if be.Message != "" {
			msg = be.Message
		}
		m.opts.Notifier.Notify(notify.New(notify.LevelError, subject, "%s", msg))
	default:
		entry.Outcome = audit.OutcomeFailed
		entry.Message = err.Error()
		log.WithError(err).Error("mutation failed")
		m.opts.Notifier.Notify(notify.New(notify.LevelError, subject, "%s", failure))
	}
	m.record(entry)
}

func (m *Mutator) record(e audit.Entry) {
	m.opts.Auditor.Log(e)
}

// refresh re-polls once the backend has answered, whether it accepted the
// command or refused it. Transport failures leave the schedule alone.
func (m *Mutator) refresh(err error, feeds ...Refresher) {
	var be *backend.BusinessError
	if err != nil && !errors.As(err, &be) {
		return
	}
	for _, f := range feeds {
		if f != nil {
			f.Trigger()
		}
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, backend.ErrInvalidQuantity):
		return "Quantity must be at least 1"
	case errors.Is(err, backend.ErrNoItemSelected):
		return "Please select an item"
	}
	return err.Error()
}
