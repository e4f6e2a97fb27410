package tracker

import (
	"sync"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
)

type Applier interface {
	Apply(snap backend.Snapshot[models.Addition]) (bool, error)
}

// Tracker sits in front of the additions reconciler and rings once per poll
// that carries ids it has never seen. The seen set only grows for the
// lifetime of the tracker.
type Tracker struct {
	mu    sync.Mutex
	seen  map[int64]struct{}
	alert notify.Alerter
	next  Applier
	log   logrus.FieldLogger
}

func New(alert notify.Alerter, next Applier, log logrus.FieldLogger) *Tracker {
	return &Tracker{
		seen:  make(map[int64]struct{}),
		alert: alert,
		next:  next,
		log:   log,
	}
}

// Observe records every id in items and returns the ones not seen before, in
// snapshot order.
func (t *Tracker) Observe(items []models.Addition) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fresh []int64
	for _, a := range items {
		if _, ok := t.seen[a.ID]; ok {
			continue
		}
		t.seen[a.ID] = struct{}{}
		fresh = append(fresh, a.ID)
	}
	return fresh
}

func (t *Tracker) Apply(snap backend.Snapshot[models.Addition]) (bool, error) {
	if fresh := t.Observe(snap.Items); len(fresh) > 0 {
		t.log.WithField("ids", fresh).Info("new additions")
		t.alert.Alert(len(fresh))
	}
	return t.next.Apply(snap)
}

func (t *Tracker) Seen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
