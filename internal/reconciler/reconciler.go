package reconciler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

// BuildFunc turns a normalized snapshot into a complete view.
type BuildFunc[T any] func(items []T) view.View

// Reconciler renders a snapshot only when its change key differs from the
// key of the last snapshot that was actually rendered.
type Reconciler[T any] struct {
	mu       sync.Mutex
	kind     view.Kind
	build    BuildFunc[T]
	renderer view.Renderer
	log      logrus.FieldLogger
	now      func() time.Time

	lastKey  string
	last     []T
	lastView view.View
	renders  int
}

func New[T any](kind view.Kind, build BuildFunc[T], renderer view.Renderer, log logrus.FieldLogger) *Reconciler[T] {
	return &Reconciler[T]{
		kind:     kind,
		build:    build,
		renderer: renderer,
		log:      log.WithField("view", string(kind)),
		now:      time.Now,
	}
}

// Apply reconciles one snapshot. It reports whether a render happened. A
// failed render leaves the change key untouched so the next poll retries.
func (r *Reconciler[T]) Apply(snap backend.Snapshot[T]) (bool, error) {
	key, err := ChangeKey(snap)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if key == r.lastKey {
		return false, nil
	}
	v := r.build(snap.Items)
	v.Kind = r.kind
	v.Key = key
	v.RenderedAt = r.now().UTC()

	if err := r.renderer.Render(v); err != nil {
		return false, fmt.Errorf("render %s: %w", r.kind, err)
	}
	r.lastKey = key
	r.last = snap.Items
	r.lastView = v
	r.renders++
	r.log.WithField("rows", v.Rows()).Debug("view rendered")
	return true, nil
}

// Invalidate forgets the last change key; the next snapshot renders even if
// it is identical.
func (r *Reconciler[T]) Invalidate() {
	r.mu.Lock()
	r.lastKey = ""
	r.mu.Unlock()
}

// Snapshot returns a copy of the last rendered items.
func (r *Reconciler[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.last))
	copy(out, r.last)
	return out
}

// Find returns the first item of the last rendered snapshot matching pred.
func (r *Reconciler[T]) Find(pred func(T) bool) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.last {
		if pred(it) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func (r *Reconciler[T]) View() (view.View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastView, r.renders > 0
}

func (r *Reconciler[T]) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// ChangeKey prefers the version the backend attached to the snapshot and
// falls back to a sha256 of its canonical JSON.
func ChangeKey[T any](snap backend.Snapshot[T]) (string, error) {
	if snap.Version != "" {
		return "v:" + snap.Version, nil
	}
	items := snap.Items
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("hash snapshot: %w", err)
	}
	sum := sha256.Sum256(raw)
	return "h:" + hex.EncodeToString(sum[:]), nil
}
