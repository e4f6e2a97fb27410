package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a non-blocking user-facing message: a toast in place of an
// alert dialog.
type Notice struct {
	ID      uuid.UUID `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Subject string    `json:"subject,omitempty"`
	Time    time.Time `json:"time"`
}

func New(level Level, subject, format string, args ...any) Notice {
	return Notice{
		ID:      uuid.New(),
		Level:   level,
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
		Time:    time.Now().UTC(),
	}
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type Multi []Notifier

func (m Multi) Notify(n Notice) {
	for _, x := range m {
		x.Notify(n)
	}
}

// Channel buffers notices for a consumer and keeps the most recent ones for
// late readers. A full channel drops the notice from the stream, never
// blocking the caller; it still lands in Recent.
type Channel struct {
	ch chan Notice

	mu     sync.Mutex
	recent []Notice
	keep   int
}

func NewChannel(size, keep int) *Channel {
	return &Channel{ch: make(chan Notice, size), keep: keep}
}

func (c *Channel) Notify(n Notice) {
	c.mu.Lock()
	c.recent = append(c.recent, n)
	if len(c.recent) > c.keep {
		c.recent = c.recent[len(c.recent)-c.keep:]
	}
	c.mu.Unlock()

	select {
	case c.ch <- n:
	default:
	}
}

func (c *Channel) C() <-chan Notice {
	return c.ch
}

func (c *Channel) Recent() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notice, len(c.recent))
	copy(out, c.recent)
	return out
}

type Log struct {
	Logger logrus.FieldLogger
}

func (l Log) Notify(n Notice) {
	entry := l.Logger.WithFields(logrus.Fields{"notice_id": n.ID.String(), "subject": n.Subject})
	if n.Level == LevelError {
		entry.Error(n.Message)
		return
	}
	entry.Info(n.Message)
}

// Alerter plays the audible cue for newly observed kitchen work.
type Alerter interface {
	Alert(fresh int)
}

type AlerterFunc func(fresh int)

func (f AlerterFunc) Alert(fresh int) { f(fresh) }

// Bell rings the terminal bell.
type Bell struct {
	W io.Writer
}

func (b Bell) Alert(fresh int) {
	_, _ = fmt.Fprintf(b.W, "\a%d new addition(s)\n", fresh)
}

// Confirmer gates destructive actions.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Always answers every prompt the same way.
type Always bool

func (a Always) Confirm(context.Context, string) bool { return bool(a) }

type confirmedKey struct{}

// WithConfirmation marks ctx as carrying the operator's consent, for
// surfaces that collect it up front.
func WithConfirmation(ctx context.Context) context.Context {
	return context.WithValue(ctx, confirmedKey{}, true)
}

func Confirmed(ctx context.Context) bool {
	ok, _ := ctx.Value(confirmedKey{}).(bool)
	return ok
}

// Prompted accepts contexts that already carry consent and asks Fallback
// otherwise. A nil Fallback declines.
type Prompted struct {
	Fallback Confirmer
}

func (p Prompted) Confirm(ctx context.Context, prompt string) bool {
	if Confirmed(ctx) {
		return true
	}
	if p.Fallback == nil {
		return false
	}
	return p.Fallback.Confirm(ctx, prompt)
}

// Navigator moves the operator between surfaces after a mutation.
type Navigator interface {
	ShowReceipt(orderID int64)
	CloseInput()
}

type NopNavigator struct{}

func (NopNavigator) ShowReceipt(int64) {}
func (NopNavigator) CloseInput()       {}
