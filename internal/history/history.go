package history

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

type Source interface {
	OrdersByDate(ctx context.Context, date string) (models.HistoryReport, error)
}

type Lookup struct {
	src      Source
	renderer view.Renderer
	notifier notify.Notifier
	log      logrus.FieldLogger
}

func New(src Source, renderer view.Renderer, notifier notify.Notifier, log logrus.FieldLogger) *Lookup {
	if notifier == nil {
		notifier = notify.Multi{}
	}
	return &Lookup{src: src, renderer: renderer, notifier: notifier, log: log.WithField("view", "history")}
}

// ByDate fetches and renders the orders of one day. An empty date is
// refused without a request; a backend error message is shown verbatim.
func (l *Lookup) ByDate(ctx context.Context, date string) (view.View, error) {
	report, err := l.src.OrdersByDate(ctx, date)
	if err != nil {
		l.notifier.Notify(notify.New(notify.LevelError, "history", "%s", message(err)))
		if !backend.IsValidation(err) {
			l.log.WithError(err).WithField("date", date).Error("history lookup failed")
		}
		return view.View{}, err
	}
	v := view.History(report)
	v.Message = "Orders for " + date
	v.RenderedAt = time.Now().UTC()
	return v, l.renderer.Render(v)
}

func message(err error) string {
	var be *backend.BusinessError
	switch {
	case errors.Is(err, backend.ErrDateRequired):
		return "Please select a date"
	case errors.As(err, &be) && be.Message != "":
		return be.Message
	}
	return "Failed to load orders"
}
