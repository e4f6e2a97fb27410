package view

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"gitlab.ozon.dev/qwestard/possync/internal/models"
)

type Kind string

const (
	KindOperations Kind = "operations"
	KindKitchen    Kind = "kitchen"
	KindAdditions  Kind = "additions"
	KindMenu       Kind = "menu"
	KindHistory    Kind = "history"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindOperations, KindKitchen, KindAdditions, KindMenu, KindHistory:
		return k, true
	}
	return "", false
}

const (
	PlaceholderOperations = "No orders yet"
	PlaceholderKitchen    = "No active orders"
	PlaceholderAdditions  = "No new additions"
	PlaceholderMenu       = "No menu items found"
	PlaceholderMenuFailed = "Failed to load menu"
	PlaceholderHistory    = "No orders for this date"
)

type Aggregates struct {
	Count   int             `json:"count"`
	Pending int             `json:"pending"`
	Revenue decimal.Decimal `json:"revenue"`
}

// View is one fully rendered board. Exactly one of the row slices is used,
// depending on Kind; Placeholder is set instead of rows when there is
// nothing to show.
type View struct {
	Kind        Kind              `json:"kind"`
	Key         string            `json:"key,omitempty"`
	Orders      []models.Order    `json:"orders,omitempty"`
	Additions   []models.Addition `json:"additions,omitempty"`
	Menu        []models.MenuItem `json:"menu,omitempty"`
	Aggregates  *Aggregates       `json:"aggregates,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Message     string            `json:"message,omitempty"`
	RenderedAt  time.Time         `json:"rendered_at"`
}

func (v View) Empty() bool {
	return v.Placeholder != ""
}

func (v View) Rows() int {
	return len(v.Orders) + len(v.Additions) + len(v.Menu)
}

// Renderer receives every view that passed change detection.
type Renderer interface {
	Render(v View) error
}

type RenderFunc func(v View) error

func (f RenderFunc) Render(v View) error {
	return f(v)
}

// Multi renders to every renderer in order and joins their errors.
type Multi []Renderer

func (m Multi) Render(v View) error {
	var errs []error
	for _, r := range m {
		if err := r.Render(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
