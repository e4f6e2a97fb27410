package view

import (
	"github.com/shopspring/decimal"

	"gitlab.ozon.dev/qwestard/possync/internal/models"
)

// Summarize computes the board aggregates over the whole snapshot: pending
// counts every non-terminal order, revenue sums totals of terminal ones.
func Summarize(orders []models.Order) Aggregates {
	agg := Aggregates{Count: len(orders), Revenue: decimal.Zero}
	for _, o := range orders {
		if o.Status.IsTerminal() {
			agg.Revenue = agg.Revenue.Add(o.Total)
			continue
		}
		agg.Pending++
	}
	return agg
}

func Operations(orders []models.Order) View {
	agg := Summarize(orders)
	v := View{Kind: KindOperations, Aggregates: &agg}
	if len(orders) == 0 {
		v.Placeholder = PlaceholderOperations
		return v
	}
	v.Orders = orders
	return v
}

// Kitchen keeps only active orders, in snapshot order.
func Kitchen(orders []models.Order) View {
	agg := Summarize(orders)
	v := View{Kind: KindKitchen, Aggregates: &agg}
	active := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status.IsActive() {
			active = append(active, o)
		}
	}
	if len(active) == 0 {
		v.Placeholder = PlaceholderKitchen
		return v
	}
	v.Orders = active
	return v
}

func Additions(items []models.Addition) View {
	v := View{Kind: KindAdditions}
	if len(items) == 0 {
		v.Placeholder = PlaceholderAdditions
		return v
	}
	v.Additions = items
	return v
}

func Menu(items []models.MenuItem) View {
	v := View{Kind: KindMenu}
	if len(items) == 0 {
		v.Placeholder = PlaceholderMenu
		return v
	}
	v.Menu = items
	return v
}

// History renders an orders-by-date report. Count and revenue come from the
// backend as-is.
func History(report models.HistoryReport) View {
	v := View{
		Kind:       KindHistory,
		Aggregates: &Aggregates{Count: report.Count, Revenue: report.Revenue},
	}
	for _, o := range report.Orders {
		if !o.Status.IsTerminal() {
			v.Aggregates.Pending++
		}
	}
	if len(report.Orders) == 0 {
		v.Placeholder = PlaceholderHistory
		return v
	}
	v.Orders = report.Orders
	return v
}
