package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Item struct {
	Name  string          `json:"name"`
	Qty   int             `json:"qty"`
	Price decimal.Decimal `json:"price"`
}

// Items is the ordered line-item list of an order. The backend sends it
// either as a JSON array or as a string holding that array; both decode to
// the same value.
type Items []Item

func (it *Items) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*it = Items{}
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode items text: %w", err)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" || raw == "null" {
			*it = Items{}
			return nil
		}
		data = []byte(raw)
	}
	var list []Item
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decode items: %w", err)
	}
	if list == nil {
		list = []Item{}
	}
	*it = list
	return nil
}

// Line renders items the way the boards show them: "2× Naan, 1× Dal".
func (it Items) Line(sep string) string {
	parts := make([]string, 0, len(it))
	for _, i := range it {
		parts = append(parts, fmt.Sprintf("%d× %s", i.Qty, i.Name))
	}
	return strings.Join(parts, sep)
}

type Order struct {
	ID           int64           `json:"id"`
	TableNo      int             `json:"table_no"`
	CustomerName string          `json:"customer_name,omitempty"`
	Items        Items           `json:"items"`
	Total        decimal.Decimal `json:"total"`
	Status       Status          `json:"status"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

type Addition struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id,omitempty"`
	TableNo   int    `json:"table_no"`
	ItemName  string `json:"item_name"`
	Qty       int    `json:"qty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

type MenuItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category"`
	Image     string          `json:"image,omitempty"`
	Available Flag            `json:"available"`
}

type HistoryReport struct {
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  []Order         `json:"orders"`
	Error   string          `json:"error,omitempty"`
}

// Flag is a boolean that also accepts the 0/1 integers some SQL backends
// emit.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1", `"1"`, `"true"`:
		*f = true
	case "false", "0", `"0"`, `"false"`, "null", `""`:
		*f = false
	default:
		return fmt.Errorf("decode flag: unexpected %s", data)
	}
	return nil
}
