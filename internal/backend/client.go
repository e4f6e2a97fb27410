package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.ozon.dev/qwestard/possync/internal/models"
)

// Snapshot is one full poll result. Version is set when the backend sends
// an ETag or X-Snapshot-Version header.
type Snapshot[T any] struct {
	Items   []T
	Version string
}

type Paths struct {
	Orders         string
	KitchenOrders  string
	Additions      string
	OrderStatus    string
	AddItem        string
	CloseOrder     string
	AdditionStatus string
	OrdersByDate   string
	Menu           string
}

func DefaultPaths() Paths {
	return Paths{
		Orders:         "/api/orders",
		KitchenOrders:  "/api/kitchen/orders",
		Additions:      "/api/kitchen/additions",
		OrderStatus:    "/api/order/%d/status",
		AddItem:        "/api/order/%d/add-item",
		CloseOrder:     "/api/order/%d/generate-close",
		AdditionStatus: "/api/kitchen/addition/%d/status",
		OrdersByDate:   "/admin/orders/by-date",
		Menu:           "/api/menu",
	}
}

type Client struct {
	baseURL string
	http    *http.Client
	paths   Paths
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		paths:   DefaultPaths(),
	}
}

type result struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) ListOrders(ctx context.Context) (Snapshot[models.Order], error) {
	return list[models.Order](ctx, c, "list orders", c.paths.Orders)
}

func (c *Client) ListKitchenOrders(ctx context.Context) (Snapshot[models.Order], error) {
	return list[models.Order](ctx, c, "list kitchen orders", c.paths.KitchenOrders)
}

func (c *Client) ListAdditions(ctx context.Context) (Snapshot[models.Addition], error) {
	return list[models.Addition](ctx, c, "list additions", c.paths.Additions)
}

func (c *Client) ListMenu(ctx context.Context) ([]models.MenuItem, error) {
	snap, err := list[models.MenuItem](ctx, c, "list menu", c.paths.Menu)
	return snap.Items, err
}

func list[T any](ctx context.Context, c *Client, op, path string) (Snapshot[T], error) {
	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Snapshot[T]{}, transportErr(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Snapshot[T]{}, transportErr(op, fmt.Errorf("status %d", resp.StatusCode))
	}
	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return Snapshot[T]{}, decodeErr(op, err)
	}
	if items == nil {
		items = []T{}
	}
	version := resp.Header.Get("X-Snapshot-Version")
	if version == "" {
		version = resp.Header.Get("ETag")
	}
	return Snapshot[T]{Items: items, Version: version}, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID int64, status models.Status) error {
	body := map[string]string{"status": string(status)}
	return c.command(ctx, "update order status", fmt.Sprintf(c.paths.OrderStatus, orderID), body)
}

func (c *Client) AddItem(ctx context.Context, orderID, itemID int64, qty int) error {
	if err := ValidateAddItem(orderID, itemID, qty); err != nil {
		return err
	}
	body := map[string]any{"item_id": itemID, "qty": qty}
	return c.command(ctx, "add item", fmt.Sprintf(c.paths.AddItem, orderID), body)
}

func (c *Client) CloseOrder(ctx context.Context, orderID int64) error {
	return c.command(ctx, "close order", fmt.Sprintf(c.paths.CloseOrder, orderID), nil)
}

func (c *Client) MarkAdditionHandled(ctx context.Context, additionID int64) error {
	return c.command(ctx, "mark addition handled", fmt.Sprintf(c.paths.AdditionStatus, additionID), nil)
}

func (c *Client) OrdersByDate(ctx context.Context, date string) (models.HistoryReport, error) {
	const op = "orders by date"
	date = strings.TrimSpace(date)
	if date == "" {
		return models.HistoryReport{}, ErrDateRequired
	}
	path := c.paths.OrdersByDate + "?date=" + url.QueryEscape(date)
	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return models.HistoryReport{}, transportErr(op, err)
	}
	var report models.HistoryReport
	decodeFailed := json.Unmarshal(body, &report) != nil
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && !decodeFailed && report.Error != "" {
		return models.HistoryReport{}, &BusinessError{Op: op, Message: report.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.HistoryReport{}, transportErr(op, fmt.Errorf("status %d", resp.StatusCode))
	}
	if decodeFailed {
		return models.HistoryReport{}, decodeErr(op, errors.New("malformed report"))
	}
	if report.Error != "" {
		return models.HistoryReport{}, &BusinessError{Op: op, Message: report.Error}
	}
	if report.Orders == nil {
		report.Orders = []models.Order{}
	}
	return report, nil
}

// command posts a mutation and classifies the outcome. A 2xx without a
// JSON envelope counts as success.
func (c *Client) command(ctx context.Context, op, path string, payload any) error {
	resp, body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return transportErr(op, err)
	}
	var res result
	parsed := len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &res) == nil

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && parsed && res.Error != "" {
		return &BusinessError{Op: op, Message: res.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return transportErr(op, fmt.Errorf("status %d", resp.StatusCode))
	}
	if parsed && res.Success != nil && !*res.Success {
		return &BusinessError{Op: op, Message: res.Error}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, []byte, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}
