// Package backendtest runs an in-memory POS backend over httptest for
// tests of packages that sit on top of the backend client.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"gitlab.ozon.dev/qwestard/possync/internal/models"
)

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	orders    []models.Order
	additions []models.Addition
	menu      []models.MenuItem
	history   map[string]models.HistoryReport
	calls     map[string]int
	failLists bool
	reject    map[string]string
}

func New() *Server {
	s := &Server{
		history: make(map[string]models.HistoryReport),
		calls:   make(map[string]int),
		reject:  make(map[string]string),
	}
	r := mux.NewRouter()
	r.HandleFunc("/api/orders", s.listOrders(false)).Methods(http.MethodGet)
	r.HandleFunc("/api/kitchen/orders", s.listOrders(true)).Methods(http.MethodGet)
	r.HandleFunc("/api/kitchen/additions", s.listAdditions).Methods(http.MethodGet)
	r.HandleFunc("/api/menu", s.listMenu).Methods(http.MethodGet)
	r.HandleFunc("/api/order/{id:[0-9]+}/status", s.updateStatus).Methods(http.MethodPost)
	r.HandleFunc("/api/order/{id:[0-9]+}/add-item", s.addItem).Methods(http.MethodPost)
	r.HandleFunc("/api/order/{id:[0-9]+}/generate-close", s.closeOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/kitchen/addition/{id:[0-9]+}/status", s.additionHandled).Methods(http.MethodPost)
	r.HandleFunc("/admin/orders/by-date", s.byDate).Methods(http.MethodGet)
	s.Server = httptest.NewServer(s.count(r))
	return s
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// Calls returns how many times "METHOD /path" was requested.
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *Server) SetOrders(orders ...models.Order) {
	s.mu.Lock()
	s.orders = orders
	s.mu.Unlock()
}

func (s *Server) SetAdditions(adds ...models.Addition) {
	s.mu.Lock()
	s.additions = adds
	s.mu.Unlock()
}

func (s *Server) SetMenu(items ...models.MenuItem) {
	s.mu.Lock()
	s.menu = items
	s.mu.Unlock()
}

func (s *Server) SetHistory(date string, report models.HistoryReport) {
	s.mu.Lock()
	s.history[date] = report
	s.mu.Unlock()
}

// FailLists makes every GET return 503.
func (s *Server) FailLists(fail bool) {
	s.mu.Lock()
	s.failLists = fail
	s.mu.Unlock()
}

// Reject makes mutations on the given route name ("status", "add-item",
// "close", "addition") answer success:false with message.
func (s *Server) Reject(route, message string) {
	s.mu.Lock()
	s.reject[route] = message
	s.mu.Unlock()
}

func (s *Server) Order(id int64) (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o, true
		}
	}
	return models.Order{}, false
}

func Order(id int64, table int, total int64, status models.Status, items ...models.Item) models.Order {
	if items == nil {
		items = []models.Item{}
	}
	return models.Order{ID: id, TableNo: table, Total: decimal.NewFromInt(total), Status: status, Items: items}
}

func (s *Server) listOrders(activeOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failLists {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		out := make([]models.Order, 0, len(s.orders))
		for _, o := range s.orders {
			if activeOnly && !o.Status.IsActive() {
				continue
			}
			out = append(out, o)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) listAdditions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLists {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	out := make([]models.Addition, len(s.additions))
	copy(out, s.additions)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listMenu(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLists {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	out := make([]models.MenuItem, len(s.menu))
	copy(out, s.menu)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) rejected(w http.ResponseWriter, route string) bool {
	msg, ok := s.reject[route]
	if ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": msg})
	}
	return ok
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejected(w, "status") {
		return
	}
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = models.ParseStatus(body.Status)
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Order not found"})
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	var body struct {
		ItemID int64 `json:"item_id"`
		Qty    int   `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejected(w, "add-item") {
		return
	}
	var item *models.MenuItem
	for i := range s.menu {
		if s.menu[i].ID == body.ItemID {
			item = &s.menu[i]
		}
	}
	if item == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Menu item not found"})
		return
	}
	for i := range s.orders {
		if s.orders[i].ID == id {
			o := &s.orders[i]
			o.Items = append(o.Items, models.Item{Name: item.Name, Qty: body.Qty, Price: item.Price})
			o.Total = o.Total.Add(item.Price.Mul(decimal.NewFromInt(int64(body.Qty))))
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Order not found"})
}

func (s *Server) closeOrder(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejected(w, "close") {
		return
	}
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = models.StatusClosed
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": false})
}

func (s *Server) additionHandled(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejected(w, "addition") {
		return
	}
	kept := s.additions[:0]
	for _, a := range s.additions {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	s.additions = kept
	w.WriteHeader(http.StatusOK)
}

func (s *Server) byDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Date required"})
		return
	}
	s.mu.Lock()
	report, ok := s.history[date]
	s.mu.Unlock()
	if !ok {
		report = models.HistoryReport{Orders: []models.Order{}}
	}
	writeJSON(w, http.StatusOK, report)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
