package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/audit"
	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/cache"
	"gitlab.ozon.dev/qwestard/possync/internal/catalog"
	"gitlab.ozon.dev/qwestard/possync/internal/middleware"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/mutator"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
	"gitlab.ozon.dev/qwestard/possync/internal/poller"
	"gitlab.ozon.dev/qwestard/possync/internal/session"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

// Board is the mounted synchronization session the server drives.
type Board interface {
	Kind() view.Kind
	Advance(ctx context.Context, orderID int64) (models.Status, error)
	SetStatus(ctx context.Context, orderID int64, target models.Status) error
	AddItem(ctx context.Context, orderID, itemID int64, qty int) error
	CloseOrder(ctx context.Context, orderID int64) error
	MarkAdditionHandled(ctx context.Context, additionID int64) error
	Health() []poller.Health
	Healthy() bool
}

type Menu interface {
	Load(ctx context.Context, f catalog.Filter) (view.View, error)
}

type History interface {
	ByDate(ctx context.Context, date string) (view.View, error)
}

type Notices interface {
	Recent() []notify.Notice
}

type Deps struct {
	Board   Board
	Views   *cache.ViewCache
	Menu    Menu
	History History
	Notices Notices
	Auditor middleware.Auditor
	Logger  logrus.FieldLogger
}

type Server struct {
	Deps
	addr string
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Auditor == nil {
		deps.Auditor = audit.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Server{Deps: deps, addr: addr}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.LogMiddleware(s.Logger, s.Auditor, http.MethodPost))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/view/{kind}", s.handleView).Methods(http.MethodGet)
	r.HandleFunc("/notices", s.handleNotices).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/menu", s.handleMenu).Methods(http.MethodGet)

	r.HandleFunc("/orders/{id:[0-9]+}/advance", s.handleAdvance).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id:[0-9]+}/status", s.handleSetStatus).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id:[0-9]+}/items", s.handleAddItem).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id:[0-9]+}/close", s.handleClose).Methods(http.MethodPost)
	r.HandleFunc("/additions/{id:[0-9]+}/handled", s.handleAdditionHandled).Methods(http.MethodPost)
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Logger.WithField("addr", s.addr).Info("control surface listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type healthFeed struct {
	Name        string    `json:"name"`
	OK          bool      `json:"ok"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Polls       int       `json:"polls"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var feeds []healthFeed
	for _, h := range s.Board.Health() {
		f := healthFeed{Name: h.Name, OK: h.OK(), LastSuccess: h.LastSuccess, Polls: h.Polls}
		if h.LastError != nil {
			f.LastError = h.LastError.Error()
		}
		feeds = append(feeds, f)
	}
	status := http.StatusOK
	if !s.Board.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"board": s.Board.Kind(), "feeds": feeds, "views": s.Views.Kinds()})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	kind, ok := view.ParseKind(mux.Vars(r)["kind"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown view")
		return
	}
	v, ok := s.Views.Get(kind)
	if !ok {
		writeError(w, http.StatusNotFound, "view not rendered yet")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleNotices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Notices.Recent())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	v, err := s.History.ByDate(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v, err := s.Menu.Load(r.Context(), catalog.Filter{Category: q.Get("category"), Search: q.Get("search")})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, v)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	st, err := s.Board.Advance(r.Context(), id)
	if err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": st})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad JSON")
		return
	}
	target := models.ParseStatus(body.Status)
	if !target.Known() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	ctx := r.Context()
	if confirmed(r) {
		ctx = notify.WithConfirmation(ctx)
	} else if target == models.StatusClosed {
		writeError(w, http.StatusPreconditionFailed, "confirmation required")
		return
	}
	if err := s.Board.SetStatus(ctx, pathID(r), target); err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": target})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID int64 `json:"item_id"`
		Qty    int   `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad JSON")
		return
	}
	if err := s.Board.AddItem(r.Context(), pathID(r), body.ItemID, body.Qty); err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleClose needs ?confirm=true; without it nothing is sent.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r) {
		writeError(w, http.StatusPreconditionFailed, "confirmation required")
		return
	}
	id := pathID(r)
	if err := s.Board.CloseOrder(notify.WithConfirmation(r.Context()), id); err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "receipt": "/orders/" + strconv.FormatInt(id, 10) + "/receipt"})
}

func (s *Server) handleAdditionHandled(w http.ResponseWriter, r *http.Request) {
	if err := s.Board.MarkAdditionHandled(r.Context(), pathID(r)); err != nil {
		s.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) writeMutationError(w http.ResponseWriter, err error) {
	var be *backend.BusinessError
	switch {
	case backend.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrUnknownOrder):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mutator.ErrInFlight), errors.Is(err, mutator.ErrStatusRegression):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, mutator.ErrNotConfirmed):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.As(err, &be):
		msg := be.Message
		if msg == "" {
			msg = "rejected by backend"
		}
		writeError(w, http.StatusUnprocessableEntity, msg)
	default:
		s.Logger.WithError(err).Error("backend unavailable")
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

// confirmed reports the operator's consent given with ?confirm. The
// console confirmer is never asked from an HTTP request.
func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
