package handler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gitlab.ozon.dev/qwestard/possync/internal/catalog"
	"gitlab.ozon.dev/qwestard/possync/internal/models"
	"gitlab.ozon.dev/qwestard/possync/internal/mutator"
	"gitlab.ozon.dev/qwestard/possync/internal/render"
	"gitlab.ozon.dev/qwestard/possync/internal/session"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

var (
	ErrExit           = errors.New("exit")
	ErrUnknownCommand = errors.New("unknown command, type 'help' for usage")
)

type Board interface {
	Kind() view.Kind
	OrdersView() (view.View, bool)
	AdditionsView() (view.View, bool)
	Refresh()
	Advance(ctx context.Context, orderID int64) (models.Status, error)
	SetStatus(ctx context.Context, orderID int64, target models.Status) error
	AddItem(ctx context.Context, orderID, itemID int64, qty int) error
	CloseOrder(ctx context.Context, orderID int64) error
	MarkAdditionHandled(ctx context.Context, additionID int64) error
}

type Menu interface {
	Load(ctx context.Context, f catalog.Filter) (view.View, error)
	Categories() []string
}

type History interface {
	ByDate(ctx context.Context, date string) (view.View, error)
}

// Handler is the operator console. Failures of backend commands are already
// surfaced as notices, so it only prints what the notices do not cover.
type Handler struct {
	board   Board
	menu    Menu
	history History
	in      *bufio.Scanner
	out     io.Writer
}

func New(board Board, menu Menu, history History, in io.Reader, out io.Writer) *Handler {
	return &Handler{board: board, menu: menu, history: history, in: bufio.NewScanner(in), out: out}
}

// Run reads commands until exit, EOF or ctx is done.
func (h *Handler) Run(ctx context.Context) error {
	fmt.Fprintf(h.out, "%s board. Type 'help' for commands.\n", h.board.Kind())
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(h.out, "> ")
		if !h.in.Scan() {
			return h.in.Err()
		}
		fields := strings.Fields(h.in.Text())
		if len(fields) == 0 {
			continue
		}
		err := h.Execute(ctx, fields[0], fields[1:])
		switch {
		case errors.Is(err, ErrExit):
			return nil
		case err != nil:
			fmt.Fprintln(h.out, err)
		}
	}
}

// Confirm asks on the console. Only "y" or "yes" agree.
func (h *Handler) Confirm(_ context.Context, prompt string) bool {
	fmt.Fprintf(h.out, "%s [y/N]: ", prompt)
	if !h.in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(h.in.Text()))
	return answer == "y" || answer == "yes"
}

func (h *Handler) ShowReceipt(orderID int64) {
	fmt.Fprintf(h.out, "Order #%d closed, receipt ready\n", orderID)
}

func (h *Handler) CloseInput() {}

func (h *Handler) Execute(ctx context.Context, cmd string, args []string) error {
	commands := map[string]func(context.Context, []string){
		"help":    h.printHelp,
		"view":    h.handleView,
		"refresh": func(context.Context, []string) { h.board.Refresh() },
		"advance": h.handleAdvance,
		"status":  h.handleStatus,
		"add":     h.handleAdd,
		"close":   h.handleClose,
		"done":    h.handleDone,
		"history": h.handleHistory,
		"menu":    h.handleMenu,
	}
	if cmd == "exit" || cmd == "quit" {
		fmt.Fprintln(h.out, "Bye.")
		return ErrExit
	}
	fn, ok := commands[cmd]
	if !ok {
		return ErrUnknownCommand
	}
	fn(ctx, args)
	return nil
}

func (h *Handler) printHelp(context.Context, []string) {
	fmt.Fprintln(h.out, `Commands:
  view                          show the current board
  refresh                       poll the backend now
  advance <orderID>             move an order one step forward
  status <orderID> <status>     set Received, Preparing, Ready, Served or Closed
  add <orderID> <itemID> [qty]  add a menu item to an order (qty defaults to 1)
  close <orderID>               close an order and generate the bill
  done <additionID>             mark a kitchen addition as handled
  history <YYYY-MM-DD>          orders of one day
  menu [category] [search...]   browse the menu
  exit                          leave`)
}

func (h *Handler) handleView(context.Context, []string) {
	v, ok := h.board.OrdersView()
	if !ok {
		fmt.Fprintln(h.out, "Loading...")
		return
	}
	render.Write(h.out, v)
	if a, ok := h.board.AdditionsView(); ok {
		render.Write(h.out, a)
	}
}

func (h *Handler) handleAdvance(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(h.out, "Usage: advance <orderID>")
		return
	}
	id, ok := h.parseID(args[0])
	if !ok {
		return
	}
	st, err := h.board.Advance(ctx, id)
	if err != nil {
		h.printLocal(err)
		return
	}
	fmt.Fprintf(h.out, "Order #%d is %s\n", id, st)
}

func (h *Handler) handleStatus(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(h.out, "Usage: status <orderID> <status>")
		return
	}
	id, ok := h.parseID(args[0])
	if !ok {
		return
	}
	target := models.ParseStatus(args[1])
	if !target.Known() {
		fmt.Fprintf(h.out, "Unknown status %q\n", args[1])
		return
	}
	if err := h.board.SetStatus(ctx, id, target); err != nil {
		h.printLocal(err)
		return
	}
	fmt.Fprintf(h.out, "Order #%d is %s\n", id, target)
}

func (h *Handler) handleAdd(ctx context.Context, args []string) {
	if len(args) < 2 || len(args) > 3 {
		fmt.Fprintln(h.out, "Usage: add <orderID> <itemID> [qty]")
		return
	}
	orderID, ok := h.parseID(args[0])
	if !ok {
		return
	}
	itemID, ok := h.parseID(args[1])
	if !ok {
		return
	}
	qty := 1
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Fprintf(h.out, "Bad quantity %q\n", args[2])
			return
		}
		qty = n
	}
	if err := h.board.AddItem(ctx, orderID, itemID, qty); err != nil {
		h.printLocal(err)
	}
}

func (h *Handler) handleClose(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(h.out, "Usage: close <orderID>")
		return
	}
	id, ok := h.parseID(args[0])
	if !ok {
		return
	}
	if err := h.board.CloseOrder(ctx, id); err != nil {
		h.printLocal(err)
	}
}

func (h *Handler) handleDone(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(h.out, "Usage: done <additionID>")
		return
	}
	id, ok := h.parseID(args[0])
	if !ok {
		return
	}
	if err := h.board.MarkAdditionHandled(ctx, id); err == nil {
		fmt.Fprintf(h.out, "Addition #%d handled\n", id)
	} else {
		h.printLocal(err)
	}
}

func (h *Handler) handleHistory(ctx context.Context, args []string) {
	date := ""
	if len(args) > 0 {
		date = args[0]
	}
	_, _ = h.history.ByDate(ctx, date)
}

func (h *Handler) handleMenu(ctx context.Context, args []string) {
	var f catalog.Filter
	if len(args) > 0 {
		if args[0] == "categories" {
			if _, err := h.menu.Load(ctx, f); err == nil {
				fmt.Fprintln(h.out, strings.Join(h.menu.Categories(), ", "))
			}
			return
		}
		f.Category = args[0]
		f.Search = strings.Join(args[1:], " ")
	}
	_, _ = h.menu.Load(ctx, f)
}

func (h *Handler) parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(h.out, "Bad id %q\n", s)
		return 0, false
	}
	return id, true
}

// printLocal reports errors raised before any request reached the backend.
func (h *Handler) printLocal(err error) {
	switch {
	case errors.Is(err, session.ErrUnknownOrder):
		fmt.Fprintln(h.out, "No such order on the board")
	case errors.Is(err, mutator.ErrInFlight):
		fmt.Fprintln(h.out, "Still working on the previous command")
	case errors.Is(err, mutator.ErrStatusRegression):
		fmt.Fprintln(h.out, "An order cannot move back")
	case errors.Is(err, mutator.ErrNotConfirmed):
		fmt.Fprintln(h.out, "Cancelled")
	}
}
