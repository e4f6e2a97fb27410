package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

// Text prints each view as a table. Writes are serialized so interleaved
// feeds never mix lines.
type Text struct {
	mu sync.Mutex
	w  io.Writer
}

func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

func (t *Text) Render(v view.View) error {
	var sb strings.Builder
	Write(&sb, v)

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.w, sb.String())
	return err
}

// Write formats v into w.
func Write(w io.Writer, v view.View) {
	header := fmt.Sprintf("== %s ==", v.Kind)
	if a := v.Aggregates; a != nil {
		header += fmt.Sprintf("  orders: %d  pending: %d  revenue: %s", a.Count, a.Pending, a.Revenue.StringFixed(2))
	}
	fmt.Fprintln(w, header)
	if v.Message != "" {
		fmt.Fprintln(w, v.Message)
	}
	if v.Placeholder != "" {
		fmt.Fprintf(w, "  %s\n", v.Placeholder)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch {
	case len(v.Orders) > 0:
		fmt.Fprintln(tw, "  ID\tTABLE\tSTATUS\tITEMS\tTOTAL")
		for _, o := range v.Orders {
			fmt.Fprintf(tw, "  #%d\t%d\t%s\t%s\t%s\n", o.ID, o.TableNo, o.Status, o.Items.Line(", "), o.Total.StringFixed(2))
		}
	case len(v.Additions) > 0:
		fmt.Fprintln(tw, "  ID\tTABLE\tITEM\tSTATUS")
		for _, a := range v.Additions {
			fmt.Fprintf(tw, "  #%d\t%d\t%d× %s\t%s\n", a.ID, a.TableNo, a.Qty, a.ItemName, a.Status)
		}
	case len(v.Menu) > 0:
		fmt.Fprintln(tw, "  ID\tNAME\tCATEGORY\tPRICE\tAVAILABLE")
		for _, m := range v.Menu {
			avail := "yes"
			if !m.Available {
				avail = "no"
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Category, m.Price.StringFixed(2), avail)
		}
	}
	_ = tw.Flush()
}
