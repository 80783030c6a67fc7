package notify

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out     io.Writer
	verbose bool
}

// NewConsole crea un notificador que escribe a stdout.
// verbose añade la tabla de órdenes y las transiciones de cada ventana.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// NotifyWindow imprime el resumen de una ventana cerrada.
func (c *Console) NotifyWindow(_ context.Context, o domain.WindowOutcome) error {
	up, down := o.Shares()
	set := o.Mergeable()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] window #%d %s → %s",
		o.ClosedAt.Local().Format("15:04:05"), o.Window.Index, marketLabel(o.Window.Market), o.Final)
	fmt.Fprintf(&sb, " | UP %.2f/%.2f DOWN %.2f/%.2f", up, o.Pair.Up.Original, down, o.Pair.Down.Original)
	fmt.Fprintf(&sb, " | cost $%.2f sets %.2f locked $%.4f", o.Cost(), set, lockedPnL(o))
	if m := o.Mitigation; m != nil {
		fmt.Fprintf(&sb, " | %s:%s", m.Policy, m.Action)
	}
	if o.Merge != nil {
		if o.Merge.Err != "" {
			fmt.Fprintf(&sb, " | merge FAILED")
		} else {
			fmt.Fprintf(&sb, " | merged %.2f", o.Merge.Shares)
		}
	}
	if o.Interrupted {
		sb.WriteString(" | interrupted")
	}
	fmt.Fprintln(c.out, sb.String())

	if o.Err != "" {
		fmt.Fprintf(c.out, "  error: %s\n", o.Err)
	}
	if o.Pair.Up.OrderID != "" && o.Pair.Down.OrderID == "" {
		fmt.Fprintf(c.out, "  WARNING: UP order %s was accepted without its DOWN leg\n", o.Pair.Up.OrderID)
	}

	if c.verbose {
		c.printOrders(o)
		for _, t := range o.Transitions {
			fmt.Fprintf(c.out, "  %s  %s → %s\n", t.At.Local().Format("15:04:05.000"), t.From, t.To)
		}
	}
	return nil
}

// PrintHistory imprime una tabla con las ventanas pasadas y sus totales.
func (c *Console) PrintHistory(_ context.Context, outs []domain.WindowOutcome) error {
	if len(outs) == 0 {
		fmt.Fprintln(c.out, "No windows found")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Start", "Market", "Final", "UP", "DOWN", "Sets", "Cost", "Locked", "Mitigation", "Merge")

	var (
		full, single, mitigated int
		cost, locked, merged    float64
	)
	for i, o := range outs {
		up, down := o.Shares()
		mit := "-"
		if m := o.Mitigation; m != nil {
			mit = fmt.Sprintf("%s:%s", m.Policy, m.Action)
			mitigated++
		}
		mergeLabel := "-"
		if m := o.Merge; m != nil {
			if m.Err != "" {
				mergeLabel = "failed"
			} else {
				mergeLabel = fmt.Sprintf("%.2f", m.Shares)
				merged += m.Shares
			}
		}
		if o.Final == domain.StateFullyFilled {
			full++
		}
		if o.FirstSingleFillAt != nil {
			single++
		}
		cost += o.Cost()
		locked += lockedPnL(o)

		table.Append(
			fmt.Sprintf("%d", i+1),
			o.Window.Start.Local().Format("01-02 15:04"),
			marketLabel(o.Window.Market),
			string(o.Final),
			fmt.Sprintf("%.2f", up),
			fmt.Sprintf("%.2f", down),
			fmt.Sprintf("%.2f", o.Mergeable()),
			fmt.Sprintf("$%.2f", o.Cost()),
			fmt.Sprintf("$%.4f", lockedPnL(o)),
			mit,
			mergeLabel,
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "\n  --- AGGREGATE ---\n")
	fmt.Fprintf(c.out, "  Windows:             %d\n", len(outs))
	fmt.Fprintf(c.out, "  Fully filled:        %d (%.0f%%)\n", full, pct(full, len(outs)))
	fmt.Fprintf(c.out, "  Single-leg episodes: %d\n", single)
	fmt.Fprintf(c.out, "  Mitigations:         %d\n", mitigated)
	fmt.Fprintf(c.out, "  Total cost:          $%.2f\n", cost)
	fmt.Fprintf(c.out, "  Locked P&L:          $%.4f\n", locked)
	fmt.Fprintf(c.out, "  Merged sets:         %.2f\n", merged)
	return nil
}

func (c *Console) printOrders(o domain.WindowOutcome) {
	legs := []domain.Leg{o.Pair.Up, o.Pair.Down}
	if o.Hedge != nil {
		legs = append(legs, *o.Hedge)
	}
	cancels := make(map[string]domain.CancelResult, len(o.Cancels))
	for _, cr := range o.Cancels {
		cancels[cr.OrderID] = cr
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Leg", "Order", "Price", "Size", "Matched", "Cancel")
	for _, l := range legs {
		name := string(l.Outcome)
		if l.Hedge {
			name += " (hedge)"
		}
		cancel := "-"
		if cr, ok := cancels[l.OrderID]; ok {
			cancel = "ok"
			if !cr.OK {
				cancel = truncate(cr.Reason, 24)
			}
		}
		table.Append(
			name,
			truncate(l.OrderID, 14),
			fmt.Sprintf("%.4f", l.Price),
			fmt.Sprintf("%.2f", l.Size),
			fmt.Sprintf("%.2f", l.Matched),
			cancel,
		)
	}
	table.Render()
}

// lockedPnL es el valor de los sets completos ($1 cada uno) menos todo lo gastado.
// Las acciones sueltas cuentan como cero: no hay precio de salida garantizado.
func lockedPnL(o domain.WindowOutcome) float64 {
	return o.Mergeable() - o.Cost()
}

func marketLabel(m domain.Market) string {
	switch {
	case m.Slug != "":
		return compactName(m.Slug, 32)
	case m.Question != "":
		return compactName(m.Question, 32)
	}
	return truncate(m.Up.TokenID, 14)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// compactName recorta s a maxLen conservando el final, que en los slugs lleva el epoch.
func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-(maxLen-3):]
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n) / float64(total) * 100)
}
