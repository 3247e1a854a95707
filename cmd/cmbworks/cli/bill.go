package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/measurement/templates"
	"github.com/cmbworks/cmbworks/internal/project"
)

// ExitWarnings is returned when the bill was computed but the project data
// has inconsistencies worth a look.
const ExitWarnings = 10

// BillOptions defines available flags for the bill command.
type BillOptions struct {
	ProjectPath string
	BillIndex   int
	All         bool
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// ParseBillArgs reads bill command flags.
func ParseBillArgs(args []string, stdout, stderr io.Writer) (BillOptions, error) {
	opts := BillOptions{Stdout: stdout, Stderr: stderr}
	fs := flag.NewFlagSet("bill", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.ProjectPath, "project", "", "project document (.yaml or .json)")
	fs.IntVar(&opts.BillIndex, "bill", 0, "bill index, starting at 0")
	fs.BoolVar(&opts.All, "all", false, "print every bill")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.ProjectPath == "" {
		return opts, errors.New("--project is required")
	}
	return opts, nil
}

// BillCommand computes bills of a project file and prints them.
func BillCommand(ctx context.Context, opts BillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if err := ctx.Err(); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "bill: %v\n", err)
		return 1
	}
	p, err := project.LoadFile(opts.ProjectPath, templates.Default())
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "bill: %v\n", err)
		return 1
	}
	engine := billing.NewEngine(slog.New(slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: slog.LevelError})), nil)
	ledger := p.Ledger(engine)

	var bills []*billing.Bill
	if opts.All {
		bills, err = ledger.ComputeAll()
	} else {
		var bill *billing.Bill
		bill, err = ledger.Compute(opts.BillIndex)
		bills = []*billing.Bill{bill}
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "bill: %v\n", err)
		return 1
	}

	snaps := make([]billing.Snapshot, len(bills))
	warnings := len(p.Issues)
	for i, b := range bills {
		snaps[i] = b.Snapshot(p.Schedule)
		warnings += len(b.Warnings)
	}

	if opts.JSONOutput {
		var payload any = snaps
		if !opts.All {
			payload = snaps[0]
		}
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "bill: encode json: %v\n", err)
			return 1
		}
	} else {
		for i, snap := range snaps {
			if i > 0 {
				_, _ = fmt.Fprintln(opts.Stdout)
			}
			renderBillHuman(opts.Stdout, snap)
		}
	}
	for _, issue := range p.Issues {
		_, _ = fmt.Fprintf(opts.Stderr, "warning: %s\n", issue)
	}
	if warnings > 0 {
		return ExitWarnings
	}
	return 0
}

func renderBillHuman(out io.Writer, snap billing.Snapshot) {
	_, _ = fmt.Fprintf(out, "Bill %d: %s (%s)\n", snap.Index+1, snap.Title, snap.Type)
	if snap.PrevBill != nil {
		_, _ = fmt.Fprintf(out, "Previous bill: %d\n", *snap.PrevBill+1)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "Item\tDescription\tUnit\tQty\tRate\tAmount\t")
	for _, line := range snap.Lines {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			line.Itemno, shortDescription(line.Description), line.Unit, line.Qty, line.NormalRate, line.Amount)
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(out, "Total: %s\n", snap.TotalAmount)
	_, _ = fmt.Fprintf(out, "Percentage amount: %s\n", snap.PlusMinusAmount)
	_, _ = fmt.Fprintf(out, "Net total: %s\n", snap.NetTotalAmount)
	_, _ = fmt.Fprintf(out, "Since previous bill: %s\n", snap.SincePrevAmount)
	for _, adj := range snap.Adjustments {
		_, _ = fmt.Fprintf(out, "Adjustment %s: %s\n", adj.Description, adj.Amount.StringFixed(2))
	}
	_, _ = fmt.Fprintf(out, "Net payable: %s\n", snap.NetPayableAmount)
	if len(snap.Warnings) > 0 {
		_, _ = fmt.Fprintf(out, "%d warning(s):\n", len(snap.Warnings))
		for _, w := range snap.Warnings {
			_, _ = fmt.Fprintf(out, " - %s\n", w)
		}
	}
}

// shortDescription keeps the last line of an extended description.
func shortDescription(s string) string {
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if runes := []rune(s); len(runes) > 48 {
		s = string(runes[:45]) + "..."
	}
	return s
}
