package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/receipt-capture/internal/aicall"
	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/verify"
)

func (a *app) captureCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("capture").SetParent(parent)
	var (
		file      = fs.StringLong("file", "", "Receipt image or PDF to upload instead of using the camera")
		cameraCmd = fs.StringLong("camera-cmd", "", "Program that writes one camera still to stdout")
		location  = fs.StringLong("location", verify.DefaultLocation, "Location stamped on the approved receipt")
		yes       = fs.BoolLong("yes", "Approve the extracted fields without reviewing them")
	)

	return &ff.Command{
		Name:      "capture",
		Usage:     "receiptctl capture [--file PATH | --camera-cmd CMD] [--yes]",
		ShortHelp: "capture a receipt, verify its fields and save it",
		Flags:     fs,
		Exec: func(ctx context.Context, _ []string) error {
			in := newPrompter(a.stdin, a.stdout)

			payload, err := a.stage(ctx, *file, *cameraCmd, in)
			if err != nil {
				return err
			}

			api := a.client()
			flow := verify.NewFlow(verify.WithFallback(api, nil, a.logger), nil, api, a.logger,
				verify.WithLocation(*location))

			fmt.Fprintln(a.stdout, "Processing receipt...")
			if err := flow.Enter(ctx, verify.Start{Payload: &payload}); err != nil {
				return err
			}

			var out verify.Outcome
			if *yes {
				out, err = flow.Approve(ctx)
			} else {
				out, err = review(ctx, flow, in, a.stdout)
			}
			if err != nil {
				return err
			}
			reportOutcome(a.stdout, flow.State(), out)
			return nil
		},
	}
}

// stage loads the payload from a file, or from the camera with a file fallback
func (a *app) stage(ctx context.Context, file, cameraCmd string, in *prompter) (capture.Payload, error) {
	if file != "" {
		return capture.LoadFile(file)
	}

	var cam capture.CommandCamera
	if fields := strings.Fields(cameraCmd); len(fields) > 0 {
		cam = capture.CommandCamera{Path: fields[0], Args: fields[1:]}
	}
	p, err := capture.CaptureFrame(ctx, cam)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, capture.ErrCameraUnavailable) {
		return capture.Payload{}, err
	}

	fmt.Fprintf(a.stdout, "Camera unavailable (%v). Use a file instead.\n", err)
	path, ok := in.ask("File path: ")
	if !ok || path == "" {
		return capture.Payload{}, errors.New("no receipt captured")
	}
	return capture.LoadFile(path)
}

func reportOutcome(w io.Writer, state verify.State, out verify.Outcome) {
	switch {
	case state == verify.StateDiscarded:
		fmt.Fprintln(w, "Receipt discarded.")
	case out.Warning != "":
		fmt.Fprintln(w, out.Warning)
	default:
		fmt.Fprintf(w, "Receipt %d saved.\n", out.ReceiptID)
	}
}

// filterFlags registers the receipt filters shared by history and export
func filterFlags(fs *ff.FlagSet) func() url.Values {
	var (
		search    = fs.StringLong("search", "", "Substring of vendor, category or location")
		status    = fs.StringLong("status", "", "Status filter")
		category  = fs.StringLong("category", "", "Category filter")
		dateFrom  = fs.StringLong("from", "", "Earliest date, YYYY-MM-DD")
		dateTo    = fs.StringLong("to", "", "Latest date, YYYY-MM-DD")
		minAmount = fs.StringLong("min", "", "Minimum amount")
		maxAmount = fs.StringLong("max", "", "Maximum amount")
	)
	return func() url.Values {
		q := url.Values{}
		for key, v := range map[string]string{
			"search": *search, "status": *status, "category": *category,
			"dateFrom": *dateFrom, "dateTo": *dateTo,
			"minAmount": *minAmount, "maxAmount": *maxAmount,
		} {
			if v != "" {
				q.Set(key, v)
			}
		}
		return q
	}
}

func (a *app) historyCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("history").SetParent(parent)
	query := filterFlags(fs)
	page := fs.IntLong("page", 1, "Page number")
	pageSize := fs.IntLong("page-size", 25, "Rows per page (max 100)")

	return &ff.Command{
		Name:      "history",
		Usage:     "receiptctl history [FILTERS] [--page N]",
		ShortHelp: "list saved receipts",
		Flags:     fs,
		Exec: func(ctx context.Context, _ []string) error {
			q := query()
			q.Set("page", strconv.Itoa(*page))
			q.Set("pageSize", strconv.Itoa(*pageSize))

			list, err := a.client().ListReceipts(ctx, q)
			if err != nil {
				return err
			}
			printReceipts(a.stdout, list)
			return nil
		},
	}
}

func printReceipts(w io.Writer, list *receipt.List) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tVENDOR\tCATEGORY\tLOCATION\tSTATUS\tAMOUNT\tTAX")
	for _, r := range list.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Date, r.Vendor, r.Category, r.Location, r.Status, r.Amount.StringFixed(2), r.Tax.StringFixed(2))
	}
	tw.Flush()
	fmt.Fprintf(w, "Page %d of %d (%d receipts)\n", list.Page, pageCount(list.Total, list.PageSize), list.Total)
}

func pageCount(total, size int) int {
	if size < 1 || total == 0 {
		return 1
	}
	return (total + size - 1) / size
}

func (a *app) exportCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("export").SetParent(parent)
	query := filterFlags(fs)
	xlsx := fs.BoolLong("xlsx", "Export a spreadsheet instead of CSV")
	out := fs.StringLong("out", "", "Output file (default receipts.csv or receipts.xlsx, - for stdout)")

	return &ff.Command{
		Name:      "export",
		Usage:     "receiptctl export [FILTERS] [--xlsx] [--out FILE]",
		ShortHelp: "export every matching receipt",
		Flags:     fs,
		Exec: func(ctx context.Context, _ []string) error {
			path := *out
			if path == "" {
				path = "receipts.csv"
				if *xlsx {
					path = "receipts.xlsx"
				}
			}
			return a.writeTo(path, func(w io.Writer) error {
				return a.client().ExportReceipts(ctx, query(), *xlsx, w)
			})
		},
	}
}

func (a *app) aiCallsCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("ai-calls").SetParent(parent)
	var (
		page     = fs.IntLong("page", 1, "Page number")
		pageSize = fs.IntLong("page-size", 25, "Rows per page (max 100)")
		search   = fs.StringLong("search", "", "Substring of model, MIME type, filename, status or error")
		status   = fs.StringLong("status", "", "Status filter: success or error")
		export   = fs.StringLong("export", "", "Write the filtered page as CSV to this file (- for stdout)")
	)

	return &ff.Command{
		Name:      "ai-calls",
		Usage:     "receiptctl ai-calls [--page N] [--search S] [--status S] [--export FILE]",
		ShortHelp: "show the AI extraction call log",
		Flags:     fs,
		Exec: func(ctx context.Context, _ []string) error {
			list, err := a.client().ListAICalls(ctx, *page, *pageSize)
			if err != nil {
				return err
			}
			records := aicall.Filter{Search: *search, Status: aicall.Status(*status)}.Apply(list.Items)

			if *export != "" {
				return a.writeTo(*export, func(w io.Writer) error {
					return aicall.WriteCSV(w, records)
				})
			}
			printAICalls(a.stdout, list, records)
			return nil
		},
	}
}

func printAICalls(w io.Writer, list *aicall.List, records []*aicall.Record) {
	s := list.Summary
	fmt.Fprintf(w, "Success: %d  Errors: %d  Error rate: %d%%  Avg duration: %d ms\n\n",
		s.SuccessCount, s.ErrorCount, s.ErrorRate(), s.AvgDuration)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tMODEL\tINPUT\tFILE\tSTATUS\tDURATION\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%d ms\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Model, r.InputType, r.Filename, r.Status, r.DurationMS, r.Error)
	}
	tw.Flush()
	fmt.Fprintf(w, "Page %d of %d (%d calls)\n", list.Page, pageCount(list.Total, list.PageSize), list.Total)
}

func (a *app) deleteCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("delete").SetParent(parent)

	return &ff.Command{
		Name:      "delete",
		Usage:     "receiptctl delete receipt|ai-call ID",
		ShortHelp: "delete a receipt or an AI call record",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return ff.ErrHelp
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[1])
			}

			api := a.client()
			switch args[0] {
			case "receipt":
				err = api.DeleteReceipt(ctx, id)
			case "ai-call":
				err = api.DeleteAICall(ctx, id)
			default:
				return ff.ErrHelp
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted %s %d.\n", args[0], id)
			return nil
		},
	}
}

// writeTo runs fn against a file, or stdout when path is "-"
func (a *app) writeTo(path string, fn func(io.Writer) error) error {
	if path == "-" {
		return fn(a.stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %s\n", path)
	return nil
}
