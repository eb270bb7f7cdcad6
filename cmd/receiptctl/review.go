package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/zombor/receipt-capture/internal/verify"
)

// prompter reads answers line by line
type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{scanner: bufio.NewScanner(in), out: out}
}

// ask prints a prompt and returns the trimmed answer; false at end of input
func (p *prompter) ask(prompt string) (string, bool) {
	fmt.Fprint(p.out, prompt)
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

func printFields(w io.Writer, flow *verify.Flow) {
	r := flow.Result()
	fmt.Fprintf(w, "\n  vendor:     %s\n", r.Vendor)
	fmt.Fprintf(w, "  amount:     %s\n", r.Amount.StringFixed(2))
	fmt.Fprintf(w, "  date:       %s\n", r.Date)
	fmt.Fprintf(w, "  tax:        %s\n", r.Tax.StringFixed(2))
	fmt.Fprintf(w, "  category:   %s\n", r.Category)
	fmt.Fprintf(w, "  confidence: %.0f%%\n\n", r.Confidence)
}

// review lets the user edit fields until they approve or discard.
// End of input discards.
func review(ctx context.Context, flow *verify.Flow, in *prompter, out io.Writer) (verify.Outcome, error) {
	printFields(out, flow)
	for {
		answer, ok := in.ask("Edit with field=value, or [a]pprove / [d]iscard: ")
		if !ok {
			flow.Discard(ctx)
			return verify.Outcome{}, nil
		}

		switch strings.ToLower(answer) {
		case "":
			continue
		case "a", "approve":
			return flow.Approve(ctx)
		case "d", "discard":
			flow.Discard(ctx)
			return verify.Outcome{}, nil
		}

		field, value, found := strings.Cut(answer, "=")
		if !found {
			fmt.Fprintf(out, "Unrecognized input %q\n", answer)
			continue
		}
		if err := flow.Edit(strings.ToLower(strings.TrimSpace(field)), value); err != nil {
			fmt.Fprintf(out, "%v\n", err)
			continue
		}
		printFields(out, flow)
	}
}
