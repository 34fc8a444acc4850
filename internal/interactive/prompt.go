// Package interactive provides interactive prompts for user confirmation.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/adamancini/otaup/internal/diff"
)

// Prompter asks yes/no questions on a line-oriented stream.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter creates a prompter with stdin/stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output. A
// *bufio.Reader is used as is so callers can share buffered input.
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	br, ok := in.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(in)
	}
	return &Prompter{in: br, out: out}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Confirm asks question and reports whether the answer was yes. An empty
// answer or end of input is a no.
func (p *Prompter) Confirm(question string) (bool, error) {
	_, _ = fmt.Fprintf(p.out, "%s [y/N]: ", question)

	answer, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read input: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Symbols for output
const (
	addSymbol    = "+"
	removeSymbol = "-"
	updateSymbol = "~"
)

// actionSymbol returns the marker printed in front of a changed file.
func actionSymbol(action diff.Action) string {
	switch action {
	case diff.ActionAdd:
		return addSymbol
	case diff.ActionRemove:
		return removeSymbol
	case diff.ActionUpdate:
		return updateSymbol
	default:
		return " "
	}
}

// ConfirmUpdate lists the changes of a staged update and asks whether to
// apply it.
func (p *Prompter) ConfirmUpdate(result *diff.Result) (bool, error) {
	from := result.FromVersion
	if from == "" {
		from = "(none)"
	}
	_, _ = fmt.Fprintf(p.out, "\nStaged update %s -> %s:\n", from, result.ToVersion)

	changes := result.Changes()
	for _, f := range changes {
		_, _ = fmt.Fprintf(p.out, "  %s %s\n", actionSymbol(f.Action), f.Path)
	}
	if len(changes) == 0 {
		_, _ = fmt.Fprintln(p.out, "  (no file changes)")
	}

	add, update, remove := result.Summary()
	_, _ = fmt.Fprintf(p.out, "\nSummary: %d to add, %d to update, %d to remove\n", add, update, remove)

	return p.Confirm("\nApply update?")
}
