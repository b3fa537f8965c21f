package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"golang.org/x/term"

	"IssueSync/internal/ports"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
)

// Console prints user-facing progress to a writer, normally stderr. Logs go
// elsewhere; the console is what a person running the command reads.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	quiet   bool
	verbose bool
	color   bool
}

var (
	_ ports.Reporter = (*Console)(nil)
	_ ports.Progress = (*Console)(nil)
)

// New writes to stderr, coloring output when stderr is a terminal.
func New(quiet, verbose bool) *Console {
	c := NewWithWriter(os.Stderr, quiet, verbose)
	c.color = term.IsTerminal(int(os.Stderr.Fd()))
	return c
}

// NewWithWriter writes plain text to w.
func NewWithWriter(w io.Writer, quiet, verbose bool) *Console {
	return &Console{out: w, quiet: quiet, verbose: verbose && !quiet}
}

// Info prints a plain line.
func (c *Console) Info(msg string) {
	c.print("", msg)
}

// Warn prints a warning marked with ⚠.
func (c *Console) Warn(msg string) {
	c.print(ansiYellow, "⚠ "+msg)
}

// Error prints a failure marked with ✗.
func (c *Console) Error(msg string) {
	c.print(ansiRed, "✗ "+msg)
}

// Success prints a completed step marked with ✓.
func (c *Console) Success(msg string) {
	c.print(ansiGreen, "✓ "+msg)
}

// Hint is hidden in quiet mode.
func (c *Console) Hint(msg string) {
	if c.quiet {
		return
	}
	c.print(ansiDim, msg)
}

// Detail is shown only in verbose mode.
func (c *Console) Detail(msg string) {
	if !c.verbose {
		return
	}
	c.print(ansiDim, "  "+msg)
}

// Table renders rows in aligned columns under a title.
func (c *Console) Table(title string, headers []string, rows [][]string) {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.paint(ansiBold+ansiYellow, title))
	fmt.Fprint(c.out, b.String())
	fmt.Fprintln(c.out)
}

// Started reports that a target began pulling, in verbose mode.
func (c *Console) Started(target string) {
	c.Detail(fmt.Sprintf("Pulling [%s]", target))
}

// Counted is a no-op; per-target counts are printed by Finished.
func (c *Console) Counted(string, int) {}

// Finished prints the issue count of a target unless quiet.
func (c *Console) Finished(target string, count int) {
	if c.quiet {
		return
	}
	c.Success(fmt.Sprintf("[%s] %d issues", target, count))
}

// Aborted notes a failed target in verbose mode.
func (c *Console) Aborted(target string) {
	c.Detail(fmt.Sprintf("Stopped [%s]", target))
}

func (c *Console) print(color, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.paint(color, msg))
}

func (c *Console) paint(color, msg string) string {
	if !c.color || color == "" {
		return msg
	}
	return color + msg + ansiReset
}
