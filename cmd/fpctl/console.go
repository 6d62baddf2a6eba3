package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/srg/fpctl/internal/session"
)

// console prints one coloured line per session status change
type console struct {
	mu  sync.Mutex
	out io.Writer

	ok, fail, busy *color.Color
}

func newConsole(out io.Writer, colors bool) *console {
	c := &console{
		out:  out,
		ok:   color.New(color.FgGreen),
		fail: color.New(color.FgRed),
		busy: color.New(color.FgYellow),
	}
	if colors && isTerminal(out) {
		for _, col := range []*color.Color{c.ok, c.fail, c.busy} {
			col.EnableColor()
		}
	} else {
		for _, col := range []*color.Color{c.ok, c.fail, c.busy} {
			col.DisableColor()
		}
	}
	return c
}

// isTerminal reports whether out is an interactive terminal
func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// colorFor picks the colour of a status
func (c *console) colorFor(status string) *color.Color {
	switch {
	case status == session.StatusFound, status == session.StatusConnected, status == session.StatusNoUpdate:
		return c.ok
	case status == session.StatusNotFound, status == session.StatusConnectionFailed,
		strings.HasPrefix(status, "Not available"):
		return c.fail
	default:
		return c.busy
	}
}

func (c *console) observe(s session.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.colorFor(s.Status).Sprint(s.String()))
}

// printf writes a plain line, serialized with status lines
func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
