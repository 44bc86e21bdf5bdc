// Package session implements the interactive selection and dispatch loop:
// a numbered menu of managed files, bulk selection controls, and one-letter
// action codes routed through the action engine.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"refsync/internal/engine"
	"refsync/internal/registry"
	"refsync/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	kindStyle   = lipgloss.NewStyle().Faint(true)
	hintStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Session drives one interactive run over the registry
type Session struct {
	registry *registry.Registry
	engine   *engine.Engine
	store    *store.Store
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger

	// selection holds managed file IDs in selection order, duplicate-free.
	selection []string
}

// New creates a session. out receives the menu and diff output; diagnostics
// go through the logger.
func New(reg *registry.Registry, eng *engine.Engine, st *store.Store, in io.Reader, out io.Writer, logger *slog.Logger) *Session {
	return &Session{
		registry: reg,
		engine:   eng,
		store:    st,
		in:       in,
		out:      out,
		logger:   logger,
	}
}

// Run renders the menu, dispatches input until quit or EOF, then flushes the
// reference store if dirty. The store's scratch directory is released on
// every exit path.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		_ = s.store.Close()
	}()

	scanner := bufio.NewScanner(s.in)
	s.render()
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "q" {
			break
		}
		s.dispatch(ctx, input)
		s.render()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	return s.teardown()
}

// dispatch handles one line of user input
func (s *Session) dispatch(ctx context.Context, input string) {
	switch input {
	case "":
		return
	case "a":
		s.selectAll()
		return
	case "n":
		s.selection = nil
		return
	case "c", "p", "i", "e", "f":
		if len(s.selection) == 0 {
			s.printError("no files selected")
			return
		}
		s.applyAction(ctx, input)
		return
	}

	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > s.registry.Len() {
			s.printError(fmt.Sprintf("no such file: %d", n))
			return
		}
		s.toggle(s.registry.Files()[n-1].ID())
		return
	}

	s.printError(fmt.Sprintf("unrecognized input: %q", input))
}

// toggle flips a file's membership in the selection, preserving the order
// of the remaining entries.
func (s *Session) toggle(id string) {
	for i, sel := range s.selection {
		if sel == id {
			s.selection = append(s.selection[:i], s.selection[i+1:]...)
			return
		}
	}
	s.selection = append(s.selection, id)
}

// selectAll selects every registered file in registry order
func (s *Session) selectAll() {
	s.selection = s.selection[:0]
	for _, f := range s.registry.Files() {
		s.selection = append(s.selection, f.ID())
	}
}

// selected reports membership
func (s *Session) selected(id string) bool {
	for _, sel := range s.selection {
		if sel == id {
			return true
		}
	}
	return false
}

// applyAction runs one action over every selected file in selection order,
// collecting per-file errors and continuing past them.
func (s *Session) applyAction(ctx context.Context, code string) {
	for _, id := range s.selection {
		f, ok := s.registry.Lookup(id)
		if !ok {
			// Selection only ever holds registry IDs.
			continue
		}

		var err error
		switch code {
		case "c":
			var diff string
			diff, err = s.engine.Compare(ctx, f)
			if err == nil {
				if diff == "" {
					fmt.Fprintf(s.out, "%s: no differences\n", f.Path)
				} else {
					fmt.Fprint(s.out, diff)
				}
			}
		case "p":
			err = s.engine.Patch(ctx, f)
		case "i":
			err = s.engine.Import(ctx, f)
		case "e":
			err = s.engine.Edit(ctx, f)
		case "f":
			err = s.engine.Forget(ctx, f)
		}

		if err != nil {
			s.printError(err.Error())
			s.logger.Warn("action failed", "action", code, "path", f.Path, "error", err)
		}
	}
}

// render prints the menu
func (s *Session) render() {
	fmt.Fprintln(s.out, titleStyle.Render("Managed files"))
	for i, f := range s.registry.Files() {
		mark := " "
		if s.selected(f.ID()) {
			mark = "x"
		}
		tracked := ""
		if s.engine.Tracked(f) {
			tracked = " *"
		}
		fmt.Fprintf(s.out, "  %2d. [%s] %s %s%s\n",
			i+1, mark, f.Path, kindStyle.Render("("+string(f.Kind)+")"), tracked)
	}

	hints := "a select all, n select none, q quit"
	if len(s.selection) > 0 {
		hints = actionStyle.Render("c compare, p patch, i import, e edit, f forget") + hintStyle.Render(" | ") + hints
	}
	fmt.Fprintln(s.out, hintStyle.Render(hints))
	fmt.Fprint(s.out, "> ")
}

// printError reports a recoverable error on the menu surface
func (s *Session) printError(msg string) {
	fmt.Fprintln(s.out, errorStyle.Render("error: "+msg))
}

// teardown persists the reference store if any action dirtied it
func (s *Session) teardown() error {
	written, err := s.store.FlushIfDirty()
	if err != nil {
		return fmt.Errorf("failed to persist reference store: %w", err)
	}
	if written != "" {
		s.logger.Info("reference store written", "path", written)
	}
	return nil
}
