package session

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"refsync/internal/config"
	"refsync/internal/engine"
	"refsync/internal/registry"
	"refsync/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	dir      string
	host     string
	registry *registry.Registry
	store    *store.Store
	engine   *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	host := filepath.Join(dir, "manifest.yaml")
	st, err := store.Open(host, config.DefaultSentinel)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return &fixture{
		dir:      dir,
		host:     host,
		registry: registry.New(),
		store:    st,
		engine:   engine.New(st, nil, nil, testLogger(), false),
	}
}

func (f *fixture) addCopy(t *testing.T, name, content string) registry.ManagedFile {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.registry.RegisterCopy(path); err != nil {
		t.Fatal(err)
	}
	files := f.registry.Files()
	return files[len(files)-1]
}

// run drives a session with scripted input and returns the menu output.
func (f *fixture) run(t *testing.T, input string) string {
	t.Helper()
	var out bytes.Buffer
	s := New(f.registry, f.engine, f.store, strings.NewReader(input), &out, testLogger())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("session failed: %v", err)
	}
	return out.String()
}

func TestToggleTwiceRestoresSelection(t *testing.T) {
	f := newFixture(t)
	a := f.addCopy(t, "a", "aaa")
	f.addCopy(t, "b", "bbb")

	var out bytes.Buffer
	s := New(f.registry, f.engine, f.store, strings.NewReader(""), &out, testLogger())

	s.toggle(a.ID())
	if !s.selected(a.ID()) {
		t.Fatal("file should be selected after one toggle")
	}
	s.toggle(a.ID())
	if s.selected(a.ID()) {
		t.Error("file should not be selected after two toggles")
	}
	if len(s.selection) != 0 {
		t.Errorf("selection should be back to prior state, got %v", s.selection)
	}
}

func TestToggleKeepsOrder(t *testing.T) {
	f := newFixture(t)
	a := f.addCopy(t, "a", "aaa")
	b := f.addCopy(t, "b", "bbb")
	c := f.addCopy(t, "c", "ccc")

	var out bytes.Buffer
	s := New(f.registry, f.engine, f.store, strings.NewReader(""), &out, testLogger())

	// Select c, a, b; removing a keeps c before b.
	s.toggle(c.ID())
	s.toggle(a.ID())
	s.toggle(b.ID())
	s.toggle(a.ID())
	want := []string{c.ID(), b.ID()}
	if len(s.selection) != 2 || s.selection[0] != want[0] || s.selection[1] != want[1] {
		t.Errorf("selection order not preserved: %v", s.selection)
	}
}

func TestSelectAllAndNone(t *testing.T) {
	f := newFixture(t)
	f.addCopy(t, "a", "aaa")
	f.addCopy(t, "b", "bbb")

	var out bytes.Buffer
	s := New(f.registry, f.engine, f.store, strings.NewReader(""), &out, testLogger())

	s.dispatch(context.Background(), "a")
	if len(s.selection) != 2 {
		t.Errorf("select-all should select both files, got %v", s.selection)
	}
	s.dispatch(context.Background(), "n")
	if len(s.selection) != 0 {
		t.Errorf("select-none should clear the selection, got %v", s.selection)
	}
}

func TestUnrecognizedInputLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.addCopy(t, "a", "aaa")

	var out bytes.Buffer
	s := New(f.registry, f.engine, f.store, strings.NewReader(""), &out, testLogger())
	s.dispatch(context.Background(), "1")
	before := append([]string(nil), s.selection...)

	s.dispatch(context.Background(), "zap")
	s.dispatch(context.Background(), "99")

	if len(s.selection) != len(before) || s.selection[0] != before[0] {
		t.Errorf("bad input must not change selection: %v", s.selection)
	}
	if !strings.Contains(out.String(), "unrecognized input") {
		t.Error("expected an error message for unrecognized input")
	}
	if !strings.Contains(out.String(), "no such file") {
		t.Error("expected an error message for out-of-range number")
	}
}

func TestActionWithoutSelection(t *testing.T) {
	f := newFixture(t)
	f.addCopy(t, "a", "aaa")

	out := f.run(t, "c\nq\n")
	if !strings.Contains(out, "no files selected") {
		t.Errorf("expected a no-selection error, got:\n%s", out)
	}
}

func TestImportCompareSession(t *testing.T) {
	f := newFixture(t)
	f.addCopy(t, "a", "content\n")

	out := f.run(t, "1\ni\nc\nq\n")
	if !strings.Contains(out, "no differences") {
		t.Errorf("compare after import should report no differences:\n%s", out)
	}

	// Import dirtied the store, so quitting must have persisted it.
	data, err := os.ReadFile(f.host)
	if err != nil {
		t.Fatalf("host file not written at teardown: %v", err)
	}
	if !strings.Contains(string(data), config.DefaultSentinel) {
		t.Error("host file should carry the sentinel after flush")
	}
}

func TestBatchContinuesPastPerFileErrors(t *testing.T) {
	f := newFixture(t)
	f.addCopy(t, "missing", "") // never created on disk
	f.addCopy(t, "present", "data\n")

	out := f.run(t, "a\ni\nq\n")
	if !strings.Contains(out, "source file missing") {
		t.Errorf("expected a per-file error for the missing file:\n%s", out)
	}

	// The second file must still have been imported and flushed; the
	// session closed its store, so verify through a fresh one.
	reopened, err := store.Open(f.host, config.DefaultSentinel)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = reopened.Close()
	}()
	files := f.registry.Files()
	if _, ok, _ := reopened.Get(files[1].ID()); !ok {
		t.Error("batch should continue past the failing file")
	}
}

func TestQuitWithoutChangesWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.addCopy(t, "a", "content\n")

	f.run(t, "q\n")
	if _, err := os.Stat(f.host); !os.IsNotExist(err) {
		t.Error("clean session should not write the host file")
	}
}

func TestMenuRendersFilesAndToggleMarks(t *testing.T) {
	f := newFixture(t)
	a := f.addCopy(t, "a", "aaa")

	out := f.run(t, "1\nq\n")
	if !strings.Contains(out, a.Path) {
		t.Errorf("menu should list the managed file:\n%s", out)
	}
	if !strings.Contains(out, "[x]") {
		t.Errorf("menu should show the toggled mark after selection:\n%s", out)
	}
	if !strings.Contains(out, "[ ]") {
		t.Errorf("menu should show the untoggled mark before selection:\n%s", out)
	}
}

func TestEOFBehavesLikeQuit(t *testing.T) {
	f := newFixture(t)
	f.addCopy(t, "a", "content\n")

	// Input ends without an explicit quit.
	f.run(t, "1\ni\n")
	if _, err := os.Stat(f.host); err != nil {
		t.Errorf("EOF should still flush the dirty store: %v", err)
	}
}
