package engine

import (
	"testing"

	"refsync/internal/config"
)

const (
	begin = "# BEGIN"
	end   = "# END"
)

func TestExtractBlock(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantInner string
		wantFound bool
		wantErr   bool
	}{
		{
			name:      "simple block",
			content:   "a\n# BEGIN\nX\nY\n# END\nb\n",
			wantInner: "X\nY\n",
			wantFound: true,
		},
		{
			name:      "empty interior",
			content:   "# BEGIN\n# END\n",
			wantInner: "",
			wantFound: true,
		},
		{
			name:      "no block",
			content:   "a\nb\n",
			wantFound: false,
		},
		{
			name:      "empty content",
			content:   "",
			wantFound: false,
		},
		{
			name:    "begin without end",
			content: "a\n# BEGIN\nX\n",
			wantErr: true,
		},
		{
			name:      "end marker without trailing newline",
			content:   "# BEGIN\nX\n# END",
			wantInner: "X\n",
			wantFound: true,
		},
		{
			name:      "marker must match whole line",
			content:   "prefix # BEGIN\n# BEGIN\nX\n# END\n",
			wantInner: "X\n",
			wantFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner, found, err := extractBlock(tt.content, begin, end)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if found != tt.wantFound {
				t.Errorf("found = %v, want %v", found, tt.wantFound)
			}
			if inner != tt.wantInner {
				t.Errorf("inner = %q, want %q", inner, tt.wantInner)
			}
		})
	}
}

func TestReplaceBlock(t *testing.T) {
	content := "a\n# BEGIN\nold\n# END\nb\n"

	got, err := replaceBlock(content, begin, end, "new\n")
	if err != nil {
		t.Fatal(err)
	}
	want := "a\n# BEGIN\nnew\n# END\nb\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReplaceBlockAddsNewline(t *testing.T) {
	got, err := replaceBlock("# BEGIN\nold\n# END\n", begin, end, "new")
	if err != nil {
		t.Fatal(err)
	}
	if got != "# BEGIN\nnew\n# END\n" {
		t.Errorf("interior should be newline-terminated, got %q", got)
	}
}

func TestReplaceBlockMalformed(t *testing.T) {
	if _, err := replaceBlock("# BEGIN\nX\n", begin, end, "new\n"); err == nil {
		t.Error("expected error for begin without end")
	}
}

func TestInsertBlockTop(t *testing.T) {
	got := insertBlock("line1\nline2\n", begin, end, "X\n", config.PlacementTop)
	want := "# BEGIN\nX\n# END\nline1\nline2\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInsertBlockBottom(t *testing.T) {
	got := insertBlock("line1\nline2\n", "BEGIN", "END", "X\n", config.PlacementBottom)
	want := "line1\nline2\nBEGIN\nX\nEND\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInsertBlockBottomNoTrailingNewline(t *testing.T) {
	got := insertBlock("line1", begin, end, "X\n", config.PlacementBottom)
	want := "line1\n# BEGIN\nX\n# END\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInsertBlockEmptyFile(t *testing.T) {
	got := insertBlock("", begin, end, "", config.PlacementTop)
	want := "# BEGIN\n# END\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
