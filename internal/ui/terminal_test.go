package ui

import (
	"strings"
	"testing"
)

func TestShouldUseColor(t *testing.T) {
	// Tests run without a TTY on stdout, so the default path is no color.
	tests := []struct {
		name          string
		noColor       string
		clicolor      string
		clicolorForce string
		want          bool
	}{
		{name: "default non-tty", want: false},
		{name: "NO_COLOR disables", noColor: "1", want: false},
		{name: "NO_COLOR beats CLICOLOR_FORCE", noColor: "1", clicolorForce: "1", want: false},
		{name: "CLICOLOR_FORCE enables without tty", clicolorForce: "1", want: true},
		{name: "CLICOLOR_FORCE zero does not force", clicolorForce: "0", want: false},
		{name: "CLICOLOR zero disables", clicolor: "0", want: false},
		{name: "CLICOLOR_FORCE overrides CLICOLOR zero", clicolor: "0", clicolorForce: "1", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("CLICOLOR", tt.clicolor)
			t.Setenv("CLICOLOR_FORCE", tt.clicolorForce)
			if got := ShouldUseColor(); got != tt.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderStatePlainWhenNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CLICOLOR_FORCE", "")

	for _, state := range []string{"LIVE", "RUNNING", "FAILED", "UNKNOWN_STATE"} {
		if got := RenderState(state); got != state {
			t.Errorf("RenderState(%q) = %q, want plain passthrough", state, got)
		}
	}
	if got := RenderState(""); got != "" {
		t.Errorf("RenderState(\"\") = %q, want empty", got)
	}
}

func TestRenderMarkdownFallback(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CLICOLOR_FORCE", "")

	in := "# Title\n\nSome *emphasis* here.\n"
	if got := RenderMarkdown(in); got != in {
		t.Errorf("RenderMarkdown without color = %q, want input unchanged", got)
	}
}

func TestRenderTableAlignment(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CLICOLOR_FORCE", "")

	out := RenderTable(
		[]string{"ID", "NAME", "STATE"},
		[][]string{
			{"1", "model", "LIVE"},
			{"42", "dataset-train", "PENDING"},
		},
	)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out)
	}
	// Every column starts at the same offset on every line.
	wantName := strings.Index(lines[0], "NAME")
	wantState := strings.Index(lines[0], "STATE")
	if strings.Index(lines[1], "model") != wantName {
		t.Errorf("row 1 name column misaligned:\n%s", out)
	}
	if strings.Index(lines[2], "dataset-train") != wantName {
		t.Errorf("row 2 name column misaligned:\n%s", out)
	}
	if strings.Index(lines[1], "LIVE") != wantState {
		t.Errorf("row 1 state column misaligned:\n%s", out)
	}
	if strings.Index(lines[2], "PENDING") != wantState {
		t.Errorf("row 2 state column misaligned:\n%s", out)
	}
	for i, line := range lines {
		if strings.HasSuffix(line, " ") {
			t.Errorf("line %d has trailing whitespace: %q", i, line)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a-very-long-artifact-uri", 10, "a-very-..."},
		{"abc", 2, "ab"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
