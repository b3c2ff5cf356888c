package vault

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/darkostanimirovic/vaultagent/internal/testutil"
)

func sampleVault() map[string]string {
	return map[string]string{
		"b.md":                   "beta",
		"A.md":                   "alpha",
		"zeta/x.md":              "x",
		"Alpha/y.md":             "y",
		"Alpha/deep/z.md":        "z",
		"daily/2024-01-01.md":    "day one",
		"projects/daily/plan.md": "plan",
		".obsidian/workspace.md": "ignored",
		".hidden/d.md":           "hidden",
		"node_modules/pkg.md":    "ignored",
		"notes.txt":              "not markdown",
		"README.markdown":        "readme",
	}
}

func TestListFiles(t *testing.T) {
	v, _ := newTestVault(t, sampleVault())

	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{
			name:    "all markdown files sorted",
			pattern: "",
			want: []string{
				".hidden/d.md",
				"A.md",
				"Alpha/deep/z.md",
				"Alpha/y.md",
				"README.markdown",
				"b.md",
				"daily/2024-01-01.md",
				"projects/daily/plan.md",
				"zeta/x.md",
			},
		},
		{
			name:    "basename pattern matches at any depth",
			pattern: "z.md",
			want:    []string{"Alpha/deep/z.md"},
		},
		{
			name:    "anchored pattern",
			pattern: "Alpha/*.md",
			want:    []string{"Alpha/y.md"},
		},
		{
			name:    "double star",
			pattern: "**/daily/*.md",
			want:    []string{"daily/2024-01-01.md", "projects/daily/plan.md"},
		},
		{
			name:    "directory name matches contents",
			pattern: "deep",
			want:    []string{"Alpha/deep/z.md"},
		},
		{
			name:    "no match",
			pattern: "*.org",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ListFiles(tt.pattern)
			testutil.AssertNoError(t, err)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ListFiles(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestListFiles_PatternErrors(t *testing.T) {
	v, _ := newTestVault(t, sampleVault())

	_, err := v.ListFiles("../*.md")
	testutil.AssertErrorIs(t, err, ErrOutOfBounds)

	_, err = v.ListFiles("notes/[a-")
	testutil.AssertErrorIs(t, err, ErrInvalidPath)
}

func TestListFiles_Deterministic(t *testing.T) {
	v, _ := newTestVault(t, sampleVault())

	first, err := v.ListFiles("")
	testutil.AssertNoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := v.ListFiles("")
		testutil.AssertNoError(t, err)
		if !slices.Equal(first, again) {
			t.Fatalf("listing changed between calls: %v vs %v", first, again)
		}
	}
}

func TestSearch(t *testing.T) {
	v, _ := newTestVault(t, map[string]string{
		"a.md":     "Project kickoff\nnothing here\nproject PROJECT project\r\n",
		"b/c.md":   "no hits\nAnother Project\n",
		"skip.txt": "project",
	})

	matches, err := v.Search("project", false)
	testutil.AssertNoError(t, err)

	want := []Match{
		{Path: "a.md", LineNumber: 1, LineText: "Project kickoff"},
		{Path: "a.md", LineNumber: 3, LineText: "project PROJECT project"},
		{Path: "b/c.md", LineNumber: 2, LineText: "Another Project"},
	}
	if !slices.Equal(matches, want) {
		t.Fatalf("Search = %+v, want %+v", matches, want)
	}

	sensitive, err := v.Search("Project", true)
	testutil.AssertNoError(t, err)
	if len(sensitive) != 2 {
		t.Fatalf("expected 2 case-sensitive matches, got %+v", sensitive)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	v, _ := newTestVault(t, nil)

	_, err := v.Search("", false)
	testutil.AssertErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_SkipsUnreadableFileWithWarning(t *testing.T) {
	root := testutil.WriteVault(t, map[string]string{
		"good.md": "needle",
		"huge.md": "needle\n" + strings.Repeat("x", maxLineSize+10) + "\nneedle\n",
	})

	var logs bytes.Buffer
	v, err := New(root, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	testutil.AssertNoError(t, err)

	matches, err := v.Search("needle", false)
	testutil.AssertNoError(t, err)

	want := []Match{
		{Path: "good.md", LineNumber: 1, LineText: "needle"},
		{Path: "huge.md", LineNumber: 1, LineText: "needle"},
	}
	if !slices.Equal(matches, want) {
		t.Fatalf("Search = %+v, want %+v", matches, want)
	}
	if !strings.Contains(logs.String(), "skipping file during search") {
		t.Errorf("expected warning to be logged, got %q", logs.String())
	}
}

func TestTree(t *testing.T) {
	v, _ := newTestVault(t, sampleVault())
	name := filepath.Base(v.Root())

	got, err := v.Tree(0)
	testutil.AssertNoError(t, err)

	want := strings.Join([]string{
		fmt.Sprintf("📁 %s/", name),
		"├── 📁 Alpha/",
		"│   ├── 📁 deep/",
		"│   │   └── 📄 z.md",
		"│   └── 📄 y.md",
		"├── 📁 daily/",
		"│   └── 📄 2024-01-01.md",
		"├── 📁 projects/",
		"│   └── 📁 daily/",
		"│       └── 📄 plan.md",
		"├── 📁 zeta/",
		"│   └── 📄 x.md",
		"├── 📄 A.md",
		"├── 📄 b.md",
		"└── 📄 README.markdown",
	}, "\n")

	if got != want {
		t.Fatalf("Tree mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestTree_MaxDepth(t *testing.T) {
	v, _ := newTestVault(t, sampleVault())

	got, err := v.Tree(1)
	testutil.AssertNoError(t, err)

	lines := strings.Split(got, "\n")
	if len(lines) != 8 {
		t.Fatalf("expected header plus 7 top-level entries, got %d lines:\n%s", len(lines), got)
	}
	if strings.Contains(got, "y.md") {
		t.Errorf("depth 1 tree should not descend into directories:\n%s", got)
	}
}

func TestTree_EmptyVault(t *testing.T) {
	v, _ := newTestVault(t, nil)

	got, err := v.Tree(3)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, fmt.Sprintf("📁 %s/", filepath.Base(v.Root())))
}

func TestListFiles_SkipsSymlinkedFiles(t *testing.T) {
	v, root := newTestVault(t, map[string]string{"a.md": "alpha"})
	outside := testutil.WriteVault(t, map[string]string{"secret.md": "secret"})

	if err := os.Symlink(filepath.Join(outside, "secret.md"), filepath.Join(root, "leak.md")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := v.ListFiles("")
	testutil.AssertNoError(t, err)
	if !slices.Equal(got, []string{"a.md"}) {
		t.Fatalf("ListFiles = %v, want [a.md]", got)
	}

	matches, err := v.Search("secret", false)
	testutil.AssertNoError(t, err)
	if len(matches) != 0 {
		t.Fatalf("expected no matches from outside the vault, got %+v", matches)
	}
}
