package matcher

import "testing"

func TestMatchBasenamePatterns(t *testing.T) {
	m := New([]string{"*.rs", "*.md"}, []string{"**/target/**", "**/.git/**"})

	cases := map[string]bool{
		"main.rs":          true,
		"src/main.rs":      true,
		"src/deep/lib.rs":  true,
		"README.md":        true,
		"main.go":          false,
		"target/debug/out": false,
		".git/HEAD":        false,
		"src/.git/HEAD":    false,
	}
	for path, want := range cases {
		if got := m.Match(path); got != want {
			t.Errorf("Match(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestMatchQuestionMark(t *testing.T) {
	m := New([]string{"file?.txt"}, nil)
	if !m.Match("file1.txt") {
		t.Error("expected file1.txt to match file?.txt")
	}
	if m.Match("file12.txt") {
		t.Error("expected file12.txt to not match file?.txt")
	}
}

func TestExcludedDirPrunesDescent(t *testing.T) {
	m := New([]string{"*.js"}, []string{"**/node_modules/**"})

	if !m.ExcludedDir("node_modules") {
		t.Error("expected root-level node_modules to be excluded")
	}
	if !m.ExcludedDir("packages/app/node_modules") {
		t.Error("expected nested node_modules to be excluded")
	}
	if m.ExcludedDir("packages/app/src") {
		t.Error("did not expect src to be excluded")
	}
}

func TestExcludeOverridesInclude(t *testing.T) {
	m := New([]string{"**/*.go"}, []string{"**/vendor/**"})
	if m.Match("vendor/pkg/file.go") {
		t.Error("expected vendor path to be excluded despite matching include pattern")
	}
	if !m.Match("internal/pkg/file.go") {
		t.Error("expected non-vendor path to match")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("./a/b"); got != "a/b" {
		t.Errorf("Normalize(./a/b) = %q", got)
	}
	if got := Normalize(`a\b\c`); got != "a/b/c" {
		t.Errorf("Normalize with backslashes = %q", got)
	}
}
