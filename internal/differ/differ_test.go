package differ

import "testing"

func TestDiffScenario(t *testing.T) {
	from := []byte("x\ny\nz\n")
	to := []byte("x\nY\nz\n")

	result := Diff(from, to)

	if result.OldTotal != 3 || result.NewTotal != 3 {
		t.Fatalf("totals = %d,%d want 3,3", result.OldTotal, result.NewTotal)
	}
	if len(result.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(result.Hunks))
	}

	want := []Line{
		{Tag: TagEqual, Content: "x"},
		{Tag: TagDelete, Content: "y"},
		{Tag: TagInsert, Content: "Y"},
		{Tag: TagEqual, Content: "z"},
	}
	got := result.Hunks[0].Lines
	if len(got) != len(want) {
		t.Fatalf("lines = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDiffAbsentFromIsFullInsert(t *testing.T) {
	result := Diff(nil, []byte("a\nb\n"))
	if result.OldTotal != 0 || result.NewTotal != 2 {
		t.Fatalf("totals = %d,%d want 0,2", result.OldTotal, result.NewTotal)
	}
	if len(result.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(result.Hunks))
	}
	for _, l := range result.Hunks[0].Lines {
		if l.Tag != TagInsert {
			t.Errorf("expected all-insert hunk, got tag %s", l.Tag)
		}
	}
}

func TestDiffReplaceSplitsIntoDeleteThenInsert(t *testing.T) {
	result := Diff([]byte("one\n"), []byte("two\n"))
	if len(result.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(result.Hunks))
	}
	lines := result.Hunks[0].Lines
	if len(lines) != 2 || lines[0].Tag != TagDelete || lines[1].Tag != TagInsert {
		t.Fatalf("expected delete then insert, got %+v", lines)
	}
}

func TestDiffNonUTF8Sanitized(t *testing.T) {
	result := Diff([]byte("a\n"), []byte{0xff, 0xfe, '\n'})
	if len(result.Hunks) == 0 {
		t.Fatal("expected at least one hunk")
	}
}
