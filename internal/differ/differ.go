// Package differ implements the line-diff (C8) between two snapshot
// checksums' contents.
//
// Grounded on edward-ap-class-collector's internal/diff package, which
// wraps github.com/pmezard/go-difflib for unified-diff text output; FTM
// needs structured hunks instead, so this package drops down to
// difflib.SequenceMatcher.GetGroupedOpCodes directly and maps its opcode
// tags onto the specification's closed {equal, insert, delete} tag set,
// splitting difflib's "replace" into a delete run followed by an insert run.
package differ

import (
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// Tag is one of the three line tags the specification allows in a hunk.
type Tag string

const (
	TagEqual  Tag = "equal"
	TagInsert Tag = "insert"
	TagDelete Tag = "delete"
)

// Line is one line of a hunk.
type Line struct {
	Tag     Tag    `json:"tag"`
	Content string `json:"content"`
}

// Hunk is a contiguous run of changes, with 1-based starting line numbers
// in the old and new text.
type Hunk struct {
	OldStart int    `json:"old_start"`
	NewStart int    `json:"new_start"`
	Lines    []Line `json:"lines"`
}

// Result is the full diff between two texts.
type Result struct {
	Hunks    []Hunk `json:"hunks"`
	OldTotal int    `json:"old_total"`
	NewTotal int    `json:"new_total"`
}

// context is the number of unchanged lines of context difflib groups around
// each change, matching conventional unified-diff presentation.
const context = 3

// Diff computes the hunks between from and to. A nil from means "empty vs
// to" (a full insert), per §4.8. Non-UTF-8 bytes are replaced with the
// Unicode replacement character for display only; neither input slice is
// mutated.
func Diff(from, to []byte) Result {
	oldLines := splitLines(from)
	newLines := splitLines(to)

	matcher := difflib.NewMatcher(oldLines, newLines)
	groups := matcher.GetGroupedOpCodes(context)

	hunks := make([]Hunk, 0, len(groups))
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		hunk := Hunk{
			OldStart: group[0].I1 + 1,
			NewStart: group[0].J1 + 1,
		}
		for _, op := range group {
			switch op.Tag {
			case 'e':
				appendLines(&hunk, TagEqual, oldLines[op.I1:op.I2])
			case 'd':
				appendLines(&hunk, TagDelete, oldLines[op.I1:op.I2])
			case 'i':
				appendLines(&hunk, TagInsert, newLines[op.J1:op.J2])
			case 'r':
				appendLines(&hunk, TagDelete, oldLines[op.I1:op.I2])
				appendLines(&hunk, TagInsert, newLines[op.J1:op.J2])
			}
		}
		if len(hunk.Lines) > 0 {
			hunks = append(hunks, hunk)
		}
	}

	return Result{
		Hunks:    hunks,
		OldTotal: len(oldLines),
		NewTotal: len(newLines),
	}
}

func appendLines(h *Hunk, tag Tag, lines []string) {
	for _, l := range lines {
		h.Lines = append(h.Lines, Line{Tag: tag, Content: l})
	}
}

// splitLines splits text on "\n", stripping one trailing empty line (the
// artifact of a trailing newline), and replaces invalid UTF-8 with the
// replacement character. A nil input yields an empty line slice.
func splitLines(text []byte) []string {
	if text == nil {
		return []string{}
	}
	clean := sanitizeUTF8(text)
	lines := strings.Split(clean, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

func sanitizeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
