package position

import "testing"

func pos(line, col, off int) Position {
	return Position{Filename: "main.vl", Line: line, Column: col, Offset: off}
}

func TestPositionValidity(t *testing.T) {
	if !pos(1, 1, 0).IsValid() {
		t.Error("expected 1:1 to be valid")
	}
	if (Position{Line: 0, Column: 1}).IsValid() {
		t.Error("line 0 should be invalid")
	}
	if (Position{Line: 1, Column: 0}).IsValid() {
		t.Error("column 0 should be invalid")
	}
}

func TestPositionOrdering(t *testing.T) {
	a := pos(1, 5, 4)
	b := pos(2, 1, 10)
	if !a.Before(b) {
		t.Error("a should come before b")
	}
	if !b.After(a) {
		t.Error("b should come after a")
	}
}

func TestSpanContains(t *testing.T) {
	s := NewSpan(pos(1, 1, 0), pos(1, 10, 9))
	if !s.Contains(pos(1, 5, 4)) {
		t.Error("span should contain interior position")
	}
	if s.Contains(pos(1, 10, 9)) {
		t.Error("span end is exclusive")
	}
	if s.Contains(Position{Filename: "other.vl", Line: 1, Column: 5, Offset: 4}) {
		t.Error("span should not contain positions from other files")
	}
}

func TestSpanUnion(t *testing.T) {
	a := NewSpan(pos(1, 1, 0), pos(1, 5, 4))
	b := NewSpan(pos(1, 3, 2), pos(2, 1, 12))
	u := a.Union(b)
	if u.Start != a.Start || u.End != b.End {
		t.Errorf("unexpected union %v", u)
	}
	if got := a.Union(Span{}); got != a {
		t.Errorf("union with invalid span should be identity, got %v", got)
	}
}

func TestSpanString(t *testing.T) {
	s := NewSpan(pos(3, 2, 20), pos(3, 9, 27))
	if got := s.String(); got != "main.vl:3:2-9" {
		t.Errorf("unexpected span string %q", got)
	}
}
