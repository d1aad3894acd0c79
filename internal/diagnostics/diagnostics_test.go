package diagnostics

import (
	"testing"

	"github.com/vela-lang/vela/internal/position"
)

func spanAt(line int) position.Span {
	return position.NewSpan(
		position.Position{Filename: "t.vl", Line: line, Column: 1, Offset: line * 10},
		position.Position{Filename: "t.vl", Line: line, Column: 5, Offset: line*10 + 4},
	)
}

func TestReportCounts(t *testing.T) {
	m := NewManager()
	m.Errorf(spanAt(1), CategoryUndeclaredType, "use of undeclared type %q", "Foo")
	m.Warningf(spanAt(2), CategoryOptimizerRemark, "not inlined")

	if m.ErrorCount() != 1 || m.WarningCount() != 1 {
		t.Fatalf("got %d errors, %d warnings", m.ErrorCount(), m.WarningCount())
	}
	if !m.HasErrors() {
		t.Error("expected HasErrors")
	}
}

func TestFixItAttachment(t *testing.T) {
	m := NewManager()
	d := m.Errorf(spanAt(1), CategoryUndeclaredType, "use of undeclared type 'NSInteger'").
		WithFixIt(spanAt(1), "replace with 'Int'", "Int").
		WithNote(spanAt(3), "did you mean this declaration?")

	if len(d.FixIts) != 1 || d.FixIts[0].Replacement != "Int" {
		t.Fatalf("fix-it not attached: %+v", d.FixIts)
	}
	if len(d.Notes) != 1 {
		t.Fatalf("note not attached: %+v", d.Notes)
	}
}

func TestSuppression(t *testing.T) {
	m := NewManager()
	m.SuppressCategory(CategoryOptimizerRemark)
	d := m.Warningf(spanAt(1), CategoryOptimizerRemark, "remark")
	if d == nil {
		t.Fatal("suppressed report should still return a diagnostic")
	}
	if m.WarningCount() != 0 {
		t.Error("suppressed diagnostic should not be counted")
	}
}

func TestErrorLimit(t *testing.T) {
	m := NewManager()
	m.SetErrorLimit(2)
	for i := 0; i < 5; i++ {
		m.Errorf(spanAt(i+1), CategoryUndeclaredType, "e%d", i)
	}
	if m.ErrorCount() != 2 {
		t.Errorf("expected error limit 2, got %d", m.ErrorCount())
	}
}

func TestDiagnosticsSortedByPosition(t *testing.T) {
	m := NewManager()
	m.Errorf(spanAt(5), CategoryUndeclaredType, "later")
	m.Errorf(spanAt(1), CategoryUndeclaredType, "earlier")
	all := m.Diagnostics()
	if len(all) != 2 || all[0].Message != "earlier" {
		t.Fatalf("unexpected order: %v", all)
	}
}
