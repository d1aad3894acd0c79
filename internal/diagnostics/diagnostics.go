// Package diagnostics provides error diagnosis, warnings, and fix-it
// suggestions for the Vela compiler. The type resolver, the override
// checker, and the optimizer report through a Manager; the core never
// aborts on a diagnostic, it degrades to an error-marker value and
// continues so that a single bad declaration cannot halt a file.
package diagnostics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vela-lang/vela/internal/position"
)

// Level represents the severity level of a diagnostic.
type Level int

const (
	Error Level = iota
	Warning
	Note
)

func (l Level) String() string {
	switch l {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Category classifies what part of checking produced a diagnostic.
type Category int

const (
	// Identifier resolution
	CategoryUndeclaredType Category = iota
	CategoryAmbiguousType
	CategoryInaccessible
	CategoryInvalidMemberType

	// Generic types
	CategoryGenericArity
	CategoryGenericRequirement
	CategoryUnboundGeneric
	CategoryRecursiveType

	// Type syntax restrictions
	CategoryInvalidAttribute
	CategoryLoweredTypeContext

	// Override checking
	CategoryOverride
	CategoryOverrideAccess
	CategoryOverrideMutability
	CategoryOverrideThrows
	CategoryOverrideAvailability

	// Optimizer remarks
	CategoryOptimizerRemark
)

func (c Category) String() string {
	switch c {
	case CategoryUndeclaredType:
		return "undeclared-type"
	case CategoryAmbiguousType:
		return "ambiguous-type"
	case CategoryInaccessible:
		return "inaccessible"
	case CategoryInvalidMemberType:
		return "invalid-member-type"
	case CategoryGenericArity:
		return "generic-arity"
	case CategoryGenericRequirement:
		return "generic-requirement"
	case CategoryUnboundGeneric:
		return "unbound-generic"
	case CategoryRecursiveType:
		return "recursive-type"
	case CategoryInvalidAttribute:
		return "invalid-attribute"
	case CategoryLoweredTypeContext:
		return "lowered-type-context"
	case CategoryOverride:
		return "override"
	case CategoryOverrideAccess:
		return "override-access"
	case CategoryOverrideMutability:
		return "override-mutability"
	case CategoryOverrideThrows:
		return "override-throws"
	case CategoryOverrideAvailability:
		return "override-availability"
	case CategoryOptimizerRemark:
		return "optimizer-remark"
	default:
		return "unknown"
	}
}

// FixIt represents a suggested mechanical fix for a diagnostic.
type FixIt struct {
	Description string
	Replacement string
	Span        position.Span
}

// Related provides additional context from another source location.
type Related struct {
	Message string
	Span    position.Span
}

// Diagnostic is a single reported problem. Report returns a pointer so
// that callers can attach fix-its and notes to the in-flight diagnostic.
type Diagnostic struct {
	Level    Level
	Category Category
	Message  string
	Span     position.Span
	FixIts   []FixIt
	Notes    []Related
}

// WithFixIt attaches a fix-it suggestion and returns the diagnostic for
// chaining.
func (d *Diagnostic) WithFixIt(span position.Span, description, replacement string) *Diagnostic {
	d.FixIts = append(d.FixIts, FixIt{Description: description, Replacement: replacement, Span: span})
	return d
}

// WithNote attaches related information at another location.
func (d *Diagnostic) WithNote(span position.Span, format string, args ...any) *Diagnostic {
	d.Notes = append(d.Notes, Related{Message: fmt.Sprintf(format, args...), Span: span})
	return d
}

func (d *Diagnostic) String() string {
	var b strings.Builder
	if d.Span.IsValid() {
		fmt.Fprintf(&b, "%s: ", d.Span)
	}
	fmt.Fprintf(&b, "%s: %s", d.Level, d.Message)
	return b.String()
}

// Manager collects the diagnostics of one compilation session.
type Manager struct {
	diagnostics  []*Diagnostic
	errorCount   int
	warningCount int
	maxErrors    int
	suppressions map[Category]bool
}

// NewManager creates a diagnostic manager with default limits.
func NewManager() *Manager {
	return &Manager{
		maxErrors:    100,
		suppressions: make(map[Category]bool),
	}
}

// SetErrorLimit sets the maximum number of errors that will be recorded.
func (m *Manager) SetErrorLimit(limit int) {
	m.maxErrors = limit
}

// SuppressCategory drops all further diagnostics of the given category.
func (m *Manager) SuppressCategory(category Category) {
	m.suppressions[category] = true
}

// Report records a new diagnostic and returns it for fix-it attachment.
// A suppressed or over-limit diagnostic is still returned (so callers can
// chain unconditionally) but is not recorded.
func (m *Manager) Report(span position.Span, level Level, category Category, format string, args ...any) *Diagnostic {
	d := &Diagnostic{
		Level:    level,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
	}
	if m.suppressions[category] {
		return d
	}
	if level == Error && m.errorCount >= m.maxErrors {
		return d
	}
	switch level {
	case Error:
		m.errorCount++
	case Warning:
		m.warningCount++
	}
	m.diagnostics = append(m.diagnostics, d)
	return d
}

// Errorf reports an error diagnostic.
func (m *Manager) Errorf(span position.Span, category Category, format string, args ...any) *Diagnostic {
	return m.Report(span, Error, category, format, args...)
}

// Warningf reports a warning diagnostic.
func (m *Manager) Warningf(span position.Span, category Category, format string, args ...any) *Diagnostic {
	return m.Report(span, Warning, category, format, args...)
}

// ErrorCount returns the number of recorded errors.
func (m *Manager) ErrorCount() int { return m.errorCount }

// WarningCount returns the number of recorded warnings.
func (m *Manager) WarningCount() int { return m.warningCount }

// HasErrors reports whether any error has been recorded.
func (m *Manager) HasErrors() bool { return m.errorCount > 0 }

// Diagnostics returns all recorded diagnostics ordered by source position.
func (m *Manager) Diagnostics() []*Diagnostic {
	sorted := make([]*Diagnostic, len(m.diagnostics))
	copy(sorted, m.diagnostics)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Span.Start.Before(sorted[j].Span.Start)
	})
	return sorted
}
