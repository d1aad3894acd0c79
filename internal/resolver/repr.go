// Package resolver turns surface type syntax into canonical types.
//
// Resolution runs against a declaration context plus an Options bitset
// and reports failures through a diagnostics manager; it never panics
// on bad input and never returns nil, producing error-marker types for
// positions that could not resolve so that sibling positions still get
// checked.
package resolver

import (
	"strings"

	"github.com/vela-lang/vela/internal/position"
)

// TypeRepr is a surface type syntax node. Reprs are produced by the
// parser and carry no semantic information.
type TypeRepr interface {
	Span() position.Span
	isTypeRepr()
}

// Component is one segment of a (possibly compound) identifier type,
// with any generic argument syntax attached to that segment.
type Component struct {
	Name        string
	NameSpan    position.Span
	GenericArgs []TypeRepr
}

// IdentRepr is an identifier type: a dotted chain of components, each
// optionally applying generic arguments, e.g. Outer<Int>.Inner.
type IdentRepr struct {
	Components []Component
	SourceSpan position.Span
}

func (r *IdentRepr) Span() position.Span { return r.SourceSpan }
func (r *IdentRepr) isTypeRepr()         {}

func (r *IdentRepr) String() string {
	names := make([]string, len(r.Components))
	for i, c := range r.Components {
		names[i] = c.Name
	}
	return strings.Join(names, ".")
}

// Ident builds a single-component identifier repr, a convenience for
// tests and synthesized syntax.
func Ident(name string, span position.Span, args ...TypeRepr) *IdentRepr {
	return &IdentRepr{
		Components: []Component{{Name: name, NameSpan: span, GenericArgs: args}},
		SourceSpan: span,
	}
}

// TupleRepr is a tuple type (T, U, ...).
type TupleRepr struct {
	Elements   []TypeRepr
	SourceSpan position.Span
}

func (r *TupleRepr) Span() position.Span { return r.SourceSpan }
func (r *TupleRepr) isTypeRepr()         {}

// ParamRepr is one parameter of a function type repr.
type ParamRepr struct {
	Label string
	Type  TypeRepr
}

// FunctionRepr is a function type (params) -> result.
type FunctionRepr struct {
	Params     []ParamRepr
	Result     TypeRepr
	Throws     bool
	SourceSpan position.Span
}

func (r *FunctionRepr) Span() position.Span { return r.SourceSpan }
func (r *FunctionRepr) isTypeRepr()         {}

// OptionalRepr is T?.
type OptionalRepr struct {
	Base       TypeRepr
	SourceSpan position.Span
}

func (r *OptionalRepr) Span() position.Span { return r.SourceSpan }
func (r *OptionalRepr) isTypeRepr()         {}

// AttrKind is a type attribute in surface syntax.
type AttrKind int

const (
	// AttrConventionThin requests a context-free function representation.
	AttrConventionThin AttrKind = iota
	// AttrConventionC requests the C calling convention.
	AttrConventionC
	// AttrEscaping marks a parameter-position function as escaping.
	AttrEscaping
	// AttrNoEscape marks a function as non-escaping explicitly.
	AttrNoEscape
)

func (k AttrKind) String() string {
	switch k {
	case AttrConventionThin:
		return "@convention(thin)"
	case AttrConventionC:
		return "@convention(c)"
	case AttrEscaping:
		return "@escaping"
	case AttrNoEscape:
		return "@noescape"
	default:
		return "@unknown"
	}
}

// Attr is one attribute occurrence.
type Attr struct {
	Kind     AttrKind
	AttrSpan position.Span
}

// AttributedRepr wraps a base repr with attributes.
type AttributedRepr struct {
	Attrs      []Attr
	Base       TypeRepr
	SourceSpan position.Span
}

func (r *AttributedRepr) Span() position.Span { return r.SourceSpan }
func (r *AttributedRepr) isTypeRepr()         {}
