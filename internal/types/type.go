package types

import (
	"fmt"
	"strings"
)

// TypeKind is the closed set of type node kinds.
type TypeKind int

const (
	KindError TypeKind = iota
	KindModule
	KindNominal // struct/class/enum/protocol reference with bound arguments
	KindUnboundGeneric
	KindAlias // sugar: a typealias reference wrapping its expansion
	KindTuple
	KindFunction
	KindOptional
	KindGenericParam
	KindDependentMember
	KindArchetype
	KindExistential
)

func (k TypeKind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindModule:
		return "module"
	case KindNominal:
		return "nominal"
	case KindUnboundGeneric:
		return "unbound-generic"
	case KindAlias:
		return "alias"
	case KindTuple:
		return "tuple"
	case KindFunction:
		return "function"
	case KindOptional:
		return "optional"
	case KindGenericParam:
		return "generic-param"
	case KindDependentMember:
		return "dependent-member"
	case KindArchetype:
		return "archetype"
	case KindExistential:
		return "existential"
	default:
		return "unknown"
	}
}

// Convention is a function type's calling convention / representation.
type Convention int

const (
	ConventionDefault Convention = iota
	ConventionThin
	ConventionC
)

func (c Convention) String() string {
	switch c {
	case ConventionThin:
		return "thin"
	case ConventionC:
		return "c"
	default:
		return "default"
	}
}

// FunctionInfo carries the non-structural attributes of a function type.
type FunctionInfo struct {
	Convention Convention
	NoEscape   bool
	Throws     bool
}

// Param is one parameter of a function type.
type Param struct {
	Label string
	Type  *Type
}

// Type is an interned type node. Canonical types are uniquely
// represented in their Context, so canonical equality is pointer
// equality. Types are immutable once constructed.
type Type struct {
	kind TypeKind
	ctx  *Context

	decl       *Type0Decl // see alias below; keeps gofmt happy
	parent     *Type      // nominal parent; archetype parent environment root
	args       []*Type    // nominal/alias args; tuple elements
	params     []Param    // function params
	result     *Type      // function result
	fnInfo     FunctionInfo
	underlying *Type // alias expansion; optional object; error original
	depth      int   // generic param
	index      int   // generic param
	name       string
	assoc      *Decl   // dependent member's bound associated type decl
	protocols  []*Decl // existential members
	iface      *Type   // archetype's interface (signature-relative) form
	env        *GenericEnvironment
	openedID   int // opened-existential archetypes are unique per opening

	hasError  bool
	canonical *Type  // cached canonical form; == itself when canonical
	key       string // structural interning key, set on canonical nodes
}

// Type0Decl aliases Decl; Type fields reference declarations for
// nominal, unbound, alias and module kinds.
type Type0Decl = Decl

// Kind returns the node kind.
func (t *Type) Kind() TypeKind { return t.kind }

// Context returns the owning interning context.
func (t *Type) Context() *Context { return t.ctx }

// TypeDecl returns the referenced declaration for nominal, unbound,
// alias and module types, nil otherwise.
func (t *Type) TypeDecl() *Decl { return t.decl }

// Parent returns the parent type of a nested nominal type.
func (t *Type) Parent() *Type { return t.parent }

// Args returns bound generic arguments, or tuple elements.
func (t *Type) Args() []*Type { return t.args }

// Params returns a function type's parameters.
func (t *Type) Params() []Param { return t.params }

// Result returns a function type's result.
func (t *Type) Result() *Type { return t.result }

// FuncInfo returns a function type's attributes.
func (t *Type) FuncInfo() FunctionInfo { return t.fnInfo }

// Underlying returns an alias expansion, an optional's object type, or
// the original type an error marker replaced.
func (t *Type) Underlying() *Type { return t.underlying }

// ParamKey returns the (depth, index) key of a generic parameter type.
func (t *Type) ParamKey() GenericParamKey {
	return GenericParamKey{Depth: t.depth, Index: t.index}
}

// ParamName returns the display name of a generic parameter.
func (t *Type) ParamName() string { return t.name }

// Base returns a dependent member's base type.
func (t *Type) Base() *Type { return t.parent }

// AssocName returns a dependent member's associated type name.
func (t *Type) AssocName() string { return t.name }

// AssocDecl returns a dependent member's bound associated type decl,
// which may be nil for unresolved members.
func (t *Type) AssocDecl() *Decl { return t.assoc }

// Protocols returns the members of an existential type.
func (t *Type) Protocols() []*Decl { return t.protocols }

// InterfaceType returns an archetype's signature-relative form, nil for
// opened existentials which have none.
func (t *Type) InterfaceType() *Type { return t.iface }

// IsOpenedExistential reports whether t is an opened-existential
// archetype.
func (t *Type) IsOpenedExistential() bool {
	return t.kind == KindArchetype && t.openedID != 0
}

// IsNestedArchetype reports whether t is an archetype whose interface
// form is a dependent member.
func (t *Type) IsNestedArchetype() bool {
	return t.kind == KindArchetype && t.iface != nil && t.iface.kind == KindDependentMember
}

// HasError reports whether the type contains an error marker anywhere.
func (t *Type) HasError() bool { return t.hasError }

// IsError reports whether the type itself is an error marker.
func (t *Type) IsError() bool { return t.kind == KindError }

// IsTypeParameter reports whether the type is a generic parameter or a
// dependent member chain rooted at one.
func (t *Type) IsTypeParameter() bool {
	switch t.kind {
	case KindGenericParam:
		return true
	case KindDependentMember:
		return t.parent.IsTypeParameter()
	default:
		return false
	}
}

// IsExistential reports whether the type is existential.
func (t *Type) IsExistential() bool { return t.kind == KindExistential }

// IsClass reports whether the type is a class nominal type.
func (t *Type) IsClass() bool {
	return t.kind == KindNominal && t.decl.Kind == DeclClass
}

// IsOptional reports whether the type is an optional wrapping.
func (t *Type) IsOptional() bool { return t.kind == KindOptional }

// ObjectType returns the wrapped type of an optional, or t itself.
func (t *Type) ObjectType() *Type {
	if t.kind == KindOptional {
		return t.underlying
	}
	return t
}

// IsCanonical reports whether t is its own canonical form.
func (t *Type) IsCanonical() bool { return t.canonical == t }

// Canonical returns the unique, sugar-free representative of t.
func (t *Type) Canonical() *Type { return t.canonical }

// IsEqual reports semantic equality: equality of canonical forms.
// Canonical types are interned, so this is pointer equality.
func (t *Type) IsEqual(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.canonical == other.canonical
}

// Superclass returns the superclass of a class type with this type's
// generic arguments substituted in, or nil.
func (t *Type) Superclass() *Type {
	if !t.IsClass() || t.decl.Superclass == nil {
		return nil
	}
	return t.decl.Superclass.SubstMap(t.ContextSubstitutionMap(t.decl))
}

// SuperclassForDecl walks the superclass chain until it reaches the
// given class declaration, returning the (substituted) type at that
// point, or nil when base is not an ancestor.
func (t *Type) SuperclassForDecl(base *Decl) *Type {
	for cur := t; cur != nil; cur = cur.Superclass() {
		if cur.kind == KindNominal && cur.decl == base {
			return cur
		}
	}
	return nil
}

func (t *Type) String() string {
	switch t.kind {
	case KindError:
		return "<<error>>"
	case KindModule:
		return t.decl.Name.Base
	case KindNominal, KindUnboundGeneric, KindAlias:
		var b strings.Builder
		if t.parent != nil {
			b.WriteString(t.parent.String())
			b.WriteByte('.')
		}
		b.WriteString(t.decl.Name.Base)
		if len(t.args) > 0 {
			b.WriteByte('<')
			for i, a := range t.args {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(a.String())
			}
			b.WriteByte('>')
		}
		return b.String()
	case KindTuple:
		var b strings.Builder
		b.WriteByte('(')
		for i, e := range t.args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.String())
		}
		b.WriteByte(')')
		return b.String()
	case KindFunction:
		var b strings.Builder
		if t.fnInfo.Convention != ConventionDefault {
			fmt.Fprintf(&b, "@convention(%s) ", t.fnInfo.Convention)
		}
		if t.fnInfo.NoEscape {
			b.WriteString("@noescape ")
		}
		b.WriteByte('(')
		for i, p := range t.params {
			if i > 0 {
				b.WriteString(", ")
			}
			if p.Label != "" {
				b.WriteString(p.Label)
				b.WriteString(": ")
			}
			b.WriteString(p.Type.String())
		}
		b.WriteString(") ")
		if t.fnInfo.Throws {
			b.WriteString("throws ")
		}
		b.WriteString("-> ")
		b.WriteString(t.result.String())
		return b.String()
	case KindOptional:
		return t.underlying.String() + "?"
	case KindGenericParam:
		if t.name != "" {
			return t.name
		}
		return fmt.Sprintf("τ_%d_%d", t.depth, t.index)
	case KindDependentMember:
		return t.parent.String() + "." + t.name
	case KindArchetype:
		if t.openedID != 0 {
			return fmt.Sprintf("@opened(%d)", t.openedID)
		}
		return "ρ(" + t.iface.String() + ")"
	case KindExistential:
		if len(t.protocols) == 0 {
			return "Any"
		}
		names := make([]string, len(t.protocols))
		for i, p := range t.protocols {
			names[i] = p.Name.Base
		}
		return strings.Join(names, " & ")
	default:
		return "<invalid>"
	}
}
