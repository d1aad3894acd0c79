package types

import (
	"strings"

	"github.com/vela-lang/vela/internal/position"
)

// DeclKind is the closed set of declaration kinds. Matching on it is
// exhaustive; there is no open subclassing of declarations.
type DeclKind int

const (
	DeclModule DeclKind = iota
	DeclClass
	DeclStruct
	DeclEnum
	DeclProtocol
	DeclTypeAlias
	DeclAssociatedType
	DeclGenericParam
	DeclExtension
	DeclFunc
	DeclConstructor
	DeclVar
	DeclSubscript
)

func (k DeclKind) String() string {
	switch k {
	case DeclModule:
		return "module"
	case DeclClass:
		return "class"
	case DeclStruct:
		return "struct"
	case DeclEnum:
		return "enum"
	case DeclProtocol:
		return "protocol"
	case DeclTypeAlias:
		return "typealias"
	case DeclAssociatedType:
		return "associatedtype"
	case DeclGenericParam:
		return "generic parameter"
	case DeclExtension:
		return "extension"
	case DeclFunc:
		return "func"
	case DeclConstructor:
		return "init"
	case DeclVar:
		return "var"
	case DeclSubscript:
		return "subscript"
	default:
		return "unknown"
	}
}

// AccessLevel orders declaration visibility from most to least restricted.
type AccessLevel int

const (
	AccessPrivate AccessLevel = iota
	AccessFilePrivate
	AccessInternal
	AccessPublic
	AccessOpen
)

func (a AccessLevel) String() string {
	switch a {
	case AccessPrivate:
		return "private"
	case AccessFilePrivate:
		return "fileprivate"
	case AccessInternal:
		return "internal"
	case AccessPublic:
		return "public"
	case AccessOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Name is a declaration name with optional argument labels, e.g.
// insert(_:at:). Two names with the same base but different labels do
// not match at the PerfectMatch level of override checking.
type Name struct {
	Base      string
	ArgLabels []string
}

// SimpleName creates a name without argument labels.
func SimpleName(base string) Name { return Name{Base: base} }

// FuncName creates a name with argument labels.
func FuncName(base string, labels ...string) Name {
	return Name{Base: base, ArgLabels: labels}
}

// Matches reports full-name equality including argument labels.
func (n Name) Matches(other Name) bool {
	if n.Base != other.Base || len(n.ArgLabels) != len(other.ArgLabels) {
		return false
	}
	for i := range n.ArgLabels {
		if n.ArgLabels[i] != other.ArgLabels[i] {
			return false
		}
	}
	return true
}

// MatchesBase reports base-name equality, ignoring argument labels.
func (n Name) MatchesBase(other Name) bool { return n.Base == other.Base }

// HasArgLabels reports whether the name carries any argument labels.
func (n Name) HasArgLabels() bool { return len(n.ArgLabels) > 0 }

func (n Name) String() string {
	if len(n.ArgLabels) == 0 {
		return n.Base
	}
	var b strings.Builder
	b.WriteString(n.Base)
	b.WriteByte('(')
	for _, l := range n.ArgLabels {
		if l == "" {
			l = "_"
		}
		b.WriteString(l)
		b.WriteByte(':')
	}
	b.WriteByte(')')
	return b.String()
}

// DeclFlags carries the boolean attributes that checking consults.
type DeclFlags struct {
	Static      bool // type-level member
	Final       bool
	Override    bool // explicit override intent
	Throws      bool
	Settable    bool // var with a setter
	Let         bool // stored immutable
	IUO         bool // implicitly-unwrapped optional at a bridged boundary
	Bridged     bool // member visible across the foreign bridge
	DynamicOnly bool // only reachable via dynamic dispatch
	ProtoExtMem bool // declared in a protocol extension
	Invalid     bool // declaration failed earlier checking
}

// Decl is a declaration node. One struct covers the closed DeclKind set;
// kind-specific fields are nil/zero for other kinds.
type Decl struct {
	Kind   DeclKind
	Name   Name
	Span   position.Span
	Access AccessLevel
	// SetterAccess applies to settable storage; defaults to Access.
	SetterAccess AccessLevel
	Parent       *Decl // enclosing declaration context, nil for modules
	Members      []*Decl
	Flags        DeclFlags
	Availability *AvailabilityRange

	// Generic context.
	GenericParams []*Decl // DeclGenericParam members, ordered
	Signature     *GenericSignature

	// Type declarations.
	Superclass *Type   // DeclClass: superclass, nil for roots
	Inherited  []*Decl // DeclProtocol: inherited protocols
	Underlying *Type   // DeclTypeAlias: aliased type
	Extended   *Decl   // DeclExtension: the nominal being extended

	// DeclGenericParam, DeclAssociatedType.
	Depth, Index int

	// Value declarations: the interface type used for comparisons.
	InterfaceType *Type

	// Protocol requirement signature: conformance requirements the
	// protocol imposes on Self and its associated types, in a fixed
	// order. Conformances store their witnesses in this order.
	RequirementSignature []AssocRequirement

	declaredType *Type // cache for DeclaredInterfaceType
}

// AssocRequirement is one entry of a protocol's requirement signature:
// "Self.<Assoc>: Proto", or "Self: Proto" when Assoc is empty (an
// inherited protocol).
type AssocRequirement struct {
	Assoc string
	Proto *Decl
}

// NewModule creates a module declaration.
func NewModule(name string) *Decl {
	return &Decl{Kind: DeclModule, Name: SimpleName(name), Access: AccessPublic}
}

// AddMember appends a member and sets its parent context.
func (d *Decl) AddMember(member *Decl) *Decl {
	member.Parent = d
	d.Members = append(d.Members, member)
	return member
}

// IsTypeDecl reports whether the declaration introduces a type.
func (d *Decl) IsTypeDecl() bool {
	switch d.Kind {
	case DeclClass, DeclStruct, DeclEnum, DeclProtocol, DeclTypeAlias,
		DeclAssociatedType, DeclGenericParam, DeclModule:
		return true
	case DeclExtension, DeclFunc, DeclConstructor, DeclVar, DeclSubscript:
		return false
	default:
		return false
	}
}

// IsNominal reports whether the declaration is a nominal type.
func (d *Decl) IsNominal() bool {
	switch d.Kind {
	case DeclClass, DeclStruct, DeclEnum, DeclProtocol:
		return true
	default:
		return false
	}
}

// IsGeneric reports whether the declaration introduces generic parameters.
func (d *Decl) IsGeneric() bool { return len(d.GenericParams) > 0 }

// NominalContext returns the nominal declaration this context belongs
// to: the declaration itself, the extended nominal for extensions, or
// nil at module scope.
func (d *Decl) NominalContext() *Decl {
	switch {
	case d == nil:
		return nil
	case d.IsNominal():
		return d
	case d.Kind == DeclExtension:
		return d.Extended
	default:
		return nil
	}
}

// ClassContext walks outward to the innermost class (or class
// extension) context, or nil.
func (d *Decl) ClassContext() *Decl {
	for ctx := d; ctx != nil; ctx = ctx.Parent {
		nominal := ctx.NominalContext()
		if nominal != nil && nominal.Kind == DeclClass {
			return nominal
		}
	}
	return nil
}

// ModuleContext walks outward to the enclosing module.
func (d *Decl) ModuleContext() *Decl {
	for ctx := d; ctx != nil; ctx = ctx.Parent {
		if ctx.Kind == DeclModule {
			return ctx
		}
	}
	return nil
}

// InnermostSignature returns the generic signature of the innermost
// generic context enclosing d, or nil.
func (d *Decl) InnermostSignature() *GenericSignature {
	for ctx := d; ctx != nil; ctx = ctx.Parent {
		if ctx.Signature != nil {
			return ctx.Signature
		}
	}
	return nil
}

// LookupMember finds direct members matching the base name.
func (d *Decl) LookupMember(base string) []*Decl {
	var found []*Decl
	for _, m := range d.Members {
		if m.Name.Base == base {
			found = append(found, m)
		}
	}
	return found
}

// AssociatedTypes returns a protocol's associated type members.
func (d *Decl) AssociatedTypes() []*Decl {
	var assocs []*Decl
	for _, m := range d.Members {
		if m.Kind == DeclAssociatedType {
			assocs = append(assocs, m)
		}
	}
	return assocs
}

// AssociatedType finds a protocol's associated type by name, searching
// inherited protocols as well.
func (d *Decl) AssociatedType(name string) *Decl {
	for _, m := range d.Members {
		if m.Kind == DeclAssociatedType && m.Name.Base == name {
			return m
		}
	}
	for _, p := range d.Inherited {
		if assoc := p.AssociatedType(name); assoc != nil {
			return assoc
		}
	}
	return nil
}

// InheritsFrom reports whether protocol d inherits proto, directly or
// transitively.
func (d *Decl) InheritsFrom(proto *Decl) bool {
	for _, p := range d.Inherited {
		if p == proto || p.InheritsFrom(proto) {
			return true
		}
	}
	return false
}

// DeclaredInterfaceType returns the type a type declaration declares,
// relative to its own generic context: nominals carry their generic
// parameters as arguments, associated types project off Self.
func (d *Decl) DeclaredInterfaceType(c *Context) *Type {
	if d.declaredType != nil {
		return d.declaredType
	}
	var t *Type
	switch d.Kind {
	case DeclModule:
		t = c.ModuleType(d)
	case DeclClass, DeclStruct, DeclEnum:
		var parent *Type
		if np := d.Parent.NominalContext(); np != nil {
			parent = np.DeclaredInterfaceType(c)
		}
		args := make([]*Type, len(d.GenericParams))
		for i, gp := range d.GenericParams {
			args[i] = c.GenericParamType(gp.Depth, gp.Index, gp.Name.Base)
		}
		t = c.NominalType(d, parent, args...)
	case DeclProtocol:
		t = c.ProtocolType(d)
	case DeclTypeAlias:
		if d.Underlying == nil {
			t = c.ErrorType()
		} else {
			t = c.AliasType(d, d.Underlying, nil)
		}
	case DeclGenericParam:
		t = c.GenericParamType(d.Depth, d.Index, d.Name.Base)
	case DeclAssociatedType:
		self := c.GenericParamType(0, 0, "Self")
		t = c.DependentMemberType(self, d.Name.Base, d)
	default:
		t = d.InterfaceType
	}
	d.declaredType = t
	return t
}

// FormalAccess returns the access level used for override and lookup
// checks; setter access is handled separately by callers.
func (d *Decl) FormalAccess() AccessLevel { return d.Access }

func (d *Decl) String() string {
	return d.Kind.String() + " " + d.Name.String()
}
