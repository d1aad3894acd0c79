package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-set/v3"
)

// GenericParamKey identifies a generic parameter by position.
type GenericParamKey struct {
	Depth int
	Index int
}

func (k GenericParamKey) String() string {
	return fmt.Sprintf("τ_%d_%d", k.Depth, k.Index)
}

// RequirementKind classifies generic requirements.
type RequirementKind int

const (
	// ReqConformance requires the subject to conform to a protocol.
	ReqConformance RequirementKind = iota
	// ReqSuperclass requires the subject to be a subclass of a class type.
	ReqSuperclass
	// ReqSameType requires two types to be equal after substitution.
	ReqSameType
)

func (k RequirementKind) String() string {
	switch k {
	case ReqConformance:
		return "conformance"
	case ReqSuperclass:
		return "superclass"
	case ReqSameType:
		return "same-type"
	default:
		return fmt.Sprintf("requirement(%d)", int(k))
	}
}

// Requirement is a single constraint of a generic signature. Subject is
// always a type parameter (generic param or dependent member chain).
// For conformance requirements Proto names the protocol; for superclass
// and same-type requirements Constraint carries the right-hand type.
type Requirement struct {
	Kind       RequirementKind
	Subject    *Type
	Proto      *Decl
	Constraint *Type
}

func (r Requirement) String() string {
	switch r.Kind {
	case ReqConformance:
		return fmt.Sprintf("%s: %s", r.Subject, r.Proto.Name)
	case ReqSuperclass:
		return fmt.Sprintf("%s: %s", r.Subject, r.Constraint)
	default:
		return fmt.Sprintf("%s == %s", r.Subject, r.Constraint)
	}
}

// GenericSignature lists the generic parameters visible in a context
// together with their requirements. Parameters are ordered by depth
// then index; conformance requirements keep a stable order, which fixes
// the layout of a substitution map's conformance array.
type GenericSignature struct {
	ctx          *Context
	params       []*Type
	requirements []Requirement

	// same-type equivalence, keyed by canonical subject key; each class
	// may designate a concrete anchor type.
	classes map[string]*equivClass
}

type equivClass struct {
	members  []*Type
	anchor   *Type // least member, the canonical representative
	concrete *Type // non-type-parameter binding from a same-type requirement
}

// NewGenericSignature builds a signature over the given parameters and
// requirements. Parameters must already be canonical generic parameter
// types; callers construct them with Context.GenericParamType.
func (c *Context) NewGenericSignature(params []*Type, requirements []Requirement) *GenericSignature {
	ordered := make([]*Type, len(params))
	copy(ordered, params)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].depth != ordered[j].depth {
			return ordered[i].depth < ordered[j].depth
		}
		return ordered[i].index < ordered[j].index
	})
	sig := &GenericSignature{ctx: c, params: ordered, requirements: requirements}
	sig.buildEquivClasses()
	return sig
}

// Context returns the owning type context.
func (s *GenericSignature) Context() *Context { return s.ctx }

// GenericParams returns the signature's parameters in canonical order.
func (s *GenericSignature) GenericParams() []*Type { return s.params }

// Requirements returns all requirements in declaration order.
func (s *GenericSignature) Requirements() []Requirement { return s.requirements }

// ConformanceRequirements returns just the conformance requirements, in
// the order substitution maps store their conformances.
func (s *GenericSignature) ConformanceRequirements() []Requirement {
	var out []Requirement
	for _, r := range s.requirements {
		if r.Kind == ReqConformance {
			out = append(out, r)
		}
	}
	return out
}

// NumConformanceRequirements reports the length of the conformance
// array a substitution map for this signature carries.
func (s *GenericSignature) NumConformanceRequirements() int {
	n := 0
	for _, r := range s.requirements {
		if r.Kind == ReqConformance {
			n++
		}
	}
	return n
}

func (s *GenericSignature) buildEquivClasses() {
	s.classes = make(map[string]*equivClass)
	find := func(t *Type) *equivClass {
		key := t.Canonical().key
		if cl := s.classes[key]; cl != nil {
			return cl
		}
		cl := &equivClass{members: []*Type{t.Canonical()}, anchor: t.Canonical()}
		s.classes[key] = cl
		return cl
	}
	for _, r := range s.requirements {
		if r.Kind != ReqSameType {
			continue
		}
		left := find(r.Subject)
		if !r.Constraint.IsTypeParameter() {
			left.concrete = r.Constraint
			continue
		}
		right := find(r.Constraint)
		if left == right {
			continue
		}
		// union: fold right into left
		left.members = append(left.members, right.members...)
		if typeParamLess(right.anchor, left.anchor) {
			left.anchor = right.anchor
		}
		if left.concrete == nil {
			left.concrete = right.concrete
		}
		for _, m := range right.members {
			s.classes[m.key] = left
		}
	}
}

// typeParamLess orders type parameters: shorter dependent chains first,
// then by position, then by member name.
func typeParamLess(a, b *Type) bool {
	da, db := chainLen(a), chainLen(b)
	if da != db {
		return da < db
	}
	if a.kind == KindGenericParam && b.kind == KindGenericParam {
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.index < b.index
	}
	if a.kind == KindDependentMember && b.kind == KindDependentMember {
		if typeParamLess(a.parent, b.parent) {
			return true
		}
		if typeParamLess(b.parent, a.parent) {
			return false
		}
		return a.name < b.name
	}
	return a.kind == KindGenericParam
}

func chainLen(t *Type) int {
	n := 0
	for t.kind == KindDependentMember {
		n++
		t = t.parent
	}
	return n
}

// ConcreteType returns the concrete binding of a type parameter fixed
// by a same-type requirement, or nil.
func (s *GenericSignature) ConcreteType(t *Type) *Type {
	if cl := s.classes[t.Canonical().key]; cl != nil {
		return cl.concrete
	}
	return nil
}

// CanonicalTypeInContext reduces t modulo the signature: same-type
// classes collapse to their anchor, or to their concrete binding when
// one exists. Non-parameter structure is rebuilt around the reduced
// leaves.
func (s *GenericSignature) CanonicalTypeInContext(t *Type) *Type {
	reduced := t.SubstWithFns(func(sub *Type) *Type {
		if !sub.IsTypeParameter() {
			return nil
		}
		cl := s.classes[sub.Canonical().key]
		if cl == nil {
			return nil
		}
		if cl.concrete != nil {
			return cl.concrete
		}
		if cl.anchor != sub.Canonical() {
			return cl.anchor
		}
		return nil
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		return AbstractConformance(proto), true
	})
	return reduced.Canonical()
}

// IsCanonicalTypeInContext reports whether t is already reduced.
func (s *GenericSignature) IsCanonicalTypeInContext(t *Type) bool {
	return s.CanonicalTypeInContext(t) == t.Canonical()
}

// ContainsParam reports whether the signature declares the given
// generic parameter type.
func (s *GenericSignature) ContainsParam(t *Type) bool {
	can := t.Canonical()
	for _, p := range s.params {
		if p == can {
			return true
		}
	}
	return false
}

// ConformsToProtocol reports whether the signature requires t, a type
// parameter, to conform to proto, either directly or through a
// protocol the requirement's protocol inherits.
func (s *GenericSignature) ConformsToProtocol(t *Type, proto *Decl) bool {
	can := s.CanonicalTypeInContext(t)
	for _, r := range s.requirements {
		if r.Kind != ReqConformance {
			continue
		}
		if s.CanonicalTypeInContext(r.Subject) != can {
			continue
		}
		if r.Proto == proto || r.Proto.InheritsFrom(proto) {
			return true
		}
	}
	// Dependent members of a conforming base pick up the requirements
	// their associated type declares.
	if can.kind == KindDependentMember && can.assoc != nil {
		for _, req := range can.assoc.RequirementSignature {
			if req.Assoc == "" && (req.Proto == proto || req.Proto.InheritsFrom(proto)) {
				return true
			}
		}
	}
	return false
}

// SuperclassBound returns the superclass constraint on t, or nil.
func (s *GenericSignature) SuperclassBound(t *Type) *Type {
	can := s.CanonicalTypeInContext(t)
	for _, r := range s.requirements {
		if r.Kind == ReqSuperclass && s.CanonicalTypeInContext(r.Subject) == can {
			return r.Constraint
		}
	}
	return nil
}

// AccessPathStep is one hop of a conformance access path. The first
// step names a conformance requirement of the generic signature itself;
// each later step names an associated requirement of the previous
// step's protocol. Assoc is the associated type the hop projects
// through, or "" when the hop follows an inherited protocol.
type AccessPathStep struct {
	Subject *Type
	Proto   *Decl
	Assoc   string
}

// ConformanceAccessPath computes how the requirement "t: proto" is
// derived from the signature's root conformance requirements: the first
// step is a requirement of this signature, each later step names an
// associated requirement of the previous step's protocol. Returns nil
// when the signature does not imply the conformance.
func (s *GenericSignature) ConformanceAccessPath(t *Type, proto *Decl) []AccessPathStep {
	can := s.CanonicalTypeInContext(t)

	type node struct {
		subject *Type
		proto   *Decl
		path    []AccessPathStep
	}
	var frontier []node
	for _, r := range s.ConformanceRequirements() {
		subj := s.CanonicalTypeInContext(r.Subject)
		frontier = append(frontier, node{subj, r.Proto,
			[]AccessPathStep{{Subject: subj, Proto: r.Proto}}})
	}

	visited := set.New[string](len(frontier))
	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		if !visited.Insert(n.subject.key + "/" + n.proto.Name.Base) {
			continue
		}

		if n.subject == can && n.proto == proto {
			return n.path
		}

		// Expand through the protocol's requirement signature: each
		// associated requirement derives a conformance of a dependent
		// member, and each inherited protocol a conformance of the
		// subject itself.
		for _, req := range n.proto.RequirementSignature {
			var subj *Type
			if req.Assoc == "" {
				subj = n.subject
			} else {
				assoc := n.proto.AssociatedType(req.Assoc)
				subj = s.ctx.DependentMemberType(n.subject, req.Assoc, assoc).Canonical()
				subj = s.CanonicalTypeInContext(subj)
			}
			step := AccessPathStep{Subject: subj, Proto: req.Proto, Assoc: req.Assoc}
			path := make([]AccessPathStep, len(n.path), len(n.path)+1)
			copy(path, n.path)
			frontier = append(frontier, node{subj, req.Proto, append(path, step)})
		}
	}
	return nil
}

func (s *GenericSignature) String() string {
	var b strings.Builder
	b.WriteByte('<')
	for i, p := range s.params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	if len(s.requirements) > 0 {
		b.WriteString(" where ")
		for i, r := range s.requirements {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.String())
		}
	}
	b.WriteByte('>')
	return b.String()
}
