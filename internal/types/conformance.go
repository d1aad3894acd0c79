package types

import "fmt"

// ConformanceState tracks how much of a conformance has been checked.
type ConformanceState int

const (
	// StateIncomplete means witnesses have not been resolved yet.
	StateIncomplete ConformanceState = iota
	// StateCheckingTypeWitnesses means type witness resolution is in
	// progress; lookups that land here must not recurse into it.
	StateCheckingTypeWitnesses
	// StateComplete means all witnesses are resolved.
	StateComplete
)

// ProtocolConformance records how a concrete type satisfies a protocol:
// a type witness per associated type and a conformance per requirement
// of the protocol's requirement signature, in requirement order.
type ProtocolConformance struct {
	ctx   *Context
	typ   *Type
	proto *Decl
	state ConformanceState
	lazy  func(*ProtocolConformance)

	typeWitnesses   map[string]*Type
	sigConformances []ProtocolConformanceRef
}

// NewConformance creates an unchecked conformance of typ to proto.
// resolve, if non-nil, is invoked on first witness access to populate
// the witness tables.
func (c *Context) NewConformance(typ *Type, proto *Decl, resolve func(*ProtocolConformance)) *ProtocolConformance {
	return &ProtocolConformance{
		ctx:           c,
		typ:           typ.Canonical(),
		proto:         proto,
		lazy:          resolve,
		typeWitnesses: make(map[string]*Type),
	}
}

// ConformingType returns the concrete type of the conformance.
func (pc *ProtocolConformance) ConformingType() *Type { return pc.typ }

// Protocol returns the protocol conformed to.
func (pc *ProtocolConformance) Protocol() *Decl { return pc.proto }

// State returns the checking state.
func (pc *ProtocolConformance) State() ConformanceState { return pc.state }

// SetTypeWitness records the witness for an associated type.
func (pc *ProtocolConformance) SetTypeWitness(assoc string, witness *Type) {
	pc.typeWitnesses[assoc] = witness
}

// SetSignatureConformances installs the conformances satisfying the
// protocol's requirement signature, in requirement order, and marks the
// conformance complete.
func (pc *ProtocolConformance) SetSignatureConformances(refs []ProtocolConformanceRef) {
	pc.sigConformances = refs
	pc.state = StateComplete
}

func (pc *ProtocolConformance) force() {
	if pc.state != StateIncomplete || pc.lazy == nil {
		return
	}
	pc.state = StateCheckingTypeWitnesses
	pc.lazy(pc)
	pc.state = StateComplete
}

// TypeWitness returns the type witnessing the named associated type.
// Returns nil, false while witnesses are still being checked, which
// callers treat as no answer rather than an error.
func (pc *ProtocolConformance) TypeWitness(assoc string) (*Type, bool) {
	if pc.state == StateCheckingTypeWitnesses {
		return nil, false
	}
	pc.force()
	w, ok := pc.typeWitnesses[assoc]
	return w, ok
}

// AssociatedConformance returns the conformance satisfying the given
// requirement of the protocol's requirement signature: the conformance
// of the named associated type's witness to proto, or of the
// conforming type itself to an inherited protocol when assoc is "".
func (pc *ProtocolConformance) AssociatedConformance(assoc string, proto *Decl) (ProtocolConformanceRef, bool) {
	if pc.state == StateCheckingTypeWitnesses {
		return ProtocolConformanceRef{}, false
	}
	pc.force()
	for i, req := range pc.proto.RequirementSignature {
		if req.Assoc == assoc && req.Proto == proto {
			if i < len(pc.sigConformances) {
				return pc.sigConformances[i], true
			}
			break
		}
	}
	return ProtocolConformanceRef{}, false
}

func (pc *ProtocolConformance) String() string {
	return fmt.Sprintf("%s: %s", pc.typ, pc.proto.Name)
}

// ProtocolConformanceRef is a tagged reference to a conformance. It is
// invalid, abstract (the conforming type is a type parameter or
// archetype, so only the protocol is known), or concrete.
type ProtocolConformanceRef struct {
	proto    *Decl
	concrete *ProtocolConformance
	valid    bool
}

// InvalidConformance is the marker for a conformance that was required
// but could not be found.
func InvalidConformance() ProtocolConformanceRef { return ProtocolConformanceRef{} }

// AbstractConformance refers to a conformance of an unknown type
// parameter to proto.
func AbstractConformance(proto *Decl) ProtocolConformanceRef {
	return ProtocolConformanceRef{proto: proto, valid: true}
}

// ConcreteConformance wraps a checked conformance.
func ConcreteConformance(pc *ProtocolConformance) ProtocolConformanceRef {
	return ProtocolConformanceRef{proto: pc.proto, concrete: pc, valid: true}
}

// IsInvalid reports whether the reference is the invalid marker.
func (r ProtocolConformanceRef) IsInvalid() bool { return !r.valid }

// IsAbstract reports whether the reference is abstract.
func (r ProtocolConformanceRef) IsAbstract() bool { return r.valid && r.concrete == nil }

// IsConcrete reports whether the reference carries a conformance.
func (r ProtocolConformanceRef) IsConcrete() bool { return r.concrete != nil }

// Protocol returns the protocol the reference is for.
func (r ProtocolConformanceRef) Protocol() *Decl { return r.proto }

// Concrete returns the underlying conformance; nil when abstract or
// invalid.
func (r ProtocolConformanceRef) Concrete() *ProtocolConformance { return r.concrete }

// AssociatedConformance steps the reference one access-path hop: assoc
// names the associated type being projected ("" for an inherited
// protocol hop) and proto the protocol required of it. Abstract
// references stay abstract; references that cannot step yield ok=false.
func (r ProtocolConformanceRef) AssociatedConformance(assoc string, proto *Decl) (ProtocolConformanceRef, bool) {
	if r.IsInvalid() {
		return InvalidConformance(), false
	}
	if r.IsAbstract() {
		return AbstractConformance(proto), true
	}
	return r.concrete.AssociatedConformance(assoc, proto)
}

func (r ProtocolConformanceRef) String() string {
	switch {
	case r.IsInvalid():
		return "invalid-conformance"
	case r.IsAbstract():
		return fmt.Sprintf("abstract(%s)", r.proto.Name)
	default:
		return r.concrete.String()
	}
}

// ConformanceLookupKind discriminates ConformanceLookupResult.
type ConformanceLookupKind int

const (
	// LookupNotApplicable means the queried type cannot conform at all
	// (type parameter with no matching requirement queried against a
	// signature, or a non-nominal type).
	LookupNotApplicable ConformanceLookupKind = iota
	// LookupNoConformance means a definitive answer: the type does not
	// conform.
	LookupNoConformance
	// LookupFound carries the conformance reference.
	LookupFound
)

// ConformanceLookupResult is the outcome of asking whether a type
// conforms to a protocol, keeping "no answer here" distinct from a
// definitive no.
type ConformanceLookupResult struct {
	Kind ConformanceLookupKind
	Ref  ProtocolConformanceRef
}

// FoundConformance wraps a successful lookup.
func FoundConformance(ref ProtocolConformanceRef) ConformanceLookupResult {
	return ConformanceLookupResult{Kind: LookupFound, Ref: ref}
}

// RegisterConformance records typ's conformance to a protocol in the
// module-wide registry.
func (c *Context) RegisterConformance(pc *ProtocolConformance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conformances[conformanceKey(c, pc.typ, pc.proto)] = pc
}

func conformanceKey(c *Context, typ *Type, proto *Decl) string {
	// declIDs access assumes the caller holds c.mu or the id exists.
	id, ok := c.declIDs[proto]
	if !ok {
		c.nextDeclID++
		c.declIDs[proto] = c.nextDeclID
		id = c.nextDeclID
	}
	return fmt.Sprintf("%s/%d", typ.Canonical().key, id)
}

// LookupConformance performs a fresh global lookup of typ's conformance
// to proto in the registry, walking superclasses of class types.
func (c *Context) LookupConformance(typ *Type, proto *Decl) ConformanceLookupResult {
	can := typ.Canonical()
	if can.IsTypeParameter() || can.kind == KindArchetype {
		// Archetypes answer from their protocol bounds.
		if can.kind == KindArchetype {
			for _, p := range can.protocols {
				if p == proto || p.InheritsFrom(proto) {
					return FoundConformance(AbstractConformance(proto))
				}
			}
			if can.env != nil && can.env.sig.ConformsToProtocol(can.iface, proto) {
				return FoundConformance(AbstractConformance(proto))
			}
		}
		return ConformanceLookupResult{Kind: LookupNotApplicable}
	}
	if can.kind == KindExistential {
		for _, p := range can.protocols {
			if p == proto || p.InheritsFrom(proto) {
				return FoundConformance(AbstractConformance(proto))
			}
		}
		return ConformanceLookupResult{Kind: LookupNoConformance}
	}
	if can.kind != KindNominal {
		return ConformanceLookupResult{Kind: LookupNotApplicable}
	}
	for cur := can; cur != nil; {
		c.mu.Lock()
		pc := c.conformances[conformanceKey(c, cur, proto)]
		c.mu.Unlock()
		if pc != nil {
			return FoundConformance(ConcreteConformance(pc))
		}
		if cur.IsClass() {
			sup := cur.Superclass()
			if sup == nil {
				break
			}
			cur = sup.Canonical()
			continue
		}
		break
	}
	return ConformanceLookupResult{Kind: LookupNoConformance}
}
