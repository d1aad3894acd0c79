package types

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Context owns the type arena. Canonical types are interned by
// structural key, so canonical equality is pointer equality. It also
// holds the module-wide conformance registry the substitution
// machinery consults for fresh lookups.
type Context struct {
	mu           sync.Mutex
	interned     map[string]*Type
	declIDs      map[*Decl]int
	nextDeclID   int
	nextEnvID    int
	nextOpenedID int
	conformances map[string]*ProtocolConformance
	errType      *Type
}

// NewContext creates an empty type context.
func NewContext() *Context {
	c := &Context{
		interned:     make(map[string]*Type),
		declIDs:      make(map[*Decl]int),
		conformances: make(map[string]*ProtocolConformance),
	}
	c.errType = c.intern("err", func() *Type {
		return &Type{kind: KindError, ctx: c, hasError: true}
	})
	return c
}

func (c *Context) declID(d *Decl) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.declIDs[d]; ok {
		return id
	}
	c.nextDeclID++
	c.declIDs[d] = c.nextDeclID
	return c.nextDeclID
}

// intern returns the canonical node for key, building it on first use.
// build must not recurse into intern; callers canonicalize children
// beforehand.
func (c *Context) intern(key string, build func() *Type) *Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.interned[key]; t != nil {
		return t
	}
	t := build()
	t.canonical = t
	t.key = key
	c.interned[key] = t
	return t
}

// sugared wraps a non-canonical node around its canonical form.
func sugared(node, canonical *Type) *Type {
	node.canonical = canonical
	return node
}

// ErrorType returns the bare error-marker type.
func (c *Context) ErrorType() *Type { return c.errType }

// ErrorTypeWrapping returns an error marker remembering the type it
// replaced, used to break substitution cycles.
func (c *Context) ErrorTypeWrapping(orig *Type) *Type {
	if orig == nil {
		return c.errType
	}
	co := orig.Canonical()
	return c.intern("err:"+co.key, func() *Type {
		return &Type{kind: KindError, ctx: c, underlying: co, hasError: true}
	})
}

// ModuleType returns the type of a module reference.
func (c *Context) ModuleType(mod *Decl) *Type {
	key := fmt.Sprintf("mod:%d", c.declID(mod))
	return c.intern(key, func() *Type {
		return &Type{kind: KindModule, ctx: c, decl: mod}
	})
}

// GenericParamType returns the interned generic parameter type for the
// given depth and index. The display name is recorded on first use;
// canonical identity depends only on position.
func (c *Context) GenericParamType(depth, index int, name string) *Type {
	key := fmt.Sprintf("gp:%d:%d", depth, index)
	return c.intern(key, func() *Type {
		return &Type{kind: KindGenericParam, ctx: c, depth: depth, index: index, name: name}
	})
}

// NominalType returns a (possibly generic-bound) nominal type.
func (c *Context) NominalType(decl *Decl, parent *Type, args ...*Type) *Type {
	canParent, parentKey, parentErr := canonicalOf(parent)
	canArgs, argKeys, argsErr := canonicalAll(args)
	key := fmt.Sprintf("nom:%d:%s:%s", c.declID(decl), parentKey, argKeys)
	can := c.intern(key, func() *Type {
		return &Type{kind: KindNominal, ctx: c, decl: decl, parent: canParent,
			args: canArgs, hasError: parentErr || argsErr}
	})
	if parent == canParent && sameTypes(args, canArgs) {
		return can
	}
	return sugared(&Type{kind: KindNominal, ctx: c, decl: decl, parent: parent,
		args: args, hasError: parentErr || argsErr}, can)
}

// UnboundGenericType returns a reference to a generic declaration with
// no arguments applied yet.
func (c *Context) UnboundGenericType(decl *Decl, parent *Type) *Type {
	canParent, parentKey, parentErr := canonicalOf(parent)
	key := fmt.Sprintf("ub:%d:%s", c.declID(decl), parentKey)
	can := c.intern(key, func() *Type {
		return &Type{kind: KindUnboundGeneric, ctx: c, decl: decl, parent: canParent, hasError: parentErr}
	})
	if parent == canParent {
		return can
	}
	return sugared(&Type{kind: KindUnboundGeneric, ctx: c, decl: decl, parent: parent, hasError: parentErr}, can)
}

// AliasType returns the sugared form of a typealias reference; its
// canonical form is the canonical expansion.
func (c *Context) AliasType(decl *Decl, underlying *Type, args []*Type) *Type {
	return sugared(&Type{kind: KindAlias, ctx: c, decl: decl, underlying: underlying,
		args: args, hasError: underlying.hasError}, underlying.Canonical())
}

// TupleType returns a tuple of the given element types.
func (c *Context) TupleType(elems ...*Type) *Type {
	canElems, elemKeys, elemsErr := canonicalAll(elems)
	key := "tup:" + elemKeys
	can := c.intern(key, func() *Type {
		return &Type{kind: KindTuple, ctx: c, args: canElems, hasError: elemsErr}
	})
	if sameTypes(elems, canElems) {
		return can
	}
	return sugared(&Type{kind: KindTuple, ctx: c, args: elems, hasError: elemsErr}, can)
}

// FunctionType returns a function type.
func (c *Context) FunctionType(params []Param, result *Type, info FunctionInfo) *Type {
	canParams := make([]Param, len(params))
	var b strings.Builder
	hasErr := result.hasError
	same := true
	for i, p := range params {
		cp := p.Type.Canonical()
		canParams[i] = Param{Label: p.Label, Type: cp}
		if cp != p.Type {
			same = false
		}
		hasErr = hasErr || p.Type.hasError
		fmt.Fprintf(&b, "%s~%s,", p.Label, cp.key)
	}
	canResult := result.Canonical()
	key := fmt.Sprintf("fn:%d:%t:%t:(%s)->%s", info.Convention, info.NoEscape, info.Throws, b.String(), canResult.key)
	can := c.intern(key, func() *Type {
		return &Type{kind: KindFunction, ctx: c, params: canParams, result: canResult,
			fnInfo: info, hasError: hasErr}
	})
	if same && result == canResult {
		return can
	}
	return sugared(&Type{kind: KindFunction, ctx: c, params: params, result: result,
		fnInfo: info, hasError: hasErr}, can)
}

// OptionalType returns the optional wrapping of object.
func (c *Context) OptionalType(object *Type) *Type {
	canObj := object.Canonical()
	key := "opt:" + canObj.key
	can := c.intern(key, func() *Type {
		return &Type{kind: KindOptional, ctx: c, underlying: canObj, hasError: canObj.hasError}
	})
	if object == canObj {
		return can
	}
	return sugared(&Type{kind: KindOptional, ctx: c, underlying: object, hasError: object.hasError}, can)
}

// DependentMemberType returns base.name, optionally bound to a resolved
// associated type declaration.
func (c *Context) DependentMemberType(base *Type, name string, assoc *Decl) *Type {
	canBase := base.Canonical()
	key := "dm:" + canBase.key + ":" + name
	can := c.intern(key, func() *Type {
		return &Type{kind: KindDependentMember, ctx: c, parent: canBase, name: name,
			assoc: assoc, hasError: canBase.hasError}
	})
	if base == canBase {
		return can
	}
	return sugared(&Type{kind: KindDependentMember, ctx: c, parent: base, name: name,
		assoc: assoc, hasError: base.hasError}, can)
}

// ExistentialType returns the existential over the given protocols; an
// empty list is the Any type.
func (c *Context) ExistentialType(protocols ...*Decl) *Type {
	ids := make([]int, len(protocols))
	for i, p := range protocols {
		ids[i] = c.declID(p)
	}
	ordered := make([]*Decl, len(protocols))
	copy(ordered, protocols)
	sort.Sort(&protoSort{ids: ids, decls: ordered})
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%d,", id)
	}
	key := "ex:" + b.String()
	return c.intern(key, func() *Type {
		return &Type{kind: KindExistential, ctx: c, protocols: ordered}
	})
}

// ProtocolType returns the existential of a single protocol.
func (c *Context) ProtocolType(proto *Decl) *Type { return c.ExistentialType(proto) }

type protoSort struct {
	ids   []int
	decls []*Decl
}

func (s *protoSort) Len() int           { return len(s.ids) }
func (s *protoSort) Less(i, j int) bool { return s.ids[i] < s.ids[j] }
func (s *protoSort) Swap(i, j int) {
	s.ids[i], s.ids[j] = s.ids[j], s.ids[i]
	s.decls[i], s.decls[j] = s.decls[j], s.decls[i]
}

func canonicalOf(t *Type) (can *Type, key string, hasErr bool) {
	if t == nil {
		return nil, "_", false
	}
	can = t.Canonical()
	return can, can.key, t.hasError
}

func canonicalAll(ts []*Type) (cans []*Type, keys string, hasErr bool) {
	if len(ts) == 0 {
		return nil, "", false
	}
	cans = make([]*Type, len(ts))
	var b strings.Builder
	for i, t := range ts {
		cans[i] = t.Canonical()
		hasErr = hasErr || t.hasError
		b.WriteString(cans[i].key)
		b.WriteByte(',')
	}
	return cans, b.String(), hasErr
}

func sameTypes(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GenericEnvironment binds a generic signature's parameters to
// archetypes, the contextual representation used inside the body of a
// generic declaration.
type GenericEnvironment struct {
	ctx *Context
	sig *GenericSignature
	id  int
}

// NewGenericEnvironment creates the archetype environment of sig.
func (c *Context) NewGenericEnvironment(sig *GenericSignature) *GenericEnvironment {
	c.mu.Lock()
	c.nextEnvID++
	id := c.nextEnvID
	c.mu.Unlock()
	return &GenericEnvironment{ctx: c, sig: sig, id: id}
}

// Signature returns the environment's generic signature.
func (e *GenericEnvironment) Signature() *GenericSignature { return e.sig }

func (e *GenericEnvironment) archetype(iface *Type) *Type {
	canIface := iface.Canonical()
	key := fmt.Sprintf("arch:%d:%s", e.id, canIface.key)
	return e.ctx.intern(key, func() *Type {
		return &Type{kind: KindArchetype, ctx: e.ctx, iface: canIface, env: e}
	})
}

// MapTypeIntoContext replaces generic parameters and dependent members
// with this environment's archetypes.
func (e *GenericEnvironment) MapTypeIntoContext(t *Type) *Type {
	return t.SubstWithFns(func(sub *Type) *Type {
		if sub.kind == KindGenericParam || sub.kind == KindDependentMember {
			return e.archetype(sub)
		}
		return nil
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		return AbstractConformance(proto), true
	})
}

// MapTypeOutOfContext replaces this environment's archetypes with their
// interface forms.
func (e *GenericEnvironment) MapTypeOutOfContext(t *Type) *Type {
	return t.SubstWithFns(func(sub *Type) *Type {
		if sub.kind == KindArchetype && sub.env == e {
			return sub.iface
		}
		return nil
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		return AbstractConformance(proto), true
	})
}

// OpenExistential produces a fresh opened-existential archetype. Opened
// archetypes have no interface form and never substitute.
func (c *Context) OpenExistential(existential *Type) *Type {
	c.mu.Lock()
	c.nextOpenedID++
	id := c.nextOpenedID
	c.mu.Unlock()
	key := fmt.Sprintf("opened:%d", id)
	protos := existential.Protocols()
	return c.intern(key, func() *Type {
		return &Type{kind: KindArchetype, ctx: c, openedID: id, protocols: protos}
	})
}
