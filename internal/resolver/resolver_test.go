package resolver

import (
	"strings"
	"testing"

	"github.com/vela-lang/vela/internal/diagnostics"
	"github.com/vela-lang/vela/internal/position"
	"github.com/vela-lang/vela/internal/types"
)

func span(line int) position.Span {
	return position.NewSpan(
		position.Position{Filename: "test.vl", Line: line, Column: 1, Offset: line * 100},
		position.Position{Filename: "test.vl", Line: line, Column: 10, Offset: line*100 + 9},
	)
}

type testWorld struct {
	ctx      *types.Context
	mod      *types.Decl
	diags    *diagnostics.Manager
	resolver *Resolver

	intDecl    *types.Decl
	intType    *types.Type
	stringDecl *types.Decl
	stringType *types.Type
	equatable  *types.Decl
	boxDecl    *types.Decl
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	w := &testWorld{
		ctx:   types.NewContext(),
		mod:   types.NewModule("main"),
		diags: diagnostics.NewManager(),
	}
	w.resolver = New(w.ctx, w.diags, NewScopeLookup(w.ctx))

	w.intDecl = w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Int"), Access: types.AccessPublic})
	w.stringDecl = w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("String"), Access: types.AccessPublic})
	w.intType = w.ctx.NominalType(w.intDecl, nil)
	w.stringType = w.ctx.NominalType(w.stringDecl, nil)

	w.equatable = w.mod.AddMember(&types.Decl{Kind: types.DeclProtocol, Name: types.SimpleName("Equatable"), Access: types.AccessPublic})

	w.boxDecl = w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Box"), Access: types.AccessPublic})
	tp := &types.Decl{Kind: types.DeclGenericParam, Name: types.SimpleName("T"), Depth: 0, Index: 0}
	w.boxDecl.GenericParams = []*types.Decl{tp}
	tParam := w.ctx.GenericParamType(0, 0, "T")
	w.boxDecl.Signature = w.ctx.NewGenericSignature([]*types.Type{tParam},
		[]types.Requirement{{Kind: types.ReqConformance, Subject: tParam, Proto: w.equatable}})

	pc := w.ctx.NewConformance(w.intType, w.equatable, nil)
	pc.SetSignatureConformances(nil)
	w.ctx.RegisterConformance(pc)
	return w
}

func (w *testWorld) firstError() string {
	for _, d := range w.diags.Diagnostics() {
		if d.Level == diagnostics.Error {
			return d.Message
		}
	}
	return ""
}

func TestResolveSimpleIdent(t *testing.T) {
	w := newTestWorld(t)
	got := w.resolver.Resolve(Ident("Int", span(1)), w.mod, 0)
	if !got.IsEqual(w.intType) {
		t.Fatalf("Resolve(Int) = %s, want Int", got)
	}
	if w.diags.HasErrors() {
		t.Errorf("unexpected diagnostics: %s", w.firstError())
	}
}

func TestResolveUnknownIdent(t *testing.T) {
	w := newTestWorld(t)
	got := w.resolver.Resolve(Ident("Nonesuch", span(1)), w.mod, 0)
	if !got.IsError() {
		t.Fatalf("unknown identifier resolved to %s", got)
	}
	if !w.diags.HasErrors() {
		t.Errorf("unknown identifier produced no diagnostic")
	}
	if msg := w.firstError(); !strings.Contains(msg, "Nonesuch") {
		t.Errorf("diagnostic %q does not name the identifier", msg)
	}
}

func TestRemappedIdentRemediation(t *testing.T) {
	w := newTestWorld(t)
	w.resolver.AddRemapping("INTEGER", "Int")

	got := w.resolver.Resolve(Ident("integer", span(2)), w.mod, 0)
	if !got.IsEqual(w.intType) {
		t.Fatalf("remapped identifier resolved to %s, want Int", got)
	}
	if !w.diags.HasErrors() {
		t.Fatalf("remediation must still diagnose the misspelling")
	}
	var found bool
	for _, d := range w.diags.Diagnostics() {
		for _, f := range d.FixIts {
			if f.Replacement == "Int" {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("remediation diagnostic carries no fix-it")
	}
}

func TestGenericApplication(t *testing.T) {
	w := newTestWorld(t)
	got := w.resolver.Resolve(Ident("Box", span(1), Ident("Int", span(1))), w.mod, 0)
	if got.IsError() {
		t.Fatalf("Box<Int> failed: %s", w.firstError())
	}
	if got.TypeDecl() != w.boxDecl || !got.Args()[0].IsEqual(w.intType) {
		t.Errorf("Box<Int> = %s", got)
	}
}

func TestGenericArityMismatch(t *testing.T) {
	w := newTestWorld(t)
	got := w.resolver.Resolve(
		Ident("Box", span(1), Ident("Int", span(1)), Ident("String", span(1))), w.mod, 0)
	if !got.IsError() {
		t.Fatalf("arity mismatch resolved to %s", got)
	}
	if msg := w.firstError(); !strings.Contains(msg, "takes 1 argument") {
		t.Errorf("arity diagnostic = %q", msg)
	}
}

func TestGenericConstraintFailure(t *testing.T) {
	w := newTestWorld(t)
	// String does not conform to Equatable here.
	got := w.resolver.Resolve(Ident("Box", span(1), Ident("String", span(1))), w.mod, 0)
	if !got.IsError() {
		t.Fatalf("constraint violation resolved to %s", got)
	}
	if msg := w.firstError(); !strings.Contains(msg, "does not conform") {
		t.Errorf("constraint diagnostic = %q", msg)
	}
}

func TestGenericArgumentsBestEffort(t *testing.T) {
	w := newTestWorld(t)
	twoDecl := w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Pair"), Access: types.AccessPublic})
	a := &types.Decl{Kind: types.DeclGenericParam, Name: types.SimpleName("A"), Depth: 0, Index: 0}
	b := &types.Decl{Kind: types.DeclGenericParam, Name: types.SimpleName("B"), Depth: 0, Index: 1}
	twoDecl.GenericParams = []*types.Decl{a, b}
	twoDecl.Signature = w.ctx.NewGenericSignature(
		[]*types.Type{w.ctx.GenericParamType(0, 0, "A"), w.ctx.GenericParamType(0, 1, "B")}, nil)

	// Both arguments are bogus; both must be diagnosed.
	got := w.resolver.Resolve(
		Ident("Pair", span(1), Ident("Bad1", span(2)), Ident("Bad2", span(3))), w.mod, 0)
	if !got.IsError() {
		t.Fatalf("resolved to %s", got)
	}
	if w.diags.ErrorCount() < 2 {
		t.Errorf("sibling argument not checked after first failure: %d error(s)", w.diags.ErrorCount())
	}
}

func TestUnboundGeneric(t *testing.T) {
	w := newTestWorld(t)

	got := w.resolver.Resolve(Ident("Box", span(1)), w.mod, 0)
	if !got.IsError() {
		t.Fatalf("unbound generic without permission resolved to %s", got)
	}

	w2 := newTestWorld(t)
	got = w2.resolver.Resolve(Ident("Box", span(1)), w2.mod, AllowUnboundGeneric)
	if got.Kind() != types.KindUnboundGeneric {
		t.Errorf("with permission = %s, want unbound generic", got.Kind())
	}
	if w2.diags.HasErrors() {
		t.Errorf("unexpected diagnostic: %s", w2.firstError())
	}
}

func TestQualifiedMemberChain(t *testing.T) {
	w := newTestWorld(t)
	outer := w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Outer"), Access: types.AccessPublic})
	outer.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Inner"), Access: types.AccessPublic})

	repr := &IdentRepr{
		Components: []Component{
			{Name: "Outer", NameSpan: span(1)},
			{Name: "Inner", NameSpan: span(1)},
		},
		SourceSpan: span(1),
	}
	got := w.resolver.Resolve(repr, w.mod, 0)
	if got.IsError() {
		t.Fatalf("Outer.Inner failed: %s", w.firstError())
	}
	if got.TypeDecl() == nil || got.TypeDecl().Name.Base != "Inner" {
		t.Errorf("Outer.Inner = %s", got)
	}
	if got.Parent() == nil || got.Parent().TypeDecl() != outer {
		t.Errorf("Inner lost its parent type")
	}
}

func TestMemberTypealiasSubstitutesParentArguments(t *testing.T) {
	w := newTestWorld(t)
	// Box<T> { typealias Item = T } ; Box<Int>.Item == Int
	alias := &types.Decl{
		Kind:       types.DeclTypeAlias,
		Name:       types.SimpleName("Item"),
		Access:     types.AccessPublic,
		Underlying: w.ctx.GenericParamType(0, 0, "T"),
	}
	w.boxDecl.AddMember(alias)

	repr := &IdentRepr{
		Components: []Component{
			{Name: "Box", NameSpan: span(1), GenericArgs: []TypeRepr{Ident("Int", span(1))}},
			{Name: "Item", NameSpan: span(1)},
		},
		SourceSpan: span(1),
	}
	got := w.resolver.Resolve(repr, w.mod, 0)
	if got.IsError() {
		t.Fatalf("Box<Int>.Item failed: %s", w.firstError())
	}
	if !got.IsEqual(w.intType) {
		t.Errorf("Box<Int>.Item = %s, want Int", got)
	}
}

func TestAmbiguityAndCollapse(t *testing.T) {
	w := newTestWorld(t)
	// Two typealiases of the same name resolving to the same type
	// collapse silently.
	w.mod.AddMember(&types.Decl{
		Kind: types.DeclTypeAlias, Name: types.SimpleName("Same"),
		Access: types.AccessPublic, Underlying: w.intType,
	})
	inner := w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Holder"), Access: types.AccessPublic})
	inner.AddMember(&types.Decl{
		Kind: types.DeclTypeAlias, Name: types.SimpleName("Same"),
		Access: types.AccessPublic, Underlying: w.intType,
	})

	got := w.resolver.Resolve(Ident("Same", span(1)), inner, 0)
	if got.IsError() || w.diags.HasErrors() {
		t.Fatalf("identical candidates must collapse, got %s (%s)", got, w.firstError())
	}
	if !got.IsEqual(w.intType) {
		t.Errorf("collapsed type = %s, want Int", got)
	}

	// Different resolutions of the same name are ambiguous.
	w2 := newTestWorld(t)
	w2.mod.AddMember(&types.Decl{
		Kind: types.DeclTypeAlias, Name: types.SimpleName("Clash"),
		Access: types.AccessPublic, Underlying: w2.intType,
	})
	holder := w2.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Holder"), Access: types.AccessPublic})
	holder.AddMember(&types.Decl{
		Kind: types.DeclTypeAlias, Name: types.SimpleName("Clash"),
		Access: types.AccessPublic, Underlying: w2.stringType,
	})

	got = w2.resolver.Resolve(Ident("Clash", span(1)), holder, 0)
	if !got.IsError() {
		t.Fatalf("ambiguous name resolved to %s", got)
	}
	if msg := w2.firstError(); !strings.Contains(msg, "ambiguous") {
		t.Errorf("ambiguity diagnostic = %q", msg)
	}
}

func TestInaccessibleMember(t *testing.T) {
	w := newTestWorld(t)
	holder := w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Holder"), Access: types.AccessPublic})
	holder.AddMember(&types.Decl{
		Kind: types.DeclTypeAlias, Name: types.SimpleName("Secret"),
		Access: types.AccessPrivate, Underlying: w.intType,
	})
	other := w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Other"), Access: types.AccessPublic})

	repr := &IdentRepr{
		Components: []Component{
			{Name: "Holder", NameSpan: span(1)},
			{Name: "Secret", NameSpan: span(1)},
		},
		SourceSpan: span(1),
	}
	got := w.resolver.Resolve(repr, other, 0)
	if !got.IsError() {
		t.Fatalf("private member resolved from outside to %s", got)
	}
	if msg := w.firstError(); !strings.Contains(msg, "inaccessible") {
		t.Errorf("diagnostic = %q, want inaccessible", msg)
	}

	// From inside the owner it resolves fine.
	w.diags = diagnostics.NewManager()
	w.resolver = New(w.ctx, w.diags, NewScopeLookup(w.ctx))
	got = w.resolver.Resolve(repr, holder, 0)
	if got.IsError() {
		t.Errorf("private member not visible to its own nominal: %s", w.firstError())
	}
}

func TestFunctionAttributes(t *testing.T) {
	w := newTestWorld(t)
	fn := &FunctionRepr{
		Params:     []ParamRepr{{Type: Ident("Int", span(1))}},
		Result:     Ident("Int", span(1)),
		SourceSpan: span(1),
	}
	got := w.resolver.Resolve(&AttributedRepr{
		Attrs:      []Attr{{Kind: AttrConventionC, AttrSpan: span(1)}},
		Base:       fn,
		SourceSpan: span(1),
	}, w.mod, 0)
	if got.FuncInfo().Convention != types.ConventionC {
		t.Errorf("convention = %s, want c", got.FuncInfo().Convention)
	}

	// The same attribute on a non-function type is diagnosed and stripped.
	got = w.resolver.Resolve(&AttributedRepr{
		Attrs:      []Attr{{Kind: AttrConventionC, AttrSpan: span(2)}},
		Base:       Ident("Int", span(2)),
		SourceSpan: span(2),
	}, w.mod, 0)
	if !got.IsEqual(w.intType) {
		t.Errorf("stripped attribute changed the type to %s", got)
	}
	if !w.diags.HasErrors() {
		t.Errorf("illegal attribute not diagnosed")
	}
}

func TestParamPositionNoEscapeDefault(t *testing.T) {
	w := newTestWorld(t)
	fn := &FunctionRepr{Result: Ident("Int", span(1)), SourceSpan: span(1)}

	plain := w.resolver.Resolve(fn, w.mod, 0)
	if plain.FuncInfo().NoEscape {
		t.Errorf("non-parameter position defaulted to noescape")
	}

	inParam := w.resolver.Resolve(fn, w.mod, ParamPosition)
	if !inParam.Canonical().FuncInfo().NoEscape {
		t.Errorf("parameter position function not defaulted to noescape")
	}

	escaping := w.resolver.Resolve(&AttributedRepr{
		Attrs:      []Attr{{Kind: AttrEscaping, AttrSpan: span(1)}},
		Base:       fn,
		SourceSpan: span(1),
	}, w.mod, ParamPosition)
	if escaping.Canonical().FuncInfo().NoEscape {
		t.Errorf("@escaping did not suppress the noescape default")
	}
}

func TestNoEscapeDefaultReappliesThroughAlias(t *testing.T) {
	w := newTestWorld(t)
	fnType := w.ctx.FunctionType(nil, w.intType, types.FunctionInfo{})
	w.mod.AddMember(&types.Decl{
		Kind: types.DeclTypeAlias, Name: types.SimpleName("Thunk"),
		Access: types.AccessPublic, Underlying: fnType,
	})

	got := w.resolver.Resolve(Ident("Thunk", span(1)), w.mod, ParamPosition)
	if !got.Canonical().FuncInfo().NoEscape {
		t.Fatalf("alias sugar hid the function type from the noescape default")
	}
}

func TestSelfInsideNominal(t *testing.T) {
	w := newTestWorld(t)
	holder := w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Holder"), Access: types.AccessPublic})

	got := w.resolver.Resolve(Ident("Self", span(1)), holder, 0)
	if got.IsError() {
		t.Fatalf("Self inside a nominal failed: %s", w.firstError())
	}
	if got.TypeDecl() != holder {
		t.Errorf("Self = %s, want Holder", got)
	}
	if w.diags.WarningCount() == 0 {
		t.Errorf("Self-in-nominal should warn with a fix-it")
	}

	proto := w.mod.AddMember(&types.Decl{Kind: types.DeclProtocol, Name: types.SimpleName("P"), Access: types.AccessPublic})
	got = w.resolver.Resolve(Ident("Self", span(2)), proto, 0)
	if got.Kind() != types.KindGenericParam {
		t.Errorf("Self inside a protocol = %s, want the Self parameter", got.Kind())
	}
}

func TestLoweredContextRejectsUnbound(t *testing.T) {
	w := newTestWorld(t)
	got := w.resolver.Resolve(Ident("Box", span(1)), w.mod, AllowUnboundGeneric|LoweredContext)
	if !got.IsError() {
		t.Fatalf("unbound generic in lowered context resolved to %s", got)
	}
	if msg := w.firstError(); !strings.Contains(msg, "lowered") {
		t.Errorf("diagnostic = %q", msg)
	}
}

func TestGenericParamVisibleInContext(t *testing.T) {
	w := newTestWorld(t)
	// Resolving "T" inside Box's own context names the parameter.
	got := w.resolver.Resolve(Ident("T", span(1)), w.boxDecl, 0)
	if got.Kind() != types.KindGenericParam {
		t.Fatalf("T inside Box = %s, want generic param", got.Kind())
	}
	if got.ParamKey() != (types.GenericParamKey{Depth: 0, Index: 0}) {
		t.Errorf("T key = %v", got.ParamKey())
	}
}
