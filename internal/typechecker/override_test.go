package typechecker

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
	ctx     *types.Context
	mod     *types.Decl
	diags   *diagnostics.Manager
	checker *OverrideChecker

	intType    *types.Type
	stringType *types.Type
	base       *types.Decl
	derived    *types.Decl
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	w := &testWorld{
		ctx:   types.NewContext(),
		mod:   types.NewModule("main"),
		diags: diagnostics.NewManager(),
	}
	w.checker = NewOverrideChecker(w.ctx, w.diags)

	intDecl := w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Int"), Access: types.AccessPublic})
	stringDecl := w.mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("String"), Access: types.AccessPublic})
	w.intType = w.ctx.NominalType(intDecl, nil)
	w.stringType = w.ctx.NominalType(stringDecl, nil)

	w.base = w.addClass("Base", nil)
	w.derived = w.addClass("Derived", w.base)
	return w
}

// addClass adds a class to the module, chained under super when given.
func (w *testWorld) addClass(name string, super *types.Decl) *types.Decl {
	class := w.mod.AddMember(&types.Decl{
		Kind:   types.DeclClass,
		Name:   types.SimpleName(name),
		Access: types.AccessOpen,
	})
	if super != nil {
		class.Superclass = w.ctx.NominalType(super, nil)
	}
	return class
}

func (w *testWorld) addVar(class *types.Decl, name string, typ *types.Type, flags types.DeclFlags) *types.Decl {
	return class.AddMember(&types.Decl{
		Kind:          types.DeclVar,
		Name:          types.SimpleName(name),
		Span:          span(len(class.Members) + 1),
		Access:        types.AccessOpen,
		Flags:         flags,
		InterfaceType: typ,
	})
}

func (w *testWorld) addFunc(class *types.Decl, name types.Name, typ *types.Type, flags types.DeclFlags) *types.Decl {
	return class.AddMember(&types.Decl{
		Kind:          types.DeclFunc,
		Name:          name,
		Span:          span(len(class.Members) + 1),
		Access:        types.AccessOpen,
		Flags:         flags,
		InterfaceType: typ,
	})
}

func (w *testWorld) firstError() *diagnostics.Diagnostic {
	for _, d := range w.diags.Diagnostics() {
		if d.Level == diagnostics.Error {
			return d
		}
	}
	return nil
}

func mustAvail(t *testing.T, introduced string) *types.AvailabilityRange {
	t.Helper()
	r, err := types.ParseAvailability(introduced, "")
	if err != nil {
		t.Fatalf("ParseAvailability(%q): %v", introduced, err)
	}
	return r
}

func TestPerfectMatchOverride(t *testing.T) {
	w := newTestWorld(t)
	base := w.addVar(w.base, "count", w.intType, types.DeclFlags{})
	over := w.addVar(w.derived, "count", w.intType, types.DeclFlags{Override: true})

	got := w.checker.CheckOverride(over)
	if got != base {
		t.Fatalf("CheckOverride = %v, want the base member", got)
	}
	if w.diags.HasErrors() || w.diags.WarningCount() != 0 {
		t.Errorf("clean override produced diagnostics: %v", w.diags.Diagnostics())
	}
}

func TestOverrideAcrossGrandparent(t *testing.T) {
	w := newTestWorld(t)
	grandchild := w.addClass("Grandchild", w.derived)
	base := w.addVar(w.base, "count", w.intType, types.DeclFlags{})
	over := w.addVar(grandchild, "count", w.intType, types.DeclFlags{Override: true})

	if got := w.checker.CheckOverride(over); got != base {
		t.Fatalf("override two levels up not found, got %v", got)
	}
}

// An exact candidate must both prune the approximate one and stop the
// search at the first attempt: no optionality warning may be emitted
// even though a wrapped sibling would match a later attempt.
func TestExactMatchPrunesAndStopsSearch(t *testing.T) {
	w := newTestWorld(t)
	exact := w.addVar(w.base, "value", w.intType, types.DeclFlags{})
	w.addVar(w.base, "value", w.ctx.OptionalType(w.intType), types.DeclFlags{})
	over := w.addVar(w.derived, "value", w.intType, types.DeclFlags{Override: true})

	got := w.checker.CheckOverride(over)
	if got != exact {
		t.Fatalf("CheckOverride = %v, want the exact candidate", got)
	}
	if w.diags.HasErrors() {
		t.Errorf("exact candidate reported as ambiguous: %s", w.firstError().Message)
	}
	if w.diags.WarningCount() != 0 {
		t.Errorf("optionality warning emitted despite exact match at the first attempt")
	}
}

func TestOptionalMismatchRequiresIntent(t *testing.T) {
	w := newTestWorld(t)
	w.addVar(w.base, "label", w.stringType, types.DeclFlags{})
	over := w.addVar(w.derived, "label", w.ctx.OptionalType(w.stringType), types.DeclFlags{})

	got := w.checker.CheckOverride(over)
	if got != nil {
		t.Fatalf("optional wrapping without intent produced an override of %s", got.Name)
	}
	d := w.firstError()
	if d == nil {
		t.Fatalf("near miss produced no diagnostic")
	}
	if !strings.Contains(d.Message, "do not match") {
		t.Errorf("near-miss diagnostic = %q", d.Message)
	}
}

func TestOptionalMismatchWithIntent(t *testing.T) {
	w := newTestWorld(t)
	base := w.addVar(w.base, "label", w.stringType, types.DeclFlags{})
	over := w.addVar(w.derived, "label", w.ctx.OptionalType(w.stringType), types.DeclFlags{Override: true})

	got := w.checker.CheckOverride(over)
	if got != base {
		t.Fatalf("CheckOverride = %v, want the base member", got)
	}
	if w.diags.HasErrors() {
		t.Errorf("optionality mismatch with intent must warn, not error: %s", w.firstError().Message)
	}
	if w.diags.WarningCount() != 1 {
		t.Errorf("WarningCount = %d, want 1", w.diags.WarningCount())
	}
}

func TestArgLabelMismatchFixIt(t *testing.T) {
	w := newTestWorld(t)
	fnType := w.ctx.FunctionType(
		[]types.Param{{Type: w.intType}, {Type: w.intType}},
		w.intType, types.FunctionInfo{})
	base := w.addFunc(w.base, types.FuncName("insert", "item", "at"), fnType, types.DeclFlags{})
	over := w.addFunc(w.derived, types.FuncName("insert", "item", "position"), fnType,
		types.DeclFlags{Override: true})

	got := w.checker.CheckOverride(over)
	if got != base {
		t.Fatalf("CheckOverride = %v, want the base member", got)
	}
	d := w.firstError()
	if d == nil {
		t.Fatalf("label mismatch produced no diagnostic")
	}
	var replacement string
	for _, f := range d.FixIts {
		replacement = f.Replacement
	}
	if replacement != "insert(item:at:)" {
		t.Errorf("fix-it replacement = %q, want the base member's labels", replacement)
	}
}

func TestAmbiguousOverride(t *testing.T) {
	w := newTestWorld(t)
	w.addVar(w.base, "count", w.intType, types.DeclFlags{})
	w.addVar(w.base, "count", w.intType, types.DeclFlags{})
	over := w.addVar(w.derived, "count", w.intType, types.DeclFlags{Override: true})

	if got := w.checker.CheckOverride(over); got != nil {
		t.Fatalf("ambiguous override resolved to %s", got.Name)
	}
	d := w.firstError()
	if d == nil || !strings.Contains(d.Message, "ambiguously") {
		t.Fatalf("no ambiguity diagnostic, got %v", d)
	}
	if len(d.Notes) != 2 {
		t.Errorf("ambiguity diagnostic carries %d notes, want one per candidate", len(d.Notes))
	}
}

func TestFunctionParameterContravariance(t *testing.T) {
	w := newTestWorld(t)
	sub := w.addClass("Sub", w.base)
	baseType := w.ctx.NominalType(w.base, nil)
	subType := w.ctx.NominalType(sub, nil)

	// The base member takes the subclass; the override widens the
	// parameter to the superclass, which is legal.
	baseFn := w.ctx.FunctionType([]types.Param{{Type: subType}}, w.intType, types.FunctionInfo{})
	overFn := w.ctx.FunctionType([]types.Param{{Type: baseType}}, w.intType, types.FunctionInfo{})
	baseDecl := w.addFunc(w.base, types.FuncName("feed", "animal"), baseFn, types.DeclFlags{})
	over := w.addFunc(w.derived, types.FuncName("feed", "animal"), overFn, types.DeclFlags{Override: true})

	if got := w.checker.CheckOverride(over); got != baseDecl {
		t.Fatalf("contravariant parameter rejected, got %v", got)
	}

	// The reverse direction narrows the parameter and must not match.
	narrowed := w.addFunc(w.derived, types.FuncName("fetch", "animal"), baseFn, types.DeclFlags{})
	w.addFunc(w.base, types.FuncName("fetch", "animal"), overFn, types.DeclFlags{})
	if got := w.checker.CheckOverride(narrowed); got != nil {
		t.Errorf("narrowed parameter accepted as override of %s", got.Name)
	}
}

func TestCovariantResultOverride(t *testing.T) {
	w := newTestWorld(t)
	baseType := w.ctx.NominalType(w.base, nil)
	derivedType := w.ctx.NominalType(w.derived, nil)

	baseFn := w.ctx.FunctionType(nil, baseType, types.FunctionInfo{})
	overFn := w.ctx.FunctionType(nil, derivedType, types.FunctionInfo{})
	baseDecl := w.addFunc(w.base, types.FuncName("clone", "deep"), baseFn, types.DeclFlags{})
	over := w.addFunc(w.derived, types.FuncName("clone", "deep"), overFn, types.DeclFlags{Override: true})

	if got := w.checker.CheckOverride(over); got != baseDecl {
		t.Fatalf("covariant result rejected, got %v", got)
	}
}

func TestOverrideAccessTooNarrow(t *testing.T) {
	w := newTestWorld(t)
	w.addVar(w.base, "count", w.intType, types.DeclFlags{})
	over := w.addVar(w.derived, "count", w.intType, types.DeclFlags{Override: true})
	over.Access = types.AccessFilePrivate

	w.checker.CheckOverride(over)
	d := w.firstError()
	if d == nil || d.Category != diagnostics.CategoryOverrideAccess {
		t.Fatalf("narrow access not diagnosed, got %v", d)
	}
}

func TestFinalOverrideMayBePublic(t *testing.T) {
	w := newTestWorld(t)
	w.addVar(w.base, "count", w.intType, types.DeclFlags{})
	over := w.addVar(w.derived, "count", w.intType, types.DeclFlags{Override: true, Final: true})
	over.Access = types.AccessPublic

	w.checker.CheckOverride(over)
	if w.diags.HasErrors() {
		t.Errorf("final override at public access diagnosed: %s", w.firstError().Message)
	}
}

func TestCannotOverrideImmutableStorage(t *testing.T) {
	w := newTestWorld(t)
	w.addVar(w.base, "id", w.intType, types.DeclFlags{Let: true})
	over := w.addVar(w.derived, "id", w.intType, types.DeclFlags{Override: true})

	w.checker.CheckOverride(over)
	d := w.firstError()
	if d == nil || d.Category != diagnostics.CategoryOverrideMutability {
		t.Fatalf("immutable storage override not diagnosed, got %v", d)
	}
}

func TestSettableOverrideMustStaySettable(t *testing.T) {
	w := newTestWorld(t)
	w.addVar(w.base, "count", w.intType, types.DeclFlags{Settable: true})
	over := w.addVar(w.derived, "count", w.intType, types.DeclFlags{Override: true})

	w.checker.CheckOverride(over)
	d := w.firstError()
	if d == nil || d.Category != diagnostics.CategoryOverrideMutability {
		t.Fatalf("read-only override of settable member not diagnosed, got %v", d)
	}
}

func TestSettableOverrideRejectsCovariance(t *testing.T) {
	w := newTestWorld(t)
	baseType := w.ctx.NominalType(w.base, nil)
	derivedType := w.ctx.NominalType(w.derived, nil)
	w.addVar(w.base, "delegate", baseType, types.DeclFlags{Settable: true})
	over := w.addVar(w.derived, "delegate", derivedType, types.DeclFlags{Override: true, Settable: true})

	w.checker.CheckOverride(over)
	d := w.firstError()
	if d == nil || d.Category != diagnostics.CategoryOverrideMutability {
		t.Fatalf("covariant settable override not diagnosed, got %v", d)
	}
	if !strings.Contains(d.Message, "covariant") {
		t.Errorf("diagnostic = %q", d.Message)
	}
}

func TestOverrideCannotAddThrows(t *testing.T) {
	w := newTestWorld(t)
	quiet := w.ctx.FunctionType(nil, w.intType, types.FunctionInfo{})
	loud := w.ctx.FunctionType(nil, w.intType, types.FunctionInfo{Throws: true})
	base := w.addFunc(w.base, types.FuncName("load", "from"), quiet, types.DeclFlags{})
	over := w.addFunc(w.derived, types.FuncName("load", "from"), loud,
		types.DeclFlags{Override: true, Throws: true})

	// Throwing-ness is stripped for matching, so the member still
	// overrides; the validation pass then rejects the added throws.
	if got := w.checker.CheckOverride(over); got != base {
		t.Fatalf("CheckOverride = %v, want the base member", got)
	}
	d := w.firstError()
	if d == nil || d.Category != diagnostics.CategoryOverrideThrows {
		t.Fatalf("added throws not diagnosed, got %v", d)
	}
}

func TestOverrideMustCoverBaseAvailability(t *testing.T) {
	w := newTestWorld(t)
	base := w.addVar(w.base, "count", w.intType, types.DeclFlags{})
	base.Availability = mustAvail(t, "1.0.0")
	over := w.addVar(w.derived, "count", w.intType, types.DeclFlags{Override: true})
	over.Availability = mustAvail(t, "2.0.0")

	w.checker.CheckOverride(over)
	d := w.firstError()
	if d == nil || d.Category != diagnostics.CategoryOverrideAvailability {
		t.Fatalf("narrowed availability not diagnosed, got %v", d)
	}
}

func TestDuplicateValidationSuppressed(t *testing.T) {
	w := newTestWorld(t)
	w.addVar(w.base, "id", w.intType, types.DeclFlags{Let: true})
	over := w.addVar(w.derived, "id", w.intType, types.DeclFlags{Override: true})

	w.checker.CheckOverride(over)
	w.checker.CheckOverride(over)
	if w.diags.ErrorCount() != 1 {
		t.Errorf("ErrorCount = %d after repeated validation, want 1", w.diags.ErrorCount())
	}
}

func TestDynamicOnlyMembersAreSkipped(t *testing.T) {
	w := newTestWorld(t)
	w.addVar(w.base, "count", w.intType, types.DeclFlags{DynamicOnly: true})
	over := w.addVar(w.derived, "count", w.intType, types.DeclFlags{Override: true})

	if got := w.checker.CheckOverride(over); got != nil {
		t.Fatalf("dynamic-only member statically overridden: %s", got.Name)
	}
	d := w.firstError()
	if d == nil || !strings.Contains(d.Message, "does not override") {
		t.Fatalf("missing-override diagnostic, got %v", d)
	}
}

func TestOverrideIntentWithoutSuperclass(t *testing.T) {
	w := newTestWorld(t)
	over := w.addVar(w.base, "count", w.intType, types.DeclFlags{Override: true})

	if got := w.checker.CheckOverride(over); got != nil {
		t.Fatalf("rootless class produced an override of %s", got.Name)
	}
	d := w.firstError()
	if d == nil || !strings.Contains(d.Message, "no superclass") {
		t.Fatalf("missing no-superclass diagnostic, got %v", d)
	}
}

func TestStaticMismatchIsNotAnOverride(t *testing.T) {
	w := newTestWorld(t)
	w.addVar(w.base, "count", w.intType, types.DeclFlags{Static: true})
	over := w.addVar(w.derived, "count", w.intType, types.DeclFlags{Override: true})

	if got := w.checker.CheckOverride(over); got != nil {
		t.Fatalf("instance member matched a static base member: %s", got.Name)
	}
}
