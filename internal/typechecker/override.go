// Package typechecker checks declaration-level semantics, in
// particular whether a class member legally overrides a superclass
// member.
package typechecker

import (
	"github.com/vela-lang/vela/internal/diagnostics"
	"github.com/vela-lang/vela/internal/types"
)

// MatchAttempt is one rung of the override matching ladder. Attempts
// run in order, each strictly more lenient than the previous, and the
// first attempt that produces candidates wins.
type MatchAttempt int

const (
	// PerfectMatch requires the full name and identical comparison types.
	PerfectMatch MatchAttempt = iota
	// MismatchedOptional tolerates top-level optional wrapping
	// differences; only tried with explicit override intent.
	MismatchedOptional
	// MismatchedTypes accepts any same-name near miss, purely to emit
	// an "almost overrides" diagnostic. It never produces an override.
	MismatchedTypes
	// BaseName drops argument-label matching; only tried when the
	// declaration has labels to drop.
	BaseName
	// BaseNameWithMismatchedOptional combines the two relaxations.
	BaseNameWithMismatchedOptional
	// Final is the give-up state.
	Final
)

func (a MatchAttempt) String() string {
	switch a {
	case PerfectMatch:
		return "perfect"
	case MismatchedOptional:
		return "mismatched-optional"
	case MismatchedTypes:
		return "mismatched-types"
	case BaseName:
		return "base-name"
	case BaseNameWithMismatchedOptional:
		return "base-name-mismatched-optional"
	default:
		return "final"
	}
}

// allowsOptionalMismatch reports whether the attempt tolerates
// optional-wrapping differences.
func (a MatchAttempt) allowsOptionalMismatch() bool {
	return a == MismatchedOptional || a == BaseNameWithMismatchedOptional
}

// ignoresArgLabels reports whether the attempt matches by base name only.
func (a MatchAttempt) ignoresArgLabels() bool {
	return a == BaseName || a == BaseNameWithMismatchedOptional
}

// OverrideMatch is one candidate produced during a matching attempt.
type OverrideMatch struct {
	Candidate *types.Decl
	Exact     bool
	// SubstType is the base member's comparison type substituted into
	// the overriding class's context.
	SubstType *types.Type
}

// OverrideChecker decides whether declarations legally override
// superclass members.
type OverrideChecker struct {
	ctx   *types.Context
	diags *diagnostics.Manager

	// diagnosed suppresses the duplicate diagnostics a storage
	// declaration's synthesized accessor pair would otherwise produce.
	diagnosed map[*types.Decl]bool
}

// NewOverrideChecker creates a checker reporting through diags.
func NewOverrideChecker(ctx *types.Context, diags *diagnostics.Manager) *OverrideChecker {
	return &OverrideChecker{ctx: ctx, diags: diags, diagnosed: make(map[*types.Decl]bool)}
}

// CheckOverride determines the superclass member decl overrides, if
// any, running the matching attempts in order and validating the
// winner. Returns nil when nothing is overridden; diagnostics describe
// why when the declaration claimed override intent.
func (c *OverrideChecker) CheckOverride(decl *types.Decl) *types.Decl {
	classDecl := decl.Parent.NominalContext()
	if classDecl == nil || classDecl.Kind != types.DeclClass || classDecl.Superclass == nil {
		if decl.Flags.Override {
			c.diags.Errorf(decl.Span, diagnostics.CategoryOverride,
				"%s cannot override: enclosing type has no superclass", decl.Name)
		}
		return nil
	}

	for attempt := PerfectMatch; attempt < Final; attempt++ {
		if attempt == MismatchedOptional && !decl.Flags.Override {
			continue
		}
		if attempt.ignoresArgLabels() && !decl.Name.HasArgLabels() {
			continue
		}

		matches := c.matchCandidates(decl, classDecl, attempt)
		if len(matches) == 0 {
			continue
		}

		if attempt == MismatchedTypes {
			// Near miss: diagnose and give up; this attempt never
			// produces an override.
			near := matches[0]
			if !c.diagnosed[decl] {
				c.diagnosed[decl] = true
				c.diags.Errorf(decl.Span, diagnostics.CategoryOverride,
					"%s does not override %s: types %s and %s do not match",
					decl.Name, near.Candidate.Name, decl.InterfaceType, near.SubstType).
					WithNote(near.Candidate.Span, "attempted to override here")
			}
			return nil
		}

		// An exact match prunes all approximate ones.
		exact := matches[:0:0]
		for _, m := range matches {
			if m.Exact {
				exact = append(exact, m)
			}
		}
		if len(exact) > 0 {
			matches = exact
		}
		if len(matches) > 1 {
			d := c.diags.Errorf(decl.Span, diagnostics.CategoryOverride,
				"%s ambiguously overrides multiple superclass members", decl.Name)
			for _, m := range matches {
				d.WithNote(m.Candidate.Span, "candidate %s", m.Candidate.Name)
			}
			return nil
		}

		match := matches[0]
		if attempt.ignoresArgLabels() && !decl.Name.Matches(match.Candidate.Name) {
			c.diags.Errorf(decl.Span, diagnostics.CategoryOverride,
				"argument labels of %s do not match overridden %s",
				decl.Name, match.Candidate.Name).
				WithFixIt(decl.Span, "use the overridden member's labels",
					match.Candidate.Name.String())
		} else if attempt.allowsOptionalMismatch() {
			c.diags.Warningf(decl.Span, diagnostics.CategoryOverride,
				"%s overrides %s with mismatched optionality",
				decl.Name, match.Candidate.Name)
		}

		c.validateOverride(decl, classDecl, match)
		return match.Candidate
	}

	if decl.Flags.Override {
		c.diags.Errorf(decl.Span, diagnostics.CategoryOverride,
			"%s does not override any superclass member", decl.Name)
	}
	return nil
}

// matchCandidates walks the superclass chain collecting members that
// pass the structural pre-filter, classifying each surviving candidate
// as exact or approximate.
func (c *OverrideChecker) matchCandidates(decl, classDecl *types.Decl, attempt MatchAttempt) []OverrideMatch {
	derivedSelf := classDecl.DeclaredInterfaceType(c.ctx)
	declType := comparisonType(c.ctx, decl)

	var out []OverrideMatch
	for sup := classDecl.Superclass; sup != nil; {
		supDecl := sup.TypeDecl()
		if supDecl == nil {
			break
		}
		for _, base := range supDecl.LookupMember(decl.Name.Base) {
			if !c.overrideCompatibleSimple(decl, base, attempt) {
				continue
			}
			baseType := comparisonType(c.ctx, base)
			m := types.OverrideSubstitutions(base, decl, derivedSelf)
			if !m.Empty() {
				baseType = baseType.SubstMap(m)
			}
			if baseType.HasError() {
				continue
			}
			switch {
			case declType.IsEqual(baseType):
				out = append(out, OverrideMatch{Candidate: base, Exact: true, SubstType: baseType})
			case c.matchesWithVariance(decl, base, declType, baseType, attempt):
				out = append(out, OverrideMatch{Candidate: base, SubstType: baseType})
			case attempt == MismatchedTypes:
				// Any surviving same-name candidate is a near miss.
				out = append(out, OverrideMatch{Candidate: base, SubstType: baseType})
			}
		}
		if supDecl.Superclass == nil {
			break
		}
		sup = supDecl.Superclass
	}
	return out
}

// overrideCompatibleSimple is the cheap structural pre-filter applied
// before any type comparison.
func (c *OverrideChecker) overrideCompatibleSimple(decl, base *types.Decl, attempt MatchAttempt) bool {
	if base.Flags.Invalid || decl.Flags.Invalid {
		return false
	}
	// Dynamic-dispatch-only and protocol-extension members cannot be
	// statically overridden.
	if base.Flags.DynamicOnly || base.Flags.ProtoExtMem {
		return false
	}
	if base.Kind != decl.Kind {
		return false
	}
	if base.Flags.Static != decl.Flags.Static {
		return false
	}
	if base.IsGeneric() != decl.IsGeneric() {
		return false
	}
	if attempt.ignoresArgLabels() {
		return len(base.Name.ArgLabels) == len(decl.Name.ArgLabels)
	}
	return decl.Name.Matches(base.Name)
}

// matchesWithVariance reports whether declType can override baseType
// under override-style variance: contravariant parameters, covariant
// results, optional covariance, and implicitly-unwrapped-optional
// allowances at bridged boundaries.
func (c *OverrideChecker) matchesWithVariance(decl, base *types.Decl, declType, baseType *types.Type, attempt MatchAttempt) bool {
	iuoOK := (decl.Flags.IUO || base.Flags.IUO) && (decl.Flags.Bridged || base.Flags.Bridged)
	mode := varianceMode{
		optionalMismatch: attempt.allowsOptionalMismatch() || iuoOK,
	}
	if declType == nil || baseType == nil {
		return false
	}
	d, b := declType.Canonical(), baseType.Canonical()
	if d.Kind() == types.KindFunction && b.Kind() == types.KindFunction {
		if len(d.Params()) != len(b.Params()) {
			return false
		}
		for i := range d.Params() {
			// Parameters are contravariant: the override must accept at
			// least everything the base accepted.
			if !mode.canConvert(b.Params()[i].Type, d.Params()[i].Type) {
				return false
			}
		}
		return mode.canConvert(d.Result(), b.Result())
	}
	// Storage: the declared type must convert covariantly.
	return mode.canConvert(d, b)
}

type varianceMode struct {
	optionalMismatch bool
}

// canConvert reports whether from is implicitly convertible to to under
// override variance: identity, class covariance, and optional
// covariance (plus bare optional mismatches when permitted).
func (m varianceMode) canConvert(from, to *types.Type) bool {
	from, to = from.Canonical(), to.Canonical()
	if from.IsEqual(to) {
		return true
	}
	// T converts to T?.
	if to.Kind() == types.KindOptional {
		if m.canConvert(from.ObjectType(), to.ObjectType()) {
			return true
		}
	}
	// T? converts to T only when optional mismatches are tolerated.
	if m.optionalMismatch && from.Kind() == types.KindOptional {
		if m.canConvert(from.ObjectType(), to) {
			return true
		}
	}
	// Class covariance.
	if from.IsClass() && to.IsClass() && to.TypeDecl() != nil {
		if sup := from.SuperclassForDecl(to.TypeDecl()); sup != nil {
			return sup.IsEqual(to)
		}
	}
	return false
}

// validateOverride runs the detailed compatibility checks once a single
// match has been chosen.
func (c *OverrideChecker) validateOverride(decl, classDecl *types.Decl, match OverrideMatch) {
	base := match.Candidate
	if c.diagnosed[decl] {
		return
	}

	// Access: the override must be at least as accessible as the
	// tighter of the base's and the subclass's access. Final members
	// may sit below an open base.
	required := base.FormalAccess()
	if classDecl.FormalAccess() < required {
		required = classDecl.FormalAccess()
	}
	if required == types.AccessOpen && decl.Flags.Final {
		required = types.AccessPublic
	}
	if decl.FormalAccess() < required {
		c.diagnosed[decl] = true
		c.diags.Errorf(decl.Span, diagnostics.CategoryOverrideAccess,
			"overriding %s must be at least %s (is %s)",
			base.Name, required, decl.FormalAccess())
	}

	// Mutability.
	if base.Flags.Let {
		c.diagnosed[decl] = true
		c.diags.Errorf(decl.Span, diagnostics.CategoryOverrideMutability,
			"cannot override immutable stored member %s", base.Name)
	} else if base.Flags.Settable {
		if !decl.Flags.Settable {
			c.diagnosed[decl] = true
			c.diags.Errorf(decl.Span, diagnostics.CategoryOverrideMutability,
				"cannot override settable member %s with a read-only member", base.Name)
		} else if !decl.InterfaceType.IsEqual(match.SubstType) {
			// A settable member admits no covariance: writes flow the
			// other way.
			c.diagnosed[decl] = true
			c.diags.Errorf(decl.Span, diagnostics.CategoryOverrideMutability,
				"cannot override settable member %s with covariant type %s",
				base.Name, decl.InterfaceType)
		}
	}

	// Throws.
	if decl.Flags.Throws && !base.Flags.Throws {
		c.diagnosed[decl] = true
		c.diags.Errorf(decl.Span, diagnostics.CategoryOverrideThrows,
			"overriding %s adds throws to a non-throwing member", base.Name)
	}

	// Availability: the override must be available wherever the base is.
	if !decl.Availability.Contains(base.Availability) {
		c.diagnosed[decl] = true
		c.diags.Errorf(decl.Span, diagnostics.CategoryOverrideAvailability,
			"override of %s is available on %s, base requires %s",
			base.Name, decl.Availability, base.Availability)
	}
}

// comparisonType produces the type used for override matching: the
// interface type with throwing-ness stripped for functions, since
// throws compatibility is checked separately.
func comparisonType(ctx *types.Context, decl *types.Decl) *types.Type {
	t := decl.InterfaceType
	if t == nil {
		return ctx.ErrorType()
	}
	can := t.Canonical()
	if can.Kind() == types.KindFunction && can.FuncInfo().Throws {
		info := can.FuncInfo()
		info.Throws = false
		return ctx.FunctionType(can.Params(), can.Result(), info)
	}
	return can
}
