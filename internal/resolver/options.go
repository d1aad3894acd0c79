package resolver

// Options is the immutable flag set threaded through resolution calls.
// Descending into a sub-position derives a new value with With/Without;
// options never live in resolver state.
type Options uint32

const (
	// AllowUnboundGeneric permits a generic type reference without
	// arguments, e.g. as the head of a typealias right-hand side.
	AllowUnboundGeneric Options = 1 << iota
	// ParamPosition marks function parameter positions, where function
	// types default to non-escaping.
	ParamPosition
	// LoweredContext marks lowered (IR-facing) positions where only
	// representable types are legal.
	LoweredContext
	// ExtensionBinding marks resolution of an extension's extended-type
	// reference, which binds to the nominal ignoring generic arguments.
	ExtensionBinding
)

// Has reports whether every flag in f is set.
func (o Options) Has(f Options) bool { return o&f == f }

// With returns o with f added.
func (o Options) With(f Options) Options { return o | f }

// Without returns o with f removed.
func (o Options) Without(f Options) Options { return o &^ f }

// forSubPosition strips flags that do not propagate into nested
// positions: unbound-generic permission applies to the head only.
func (o Options) forSubPosition() Options {
	return o.Without(AllowUnboundGeneric).Without(ParamPosition)
}
