package state

// Well-known extension keys populated by bundled stages. The namespace
// stays open: any stage may read or write keys outside this list, and
// unrecognized keys propagate through Clone/Merge verbatim.
const (
	KeyContentModeration = "contentModeration"
	KeyRateLimit         = "rateLimit"
	KeyIntent            = "intent"
	KeyPromptContext     = "promptContext"
	KeyAIResponse        = "aiResponse"
)

// State is the bag threaded through a plan execution. Stages must treat
// it as copy-on-write: Clone (or With*) before mutating, never mutate a
// State a caller still holds a reference to.
type State struct {
	Request    Request
	Failure    *Failure
	Extensions map[string]any
}

// New builds the initial State for a plan execution.
func New(req Request) State {
	return State{
		Request:    req,
		Extensions: make(map[string]any),
	}
}

// Clone returns a shallow copy: a fresh Extensions map pointing at the
// same values, so callers can add/overwrite keys without mutating the
// source. Values that are themselves mutable (slices, maps, pointers to
// structs a stage intends to mutate) must be replaced wholesale, not
// edited in place.
func (s State) Clone() State {
	ext := make(map[string]any, len(s.Extensions))
	for k, v := range s.Extensions {
		ext[k] = v
	}
	return State{
		Request:    s.Request,
		Failure:    s.Failure,
		Extensions: ext,
	}
}

// WithExtension returns a clone of s with key set to value.
func (s State) WithExtension(key string, value any) State {
	next := s.Clone()
	next.Extensions[key] = value
	return next
}

// WithFailure returns a clone of s carrying the given failure.
func (s State) WithFailure(f *Failure) State {
	next := s.Clone()
	next.Failure = f
	return next
}

// Extension fetches a typed extension value, reporting whether it was
// present and of the expected type.
func Extension[T any](s State, key string) (T, bool) {
	var zero T
	raw, ok := s.Extensions[key]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// MergeExtensions folds src's extensions onto dst's, later keys
// (i.e. src's) overwriting dst's on conflict. Request and Failure are
// never taken from src — callers decide those independently. Used by
// the executor to merge a parallel group's per-stage outputs in
// declaration order (spec.md §4.1).
func MergeExtensions(dst State, src State) State {
	next := dst.Clone()
	for k, v := range src.Extensions {
		next.Extensions[k] = v
	}
	return next
}
